package main

import (
	"context"
	"log"
	"os"

	"github.com/mkarpov/sshvault/internal/buildinfo"
	"github.com/mkarpov/sshvault/internal/client/cli"
	"github.com/mkarpov/sshvault/internal/client/config"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)
}
