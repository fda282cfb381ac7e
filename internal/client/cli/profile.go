package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/mkarpov/sshvault/internal/client/services"
	"github.com/mkarpov/sshvault/internal/common"
)

// AddProfile collects the fields of a new session profile and stores it.
// The credential is sealed before it reaches the store; the plaintext is
// wiped as soon as the service returns.
func (a *App) AddProfile(ctx context.Context) error {
	in, err := a.promptProfileInput()
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	defer common.WipeByteArray(in.Credential)

	p, err := a.profileService.Add(ctx, a.userName, in, a.masterKey)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	fmt.Printf("Added %s (%s)\n", p.Name, p.ID)
	a.triggerSync()
	return nil
}

// EditProfile prompts for an id and replaces the profile's fields. Leaving
// the credential empty keeps the stored secret.
func (a *App) EditProfile(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Enter profile id to edit", os.Stdout)
	if err != nil {
		return err
	}

	in, err := a.promptProfileInput()
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	defer common.WipeByteArray(in.Credential)

	p, err := a.profileService.Update(ctx, id, in, a.masterKey)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}

	fmt.Printf("Updated %s (%s)\n", p.Name, p.ID)
	a.triggerSync()
	return nil
}

func (a *App) promptProfileInput() (services.ProfileInput, error) {
	var zero services.ProfileInput

	name, err := getSimpleText(a.reader, "Enter profile name", os.Stdout)
	if err != nil {
		return zero, err
	}
	host, err := getSimpleText(a.reader, "Enter host", os.Stdout)
	if err != nil {
		return zero, err
	}
	port, err := GetInt(a.reader, "Enter port", 22, os.Stdout)
	if err != nil {
		return zero, err
	}
	username, err := getSimpleText(a.reader, "Enter remote username", os.Stdout)
	if err != nil {
		return zero, err
	}
	group, err := getSimpleText(a.reader, "Enter group (optional)", os.Stdout)
	if err != nil {
		return zero, err
	}
	credential, err := getPassword("Enter credential (password or key passphrase)", os.Stdout)
	if err != nil {
		return zero, err
	}

	return services.ProfileInput{
		Name:       name,
		Host:       host,
		Port:       port,
		Username:   username,
		GroupName:  group,
		Credential: credential,
	}, nil
}

// List prints one page of profiles. An optional page number argument
// defaults to the first page.
func (a *App) List(ctx context.Context, args ...string) error {
	page := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("not a page number: %q", args[0])
		}
		page = n
	}

	result, err := a.profileService.List(ctx, page, 20)
	if err != nil {
		return err
	}

	for _, p := range result.Profiles {
		synced := color.GreenString("synced")
		if !p.Version.Synced() {
			synced = color.YellowString("local")
		}
		fmt.Printf("%s  %-20s %s@%s:%d  %s\n", p.ID, p.Name, p.Username, p.Host, p.Port, synced)
	}
	fmt.Printf("Page %d of %d profile(s) total\n", result.Page, result.Total)
	return nil
}

// Show prints a single profile and its decrypted credential.
func (a *App) Show(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Enter profile id to show", os.Stdout)
	if err != nil {
		return err
	}

	p, err := a.profileService.Get(ctx, id)
	if err != nil {
		return err
	}

	secret, err := a.profileService.Reveal(ctx, id, a.masterKey)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	fmt.Printf("Name:     %s\n", p.Name)
	fmt.Printf("Host:     %s:%d\n", p.Host, p.Port)
	fmt.Printf("Username: %s\n", p.Username)
	if p.GroupName != "" {
		fmt.Printf("Group:    %s\n", p.GroupName)
	}
	fmt.Printf("Secret:   %s\n", secret)
	return nil
}

// Delete tombstones a profile by id. The record disappears from listings
// immediately; the reconciler propagates and eventually purges it.
func (a *App) Delete(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Enter profile id to delete", os.Stdout)
	if err != nil {
		return err
	}
	if err := a.profileService.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Println("Deleted.")
	a.triggerSync()
	return nil
}

func (a *App) triggerSync() {
	if a.runner != nil {
		a.runner.Trigger()
	}
}
