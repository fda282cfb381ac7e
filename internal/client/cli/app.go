package cli

import (
	"bufio"
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	stdsync "sync"
	"time"

	"github.com/mkarpov/sshvault/internal/client/config"
	"github.com/mkarpov/sshvault/internal/client/database"
	"github.com/mkarpov/sshvault/internal/client/gateway"
	"github.com/mkarpov/sshvault/internal/client/repositories/metadata"
	"github.com/mkarpov/sshvault/internal/client/repositories/profiles"
	"github.com/mkarpov/sshvault/internal/client/services"
	"github.com/mkarpov/sshvault/internal/client/sync"
	"github.com/mkarpov/sshvault/internal/logging"
)

type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

type App struct {
	config         *config.Config
	db             *sql.DB
	gw             gateway.Gateway
	authService    services.AuthService
	profileService services.ProfileService
	store          *profiles.Store
	baselines      *metadata.Baselines
	logger         logging.Logger

	runner     *sync.Runner
	stopRunner context.CancelFunc

	masterKey []byte
	userName  string
	reader    *bufio.Reader

	// mode is written by the status watcher goroutine and read by the
	// REPL, so access goes through setMode and currentMode.
	modeMu stdsync.Mutex
	mode   Mode
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	db, err := database.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		log.Printf("error initializing database: %s", err.Error())
		return nil, err
	}

	gw := gateway.NewHTTPGateway(c.ServerEndpointURL)
	store := profiles.NewStore(profiles.NewSQLiteRepository(db), c.MaxPageSize)
	baselines := metadata.NewBaselines(metadata.NewSQLiteRepository(db))
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	return &App{
		config:         c,
		db:             db,
		gw:             gw,
		authService:    services.NewAuthService(gw, db),
		profileService: services.NewProfileService(store),
		store:          store,
		baselines:      baselines,
		logger:         logger,
		reader:         bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) setMode(mode Mode) {
	a.modeMu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.modeMu.Unlock()

	if changed {
		log.Printf("Switched to %s mode\n", mode)
	}
}

func (a *App) currentMode() Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.mode
}

func (a *App) Run(ctx context.Context) {
	defer a.authService.Close(ctx)
	defer a.db.Close()
	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	return a.masterKey != nil
}

// startSync builds the reconciler for the logged-in user and launches the
// background runner. A previous runner, if any, is stopped first.
func (a *App) startSync(ctx context.Context) {
	a.stopSync()

	rec := sync.NewReconciler(a.db, a.store, a.baselines, a.gw, a.userName, a.logger)
	a.runner = sync.NewRunner(rec, a.config.SyncInterval, a.logger)

	runCtx, cancel := context.WithCancel(ctx)
	a.stopRunner = cancel
	go a.runner.Run(runCtx)
	a.runner.Trigger()
}

func (a *App) stopSync() {
	if a.stopRunner != nil {
		a.stopRunner()
		a.stopRunner = nil
		a.runner = nil
	}
}

// StartOnlineStatusWatcher probes the server every interval and flips the
// mode accordingly. Regaining connectivity triggers a reconciliation so
// offline edits propagate promptly.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.authService.Ping(pingCtx)
			cancel()

			if err != nil {
				if a.currentMode() == ModeOnline {
					a.setMode(ModeOffline)
				}
			} else {
				if a.currentMode() != ModeOnline {
					a.setMode(ModeOnline)
					if a.runner != nil {
						a.runner.Trigger()
					}
				}
			}

		case <-ctx.Done():
			return
		}
	}
}
