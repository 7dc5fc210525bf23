package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tillsync/internal/config"
	"github.com/roach88/tillsync/internal/deprovision"
	"github.com/roach88/tillsync/internal/engine"
	"github.com/roach88/tillsync/internal/events"
	"github.com/roach88/tillsync/internal/host"
	"github.com/roach88/tillsync/internal/httpapi"
	"github.com/roach88/tillsync/internal/model"
	"github.com/roach88/tillsync/internal/remote"
	"github.com/roach88/tillsync/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// SetupPaths are searched for a setup file when not provisioned.
	// Defaults to config.DefaultSetupPaths.
	SetupPaths []string

	// IDGenerator allows overriding the booking id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator

	// DriverFactory allows overriding lock driver construction (for testing).
	DriverFactory host.DriverFactory
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts, SetupPaths: config.DefaultSetupPaths}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync engine",
		Long: `Run the till: the sync loop, the event channel, the lock host and the
local front-end API.

If the device is not provisioned, a setup file on removable media is
imported when present. After the central authority rejects the device, all
local state is wiped and the process re-enters setup.

Example:
  tillsync run
  tillsync run --config /etc/tillsync.yaml --env /var/lib/tillsync/.env --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTill(opts, cmd)
		},
	}

	return cmd
}

func runTill(opts *RunOptions, cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	imported := false
	for {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			return err
		}
		if !cfg.Provisioned() {
			// A setup file is imported at most once per process, so revoked
			// credentials on inserted media cannot cause a restart loop.
			if imported || !importSetupFile(cfg, opts.SetupPaths) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Device not provisioned. Run 'tillsync provision' first.")
				return NewExitError(ExitNotProvisioned, "device not provisioned")
			}
			imported = true
			continue
		}
		if err := cfg.RequireProvisioned(); err != nil {
			return WrapExitError(ExitNotProvisioned, "device not provisioned", err)
		}

		err = runOnce(ctx, opts, cfg)
		if errors.Is(err, host.ErrRestartRequested) {
			slog.Info("restarting from a clean state")
			continue
		}
		if err != nil {
			return err
		}
		slog.Info("till stopped gracefully")
		return nil
	}
}

// importSetupFile saves credentials from the first setup file found.
func importSetupFile(cfg config.Config, paths []string) bool {
	creds, path, found := config.FindSetupFile(paths)
	if !found {
		return false
	}
	if err := (config.CredentialFile{Path: cfg.CredentialsPath}).Save(creds); err != nil {
		slog.Error("import setup file", "path", path, "error", err)
		return false
	}
	slog.Info("imported setup file", "path", path, "tenant", creds.Tenant)
	return true
}

// runOnce runs every component until ctx is done or a restart is
// requested. Returns host.ErrRestartRequested for a restart and nil on a
// graceful stop.
func runOnce(ctx context.Context, opts *RunOptions, cfg config.Config) error {
	slog.Info("opening database", "path", cfg.DatabasePath)
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	initial, err := initialLock(ctx, st, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cached device config", err)
	}

	var hostOpts []host.Option
	if opts.DriverFactory != nil {
		hostOpts = append(hostOpts, host.WithDriverFactory(opts.DriverFactory))
	}
	h := host.New(initial, hostOpts...)

	gw := remote.New(remote.Config{
		ServerURL:            cfg.Credentials.ServerURL,
		Tenant:               cfg.Credentials.Tenant,
		APIKey:               cfg.Credentials.APIKey,
		HealthTimeout:        cfg.HealthTimeout,
		HealthConnectTimeout: cfg.HealthConnectTimeout,
		RequestTimeout:       cfg.RequestTimeout,
		ConnectTimeout:       cfg.ConnectTimeout,
		EventsConnectTimeout: cfg.EventsConnectTimeout,
	})

	deprov := deprovision.New(st, config.CredentialFile{Path: cfg.CredentialsPath}, h)

	engineOpts := []engine.Option{
		engine.WithSyncInterval(cfg.SyncInterval),
		engine.WithRefreshInterval(cfg.CacheRefreshInterval),
		engine.WithInitialLock(initial),
	}
	if opts.IDGenerator != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	eng := engine.New(gw, st, h, deprov, engineOpts...)
	deprov.AddStopper(eng)
	if err := eng.LoadCachedConfig(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to read cached device config", err)
	}

	channel := events.New(gw, h, deprov,
		events.WithBackoff(cfg.EventBackoffInitial, cfg.EventBackoffMax))
	deprov.AddStopper(channel)

	slog.Info("till starting",
		"tenant", cfg.Credentials.Tenant,
		"server", cfg.Credentials.ServerURL,
		"lock", lockKind(initial),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.Run(gctx)
	})
	g.Go(func() error {
		err := eng.Run(gctx)
		// Deprovisioning requests the restart through the host.
		if errors.Is(err, engine.ErrDeprovisioned) {
			return nil
		}
		return ignoreCanceled(err)
	})
	g.Go(func() error {
		err := channel.Run(gctx)
		if remote.IsAuthError(err) {
			return nil
		}
		return ignoreCanceled(err)
	})
	if cfg.ListenAddr != "" {
		router := httpapi.NewRouter(&httpapi.Handler{Engine: eng, Store: st})
		g.Go(func() error {
			return ignoreCanceled(httpapi.Serve(gctx, cfg.ListenAddr, router))
		})
	}

	err = g.Wait()
	eng.Stop()
	eng.Wait()

	switch {
	case errors.Is(err, host.ErrRestartRequested):
		return err
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	default:
		return WrapExitError(ExitFailure, "till error", err)
	}
}

// initialLock returns the lock configuration the host starts with: the
// cached one, or the relay fallback before any configuration was cached.
func initialLock(ctx context.Context, st *store.Store, cfg config.Config) (*model.LockConfig, error) {
	cached, _, found, err := st.DeviceConfig(ctx)
	if err != nil {
		return nil, err
	}
	if found {
		return cached.Lock, nil
	}
	if !cfg.Relay.Enabled {
		return nil, nil
	}
	pin := cfg.Relay.GPIOPin
	return &model.LockConfig{
		Kind:         model.LockRelay,
		GPIOPin:      &pin,
		OpenDuration: cfg.Relay.OpenDuration,
	}, nil
}

func lockKind(cfg *model.LockConfig) string {
	if cfg == nil {
		return "none"
	}
	return string(cfg.Kind)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
