package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tillsync/internal/model"
	"github.com/roach88/tillsync/internal/store"
)

// StatusResult summarizes the local device state.
type StatusResult struct {
	Provisioned       bool              `json:"provisioned"`
	Server            string            `json:"server,omitempty"`
	Tenant            string            `json:"tenant,omitempty"`
	Database          string            `json:"database"`
	Members           int               `json:"members"`
	Products          int               `json:"products"`
	PendingBookings   int               `json:"pending_bookings"`
	DeliveredBookings int               `json:"delivered_bookings"`
	ConfigCached      bool              `json:"config_cached"`
	Lock              *model.LockConfig `json:"lock,omitempty"`
	ShowMemberBalance bool              `json:"show_member_balance"`
}

// WriteText renders the status for humans.
func (r StatusResult) WriteText(w io.Writer) error {
	if r.Provisioned {
		fmt.Fprintf(w, "Provisioned:  yes (%s at %s)\n", r.Tenant, r.Server)
	} else {
		fmt.Fprintln(w, "Provisioned:  no")
	}
	fmt.Fprintf(w, "Database:     %s\n", r.Database)
	fmt.Fprintf(w, "Members:      %d\n", r.Members)
	fmt.Fprintf(w, "Products:     %d\n", r.Products)
	fmt.Fprintf(w, "Bookings:     %d pending, %d delivered\n", r.PendingBookings, r.DeliveredBookings)
	if !r.ConfigCached {
		_, err := fmt.Fprintln(w, "Lock:         unknown (no config cached)")
		return err
	}
	_, err := fmt.Fprintf(w, "Lock:         %s\n", describeLock(r.Lock))
	return err
}

func describeLock(cfg *model.LockConfig) string {
	switch {
	case cfg == nil || cfg.Kind == model.LockNone:
		return "none"
	case cfg.Kind == model.LockRelay && cfg.GPIOPin != nil:
		return fmt.Sprintf("gpio pin %d", *cfg.GPIOPin)
	case cfg.Kind.IsLAN():
		return fmt.Sprintf("%s at %s", cfg.Kind, cfg.Host)
	default:
		return string(cfg.Kind)
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provisioning, cache and queue state",
		Long: `Show the local device state without contacting the central authority.

Example:
  tillsync status
  tillsync status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	out := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	st, err := openStore(cfg.DatabasePath, out)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		_ = out.Error(CodeStore, "failed to read store", err.Error())
		return WrapExitError(ExitFailure, "failed to read store", err)
	}
	devCfg, _, found, err := st.DeviceConfig(ctx)
	if err != nil {
		_ = out.Error(CodeStore, "failed to read device config", err.Error())
		return WrapExitError(ExitFailure, "failed to read device config", err)
	}

	return out.Success(StatusResult{
		Provisioned:       cfg.Provisioned(),
		Server:            cfg.Credentials.ServerURL,
		Tenant:            cfg.Credentials.Tenant,
		Database:          cfg.DatabasePath,
		Members:           stats.Members,
		Products:          stats.Products,
		PendingBookings:   stats.Undelivered,
		DeliveredBookings: stats.Delivered,
		ConfigCached:      found,
		Lock:              devCfg.Lock,
		ShowMemberBalance: devCfg.ShowMemberBalance,
	})
}

// openStore opens the local database, reporting failures in the configured
// output format.
func openStore(path string, out *OutputFormatter) (*store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		_ = out.Error(CodeStore, "failed to open database", err.Error())
		return nil, WrapExitError(ExitFailure, "failed to open database", err)
	}
	return st, nil
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
