package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tillsync/internal/config"
	"github.com/roach88/tillsync/internal/deprovision"
)

// DeprovisionOptions holds flags for the deprovision command.
type DeprovisionOptions struct {
	*RootOptions
	Yes bool
}

// DeprovisionResult reports what was discarded.
type DeprovisionResult struct {
	Database          string `json:"database"`
	Credentials       string `json:"credentials"`
	DiscardedBookings int    `json:"discarded_bookings"`
}

// WriteText renders the result for humans.
func (r DeprovisionResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Device deprovisioned. Wiped %s, removed %s, discarded %d undelivered booking(s).\n",
		r.Database, r.Credentials, r.DiscardedBookings)
	return err
}

// NewDeprovisionCommand creates the deprovision command.
func NewDeprovisionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeprovisionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deprovision",
		Short: "Wipe local data and remove credentials",
		Long: `Wipe every locally stored record and remove the credential record.

Undelivered bookings are discarded. The agent must be stopped first.

Example:
  tillsync deprovision --yes`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeprovision(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm that local data may be discarded")

	return cmd
}

func runDeprovision(opts *DeprovisionOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	out := newFormatter(opts.RootOptions, cmd)

	if !opts.Yes {
		return NewExitError(ExitCommandError, "refusing to deprovision without --yes")
	}

	cfg, err := loadConfig(opts.RootOptions)
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

	creds := config.CredentialFile{Path: cfg.CredentialsPath}
	if err := deprovision.New(st, creds, nil).Deprovision(ctx); err != nil {
		_ = out.Error(CodeStore, "deprovision incomplete", err.Error())
		return WrapExitError(ExitFailure, "deprovision incomplete", err)
	}

	return out.Success(DeprovisionResult{
		Database:          cfg.DatabasePath,
		Credentials:       cfg.CredentialsPath,
		DiscardedBookings: stats.Undelivered,
	})
}
