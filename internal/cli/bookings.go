package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tillsync/internal/model"
)

// BookingsOptions holds flags for the bookings command.
type BookingsOptions struct {
	*RootOptions
	Pending bool
}

// BookingsResult lists local bookings.
type BookingsResult struct {
	Bookings []model.Booking `json:"bookings"`
}

// WriteText renders one line per booking.
func (r BookingsResult) WriteText(w io.Writer) error {
	if len(r.Bookings) == 0 {
		_, err := fmt.Fprintln(w, "No bookings.")
		return err
	}
	for _, b := range r.Bookings {
		state := "pending"
		if b.Delivered {
			state = "delivered " + b.DeliveredAt.UTC().Format(time.RFC3339)
		}
		_, err := fmt.Fprintf(w, "%s  %s  member=%s  items=%d  total=%s  %s\n",
			b.ID, b.BookedAt.UTC().Format(time.RFC3339), b.MemberID, len(b.Items), b.TotalPrice, state)
		if err != nil {
			return err
		}
	}
	return nil
}

// NewBookingsCommand creates the bookings command.
func NewBookingsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BookingsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "List the local booking audit trail",
		Long: `List bookings recorded on this device in the order they were taken.

Delivered bookings are kept locally as an audit trail.

Example:
  tillsync bookings
  tillsync bookings --pending --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBookings(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Pending, "pending", false, "only list bookings not yet delivered")

	return cmd
}

func runBookings(opts *BookingsOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	out := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	st, err := openStore(cfg.DatabasePath, out)
	if err != nil {
		return err
	}
	defer st.Close()

	var bookings []model.Booking
	if opts.Pending {
		bookings, err = st.ListUndelivered(ctx)
	} else {
		bookings, err = st.ListBookings(ctx)
	}
	if err != nil {
		_ = out.Error(CodeStore, "failed to list bookings", err.Error())
		return WrapExitError(ExitFailure, "failed to list bookings", err)
	}

	return out.Success(BookingsResult{Bookings: bookings})
}
