package cli

import (
	"fmt"
	"time"

	"MozoPOS/internal/mozoapi"
	"MozoPOS/internal/verify"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type verifyOptions struct {
	Table   string
	Staff   string
	Number  int
	Voucher bool
	Window  time.Duration
}

// NewVerifyCommand runs the verification lookup once, for an operator who
// wants to know whether an order or voucher reached the backend.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &verifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Look up a recent order or voucher by table and staff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Table == "" || opts.Staff == "" {
				return errors.New("--table and --staff are required")
			}
			cfg, err := rootOpts.load()
			if err != nil {
				return err
			}

			oracle := verify.New(mozoapi.NewAPI(cfg), cfg)
			q := verify.Query{TableID: opts.Table, StaffID: opts.Staff, Number: opts.Number, Window: opts.Window}
			out := cmd.OutOrStdout()

			if opts.Voucher {
				v, ok := oracle.FindVoucher(cmd.Context(), q)
				if !ok {
					return errors.New("no matching voucher")
				}
				fmt.Fprintf(out, "voucher %s #%d id=%s total=%s orders=%v\n",
					v.VoucherID, v.Number, v.ID, v.Total.Decimal.StringFixed(2), v.Orders)
				return nil
			}

			o, ok := oracle.FindOrder(cmd.Context(), q)
			if !ok {
				return errors.New("no matching order")
			}
			fmt.Fprintf(out, "order #%d id=%s created=%s lines=%d\n", o.Number, o.ID, o.CreatedAt, len(o.Lines))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Table, "table", "", "table id")
	cmd.Flags().StringVar(&opts.Staff, "staff", "", "staff id")
	cmd.Flags().IntVar(&opts.Number, "number", 0, "display number to match")
	cmd.Flags().BoolVar(&opts.Voucher, "voucher", false, "look for a voucher instead of an order")
	cmd.Flags().DurationVar(&opts.Window, "window", 0, "recency window (default from config)")
	return cmd
}
