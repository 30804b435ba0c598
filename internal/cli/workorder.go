package cli

import (
	"fmt"
	"io"

	"trustcompute/internal/workorder"
	"trustcompute/pkg/interfaces"

	"github.com/spf13/cobra"
)

func newStateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state <work-order-id>",
		Short: "Show the lifecycle state of a work order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(kv interfaces.KeyValueStore) error {
				state, err := newWorkOrderStore(kv).CurrentState(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return output(opts, cmd.OutOrStdout(),
					map[string]string{"workOrderId": args[0], "state": state.String()},
					func(w io.Writer) { fmt.Fprintf(w, "%s\t%s\n", args[0], state) })
			})
		},
	}
}

type recoverReport struct {
	Tracked   int                        `json:"tracked"`
	Queue     []string                   `json:"queue"`
	Recovered []workorder.RecoveredOrder `json:"recovered"`
}

func newRecoverCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Rebuild scheduler state and finish interrupted processing",
		Long: `Runs the boot recovery a listener performs on start: rebuilds the admission
queue from stored timestamps, then returns work orders stuck in processing to the
schedule or marks them processed when a response was already stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(kv interfaces.KeyValueStore) error {
				store := newWorkOrderStore(kv)
				state, err := store.BootRecover(cmd.Context())
				if err != nil {
					return err
				}
				recovered, err := store.ProcessingRecover(cmd.Context())
				if err != nil {
					return err
				}
				report := recoverReport{Tracked: state.Count, Queue: state.Queue, Recovered: recovered}
				return output(opts, cmd.OutOrStdout(), report, func(w io.Writer) {
					fmt.Fprintf(w, "tracked work orders: %d\n", report.Tracked)
					for _, order := range recovered {
						action := "rescheduled"
						if !order.Rescheduled {
							action = "processed " + order.Processed
						}
						fmt.Fprintf(w, "%s\t%s\n", order.WorkOrderID, action)
					}
				})
			})
		},
	}
}
