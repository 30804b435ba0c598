package cli

import (
	"fmt"
	"io"

	"trustcompute/internal/model"
	"trustcompute/internal/receipt"
	"trustcompute/internal/service"
	"trustcompute/pkg/interfaces"

	"github.com/spf13/cobra"
)

func newWorkersCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Inspect registered workers",
	}
	cmd.AddCommand(newWorkersLookUpCommand(opts))
	return cmd
}

func newWorkersLookUpCommand(opts *RootOptions) *cobra.Command {
	var (
		workerType int
		orgID      string
		appTypeID  string
		tag        string
	)

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "List one page of worker ids matching the filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := &model.WorkerLookUpParams{LookupTag: model.LookupTag(tag)}
			if workerType != 0 {
				t := model.WorkerType(workerType)
				params.WorkerType = &t
			}
			if orgID != "" {
				params.OrganizationID = &orgID
			}
			if appTypeID != "" {
				params.ApplicationTypeID = &appTypeID
			}

			return withStore(opts, func(kv interfaces.KeyValueStore) error {
				workers := service.NewWorkerService(kv, opts.PageSize)
				var (
					result *model.LookupResult
					err    error
				)
				if tag == "" {
					result, err = workers.LookUp(cmd.Context(), params)
				} else {
					result, err = workers.LookUpNext(cmd.Context(), params)
				}
				if err != nil {
					return err
				}
				return output(opts, cmd.OutOrStdout(), result, func(w io.Writer) {
					for _, id := range result.IDs {
						fmt.Fprintln(w, id)
					}
					if result.LookupTag != "" {
						fmt.Fprintf(w, "next: --tag %s\n", result.LookupTag)
					}
				})
			})
		},
	}

	cmd.Flags().IntVar(&workerType, "type", 0, "worker type (1=TEE-SGX, 2=MPC, 3=ZK)")
	cmd.Flags().StringVar(&orgID, "org", "", "organization id")
	cmd.Flags().StringVar(&appTypeID, "app-type", "", "application type id")
	cmd.Flags().StringVar(&tag, "tag", "", "lookup tag returned by the previous page")
	return cmd
}

func newReceiptCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipt",
		Short: "Inspect work order receipts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <work-order-id>",
		Short: "Show a receipt and its current status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(kv interfaces.KeyValueStore) error {
				store := newWorkOrderStore(kv)
				view, err := receipt.NewHandler(store, opts.PageSize).Retrieve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				updates, err := store.ReceiptUpdates(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return output(opts, cmd.OutOrStdout(),
					map[string]interface{}{"receipt": view, "updates": updates},
					func(w io.Writer) {
						fmt.Fprintf(w, "work order:  %s\n", view.WorkOrderID)
						fmt.Fprintf(w, "worker:      %s\n", view.WorkerID)
						fmt.Fprintf(w, "requester:   %s\n", view.RequesterID)
						fmt.Fprintf(w, "created as:  %s\n", view.ReceiptCreateStatus)
						fmt.Fprintf(w, "current:     %s\n", view.ReceiptCurrentStatus)
						for i, update := range updates {
							fmt.Fprintf(w, "update %d:    %s by %s\n", i+1, update.UpdateType, update.UpdaterID)
						}
					})
			})
		},
	})
	return cmd
}
