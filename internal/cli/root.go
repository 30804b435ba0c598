package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"trustcompute/internal/workorder"
	"trustcompute/pkg/config"
	"trustcompute/pkg/interfaces"
	badgerstore "trustcompute/pkg/store/badger"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DataDir  string
	PageSize int
	Format   string // "json" | "text"

	// OpenStore opens the key-value store; tests replace it with an in-memory store
	OpenStore func(dir string) (interfaces.KeyValueStore, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for tcsctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		OpenStore: func(dir string) (interfaces.KeyValueStore, error) {
			return badgerstore.Open(dir)
		},
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tcsctl",
		Short: "Inspect a trusted compute listener's key-value store",
		Long:  "Offline administration of work orders, workers and receipts held in the embedded store.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data", config.DefaultBadgerPath, "badger data directory")
	cmd.PersistentFlags().IntVar(&opts.PageSize, "page-size", config.DefaultPageSize, "lookup page size")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(newStateCommand(opts))
	cmd.AddCommand(newRecoverCommand(opts))
	cmd.AddCommand(newWorkersCommand(opts))
	cmd.AddCommand(newReceiptCommand(opts))
	cmd.AddCommand(newHashCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withStore opens the store for the duration of fn
func withStore(opts *RootOptions, fn func(kv interfaces.KeyValueStore) error) error {
	kv, err := opts.OpenStore(opts.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store at %s: %w", opts.DataDir, err)
	}
	defer kv.Close()
	return fn(kv)
}

func newWorkOrderStore(kv interfaces.KeyValueStore) *workorder.Store {
	return workorder.NewStore(kv, config.DefaultMaxWorkOrderCount)
}

// output writes v as indented JSON, or text via the given formatter
func output(opts *RootOptions, w io.Writer, v interface{}, text func(w io.Writer)) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
