package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"trustcompute/internal/model"
	"trustcompute/pkg/crypto"

	"github.com/spf13/cobra"
)

func newHashCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Compute integrity hashes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "request <file>",
		Short: "Print the hex request hash of a WorkOrderSubmit JSON file",
		Long: `Reads a WorkOrderSubmit request, either the full JSON-RPC envelope or only its
params, and prints the hash a receipt records as workOrderRequestHash. Use "-" for stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			params, err := parseParams(data)
			if err != nil {
				return err
			}
			digest := hex.EncodeToString(crypto.RequestHash(params))
			return output(opts, cmd.OutOrStdout(),
				map[string]string{"workOrderId": params.WorkOrderID, "workOrderRequestHash": digest},
				func(w io.Writer) { fmt.Fprintln(w, digest) })
		},
	})
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// parseParams accepts a JSON-RPC envelope or bare params
func parseParams(data []byte) (*model.WorkOrderParams, error) {
	req, err := model.ParseWorkOrderRequest(data)
	if err == nil && req.Params.WorkOrderID != "" {
		return &req.Params, nil
	}
	var params model.WorkOrderParams
	if err := model.DecodeParams(data, &params); err != nil {
		return nil, err
	}
	if params.WorkOrderID == "" {
		return nil, fmt.Errorf("request has no workOrderId")
	}
	return &params, nil
}
