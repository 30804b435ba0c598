package enclave

import (
	"encoding/base64"
	"encoding/hex"
	"errors"

	"trustcompute/internal/model"
	"trustcompute/pkg/crypto"
)

// Built-in workload names; requests carry them hex-encoded in workloadId
const (
	WorkloadEchoResult   = "echo-result"
	WorkloadSHA256Digest = "sha256-digest"
)

// ErrEmptyInput a workload received no inData
var ErrEmptyInput = errors.New("workload requires at least one inData item")

// Workload computes outData from plaintext inData
type Workload func(in []model.DataItem) ([]model.DataItem, error)

// WorkloadID returns the hex workloadId for a workload name
func WorkloadID(name string) string {
	return hex.EncodeToString([]byte(name))
}

// DefaultWorkloads the built-in workload set keyed by workloadId
func DefaultWorkloads() map[string]Workload {
	return map[string]Workload{
		WorkloadID(WorkloadEchoResult):   echoResult,
		WorkloadID(WorkloadSHA256Digest): sha256Digest,
	}
}

// decodeData returns the bytes carried by a plaintext item, which is base64 when it decodes as such
func decodeData(data string) []byte {
	if raw, err := base64.StdEncoding.DecodeString(data); err == nil {
		return raw
	}
	return []byte(data)
}

func encodeData(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func echoResult(in []model.DataItem) ([]model.DataItem, error) {
	if len(in) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([]model.DataItem, 0, len(in))
	for _, item := range in {
		result := append([]byte("RESULT: "), decodeData(item.Data)...)
		out = append(out, model.DataItem{Index: item.Index, Data: encodeData(result)})
	}
	return out, nil
}

func sha256Digest(in []model.DataItem) ([]model.DataItem, error) {
	if len(in) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([]model.DataItem, 0, len(in))
	for _, item := range in {
		digest := crypto.HexDigest(decodeData(item.Data))
		out = append(out, model.DataItem{Index: item.Index, Data: encodeData([]byte(digest))})
	}
	return out, nil
}
