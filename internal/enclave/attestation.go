package enclave

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trustcompute/pkg/config"
	"trustcompute/pkg/crypto"
	"trustcompute/pkg/logger"
)

// EnclaveInfo identity of the enclave image
type EnclaveInfo struct {
	MREnclave string `json:"mrEnclave"`
	Basename  string `json:"basename"`
}

// SignupInfo attestation material published in a worker's workerTypeData
type SignupInfo struct {
	VerificationKey string `json:"verificationKey"`
	ProofData       string `json:"proofData"`
	MREnclave       string `json:"mrEnclave"`
}

// Attestation enclave attestation backend, selected once at startup
type Attestation interface {
	// InitEnclaveInfo returns the enclave measurement and basename
	InitEnclaveInfo(ctx context.Context) (*EnclaveInfo, error)

	// GetSignupInfo binds the verification key of key to an attestation quote
	GetSignupInfo(ctx context.Context, key *crypto.SigningKey) (*SignupInfo, error)

	// IsSimulator reports whether no hardware attestation backs the enclave
	IsSimulator() bool
}

// NewAttestation selects the backend configured by cfg.Attestation
func NewAttestation(cfg config.EnclaveConfig) (Attestation, error) {
	switch cfg.Attestation {
	case config.AttestationEPID:
		client, err := newQuoteClient(cfg.QuoteServiceURL, "epid")
		if err != nil {
			return nil, err
		}
		return &EpidAttestation{client: client}, nil
	case config.AttestationDCAP:
		client, err := newQuoteClient(cfg.QuoteServiceURL, "dcap")
		if err != nil {
			return nil, err
		}
		return &DcapAttestation{client: client}, nil
	default:
		return &SimulatedAttestation{}, nil
	}
}

// SimulatedAttestation in-process attestation without hardware quotes
type SimulatedAttestation struct{}

var simulatedMREnclave = strings.Repeat("00", 32)

func (a *SimulatedAttestation) InitEnclaveInfo(ctx context.Context) (*EnclaveInfo, error) {
	return &EnclaveInfo{MREnclave: simulatedMREnclave, Basename: "simulated"}, nil
}

func (a *SimulatedAttestation) GetSignupInfo(ctx context.Context, key *crypto.SigningKey) (*SignupInfo, error) {
	if key == nil {
		return nil, crypto.ErrNoSigningKey
	}
	verificationKey := key.VerificationKey()
	return &SignupInfo{
		VerificationKey: verificationKey,
		ProofData:       crypto.HexDigest([]byte(simulatedMREnclave + verificationKey)),
		MREnclave:       simulatedMREnclave,
	}, nil
}

func (a *SimulatedAttestation) IsSimulator() bool { return true }

// EpidAttestation quotes produced by an EPID quoting service
type EpidAttestation struct {
	client *quoteClient
}

func (a *EpidAttestation) InitEnclaveInfo(ctx context.Context) (*EnclaveInfo, error) {
	return a.client.enclaveInfo(ctx)
}

func (a *EpidAttestation) GetSignupInfo(ctx context.Context, key *crypto.SigningKey) (*SignupInfo, error) {
	return a.client.signup(ctx, key)
}

func (a *EpidAttestation) IsSimulator() bool { return false }

// DcapAttestation quotes produced by a DCAP quoting service
type DcapAttestation struct {
	client *quoteClient
}

func (a *DcapAttestation) InitEnclaveInfo(ctx context.Context) (*EnclaveInfo, error) {
	return a.client.enclaveInfo(ctx)
}

func (a *DcapAttestation) GetSignupInfo(ctx context.Context, key *crypto.SigningKey) (*SignupInfo, error) {
	return a.client.signup(ctx, key)
}

func (a *DcapAttestation) IsSimulator() bool { return false }

// quoteClient talks to the quoting service under <baseURL>/<kind>/
type quoteClient struct {
	baseURL string
	kind    string
	http    *http.Client
}

type quoteRequest struct {
	VerificationKey string `json:"verificationKey"`
	ReportData      string `json:"reportData"`
}

type quoteResponse struct {
	Quote     string `json:"quote"`
	MREnclave string `json:"mrEnclave"`
}

func newQuoteClient(baseURL, kind string) (*quoteClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%s attestation requires enclave.quote_service_url", kind)
	}
	return &quoteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		kind:    kind,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *quoteClient) enclaveInfo(ctx context.Context) (*EnclaveInfo, error) {
	var info EnclaveInfo
	if err := c.do(ctx, http.MethodGet, "enclave-info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *quoteClient) signup(ctx context.Context, key *crypto.SigningKey) (*SignupInfo, error) {
	if key == nil {
		return nil, crypto.ErrNoSigningKey
	}
	verificationKey := key.VerificationKey()
	req := quoteRequest{
		VerificationKey: verificationKey,
		ReportData:      hex.EncodeToString(crypto.MessageHash([]byte(verificationKey))),
	}
	var resp quoteResponse
	if err := c.do(ctx, http.MethodPost, "quote", req, &resp); err != nil {
		return nil, err
	}
	if resp.Quote == "" {
		return nil, fmt.Errorf("%s quoting service returned an empty quote", c.kind)
	}
	logger.InfoCtx(ctx, "%s quote obtained for verification key %s", c.kind, verificationKey)
	return &SignupInfo{VerificationKey: verificationKey, ProofData: resp.Quote, MREnclave: resp.MREnclave}, nil
}

func (c *quoteClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal quote request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.kind, path)
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("quoting service request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read quoting service response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("quoting service %s returned %d: %s", url, resp.StatusCode, string(payload))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("failed to decode quoting service response: %w", err)
	}
	return nil
}
