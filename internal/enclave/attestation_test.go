package enclave

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"trustcompute/pkg/config"
	"trustcompute/pkg/crypto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuoteServer(t *testing.T, kind string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/"+kind+"/enclave-info", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(EnclaveInfo{MREnclave: "ab12", Basename: kind + "-base"})
	})
	mux.HandleFunc("/"+kind+"/quote", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req quoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VerificationKey == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(quoteResponse{Quote: "quote-for-" + req.ReportData, MREnclave: "ab12"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestNewAttestation_Selection(t *testing.T) {
	a, err := NewAttestation(config.EnclaveConfig{Attestation: config.AttestationSimulated})
	require.NoError(t, err)
	assert.IsType(t, &SimulatedAttestation{}, a)
	assert.True(t, a.IsSimulator())

	_, err = NewAttestation(config.EnclaveConfig{Attestation: config.AttestationEPID})
	assert.Error(t, err)

	a, err = NewAttestation(config.EnclaveConfig{Attestation: config.AttestationDCAP, QuoteServiceURL: "http://quote"})
	require.NoError(t, err)
	assert.IsType(t, &DcapAttestation{}, a)
	assert.False(t, a.IsSimulator())
}

func TestSimulatedAttestation(t *testing.T) {
	key, err := crypto.GenerateSigningKey()
	require.NoError(t, err)
	a := &SimulatedAttestation{}
	ctx := context.Background()

	info, err := a.InitEnclaveInfo(ctx)
	require.NoError(t, err)
	assert.Len(t, info.MREnclave, 64)

	signup, err := a.GetSignupInfo(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key.VerificationKey(), signup.VerificationKey)
	assert.NotEmpty(t, signup.ProofData)

	_, err = a.GetSignupInfo(ctx, nil)
	assert.ErrorIs(t, err, crypto.ErrNoSigningKey)
}

func TestQuoteBackedAttestation(t *testing.T) {
	key, err := crypto.GenerateSigningKey()
	require.NoError(t, err)
	ctx := context.Background()

	for _, kind := range []string{config.AttestationEPID, config.AttestationDCAP} {
		t.Run(kind, func(t *testing.T) {
			server := newQuoteServer(t, kind)
			a, err := NewAttestation(config.EnclaveConfig{Attestation: kind, QuoteServiceURL: server.URL + "/"})
			require.NoError(t, err)

			info, err := a.InitEnclaveInfo(ctx)
			require.NoError(t, err)
			assert.Equal(t, kind+"-base", info.Basename)

			signup, err := a.GetSignupInfo(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, key.VerificationKey(), signup.VerificationKey)
			assert.Equal(t, "quote-for-"+crypto.HexDigest([]byte(key.VerificationKey())), signup.ProofData)
		})
	}
}

func TestQuoteBackedAttestation_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quoting enclave unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	a, err := NewAttestation(config.EnclaveConfig{Attestation: config.AttestationEPID, QuoteServiceURL: server.URL})
	require.NoError(t, err)

	_, err = a.InitEnclaveInfo(context.Background())
	assert.ErrorContains(t, err, "503")
}
