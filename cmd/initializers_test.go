package main

import (
	"context"
	"encoding/json"
	"testing"

	"trustcompute/internal/enclave"
	"trustcompute/internal/model"
	"trustcompute/internal/service"
	"trustcompute/pkg/config"
	"trustcompute/pkg/crypto"
	redisstore "trustcompute/pkg/store/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistrationApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	kv := redisstore.NewKVStore(redisstore.WrapClient(client), "tcs:")
	attestation, err := enclave.NewAttestation(cfg.Enclave)
	require.NoError(t, err)
	key, err := crypto.GenerateSigningKey()
	require.NoError(t, err)

	return &Application{
		config:        cfg,
		kv:            kv,
		signingKey:    key,
		executor:      enclave.NewExecutor(key, cfg.Enclave.WorkerID, attestation),
		workerService: service.NewWorkerService(kv, 10),
		ctx:           context.Background(),
	}
}

func registrationConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 1947},
		Enclave: config.EnclaveConfig{
			Attestation:       config.AttestationSimulated,
			WorkerID:          config.DefaultWorkerID,
			OrganizationID:    "0a0b",
			ApplicationTypeID: []string{"11aa"},
			AdvertisedURL:     "http://worker-1.tcs.svc:1947",
		},
	}
}

func workerDetails(t *testing.T, worker *model.Worker) model.WorkerDetails {
	t.Helper()
	var details model.WorkerDetails
	require.NoError(t, json.Unmarshal(worker.Details, &details))
	require.NotNil(t, details.WorkerTypeData)
	return details
}

func TestRegisterSelf_NewWorker(t *testing.T) {
	cfg := registrationConfig()
	app := newRegistrationApp(t, cfg)
	ctx := context.Background()

	require.NoError(t, app.registerSelf(ctx))

	worker, err := app.workerService.Retrieve(ctx, cfg.Enclave.WorkerID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkerTypeTEESGX, worker.WorkerType)
	assert.Equal(t, "0a0b", worker.OrganizationID)
	assert.Equal(t, model.StringList{"11aa"}, worker.ApplicationTypeID)
	assert.Equal(t, model.WorkerStatusActive, worker.Status)

	details := workerDetails(t, worker)
	assert.Equal(t, app.signingKey.VerificationKey(), details.WorkerTypeData.VerificationKey)
	assert.NotEmpty(t, details.WorkerTypeData.ProofData)
	assert.Equal(t, "http://worker-1.tcs.svc:1947", details.WorkOrderSyncURI)
	assert.Equal(t, "http://worker-1.tcs.svc:1947", details.WorkOrderAsyncURI)
}

func TestRegisterSelf_ExistingWorkerRefreshesDetails(t *testing.T) {
	cfg := registrationConfig()
	app := newRegistrationApp(t, cfg)
	ctx := context.Background()

	require.NoError(t, app.registerSelf(ctx))
	require.NoError(t, app.workerService.SetStatus(ctx, &model.WorkerSetStatusParams{
		WorkerID: cfg.Enclave.WorkerID,
		Status:   model.WorkerStatusDecommissioned,
	}))

	rotated, err := crypto.GenerateSigningKey()
	require.NoError(t, err)
	app.signingKey = rotated
	app.config.Enclave.AdvertisedURL = "http://worker-2.tcs.svc:1947"

	require.NoError(t, app.registerSelf(ctx))

	ids, err := app.workerService.AllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{cfg.Enclave.WorkerID}, ids)

	worker, err := app.workerService.Retrieve(ctx, cfg.Enclave.WorkerID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkerTypeTEESGX, worker.WorkerType)
	assert.Equal(t, model.WorkerStatusDecommissioned, worker.Status)

	details := workerDetails(t, worker)
	assert.Equal(t, rotated.VerificationKey(), details.WorkerTypeData.VerificationKey)
	assert.Equal(t, "http://worker-2.tcs.svc:1947", details.WorkOrderSyncURI)
}
