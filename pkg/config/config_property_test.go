// Package config provides property-based tests for configuration fallback functionality.
// These tests verify universal properties that should hold across all valid inputs.
package config

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_NonPositiveWorkOrderLimitsFallBackToDefault
//
// Property: For any non-positive page size or work-order capacity, the system SHALL use
// the default value so pagination and admission control stay operational.
func TestProperty_NonPositiveWorkOrderLimitsFallBackToDefault(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxSize = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("non-positive page size falls back to default", prop.ForAll(
		func(pageSize int) bool {
			cfg := &Config{WorkOrder: WorkOrderConfig{PageSize: pageSize, MaxWorkOrderCount: 5}}

			validateAndApplyDefaults(cfg)

			return cfg.WorkOrder.PageSize == DefaultPageSize && cfg.WorkOrder.MaxWorkOrderCount == 5
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("non-positive capacity falls back to default", prop.ForAll(
		func(capacity int) bool {
			cfg := &Config{WorkOrder: WorkOrderConfig{PageSize: 3, MaxWorkOrderCount: capacity}}

			validateAndApplyDefaults(cfg)

			return cfg.WorkOrder.MaxWorkOrderCount == DefaultMaxWorkOrderCount && cfg.WorkOrder.PageSize == 3
		},
		gen.IntRange(-1000, 0),
	))

	properties.Property("positive limits are kept", prop.ForAll(
		func(pageSize, capacity int) bool {
			cfg := &Config{WorkOrder: WorkOrderConfig{PageSize: pageSize, MaxWorkOrderCount: capacity}}

			validateAndApplyDefaults(cfg)

			return cfg.WorkOrder.PageSize == pageSize && cfg.WorkOrder.MaxWorkOrderCount == capacity
		},
		gen.IntRange(1, 10000),
		gen.IntRange(1, 10000),
	))

	properties.TestingRun(t)
}

// TestProperty_InvalidDurationsFallBackToDefault
//
// Property: For any negative or zero interval/timeout, the system SHALL use the default value.
func TestProperty_InvalidDurationsFallBackToDefault(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxSize = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("invalid durations fall back to defaults", prop.ForAll(
		func(negativeSeconds int) bool {
			d := time.Duration(negativeSeconds) * time.Second
			cfg := &Config{
				WorkOrder: WorkOrderConfig{SyncTimeout: d},
				Enclave:   EnclaveConfig{PollInterval: d},
				Chain:     ChainConfig{SyncInterval: d, RPCTimeout: d},
			}

			validateAndApplyDefaults(cfg)

			return cfg.WorkOrder.SyncTimeout == DefaultSyncTimeout &&
				cfg.Enclave.PollInterval == DefaultPollInterval &&
				cfg.Chain.SyncInterval == DefaultSyncInterval &&
				cfg.Chain.RPCTimeout == DefaultRPCTimeout
		},
		gen.IntRange(-1000, 0),
	))

	properties.TestingRun(t)
}

// TestProperty_UnknownBackendsFallBackToDefault
//
// Property: For any unrecognised backend or attestation name, the system SHALL select the
// embedded/simulated default rather than failing at startup.
func TestProperty_UnknownBackendsFallBackToDefault(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxSize = 20

	properties := gopter.NewProperties(parameters)

	properties.Property("unknown names fall back", prop.ForAll(
		func(name string) bool {
			cfg := &Config{
				KV:      KVConfig{Backend: "x-" + name},
				Enclave: EnclaveConfig{Attestation: "x-" + name},
				Chain:   ChainConfig{Backend: "x-" + name},
			}

			validateAndApplyDefaults(cfg)

			return cfg.KV.Backend == KVBackendBadger &&
				cfg.Enclave.Attestation == AttestationSimulated &&
				cfg.Chain.Backend == ChainBackendMemory
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
