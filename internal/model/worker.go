package model

import (
	"encoding/json"
	"fmt"
)

// WorkerType worker implementation kind
type WorkerType int

const (
	WorkerTypeTEESGX WorkerType = 1
	WorkerTypeMPC    WorkerType = 2
	WorkerTypeZK     WorkerType = 3
)

// Valid reports whether t is a known worker type
func (t WorkerType) Valid() bool {
	return t >= WorkerTypeTEESGX && t <= WorkerTypeZK
}

// WorkerStatus worker lifecycle status
type WorkerStatus int

const (
	WorkerStatusActive         WorkerStatus = 1
	WorkerStatusOffline        WorkerStatus = 2
	WorkerStatusDecommissioned WorkerStatus = 3
	WorkerStatusCompromised    WorkerStatus = 4
)

// Valid reports whether s is a known worker status
func (s WorkerStatus) Valid() bool {
	return s >= WorkerStatusActive && s <= WorkerStatusCompromised
}

func (s WorkerStatus) String() string {
	switch s {
	case WorkerStatusActive:
		return "ACTIVE"
	case WorkerStatusOffline:
		return "OFF_LINE"
	case WorkerStatusDecommissioned:
		return "DECOMMISSIONED"
	case WorkerStatusCompromised:
		return "COMPROMISED"
	default:
		return fmt.Sprintf("WorkerStatus(%d)", int(s))
	}
}

// StringList decodes from either a JSON array of strings or a single string
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
		} else {
			*l = StringList{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// Worker record stored in the workers table
type Worker struct {
	WorkerID          string          `json:"workerId"`
	WorkerType        WorkerType      `json:"workerType"`
	OrganizationID    string          `json:"organizationId"`
	ApplicationTypeID StringList      `json:"applicationTypeId"`
	Details           json.RawMessage `json:"details"`
	Status            WorkerStatus    `json:"status"`
}

// WorkerDetails well-known keys of a worker's details blob
type WorkerDetails struct {
	WorkOrderSyncURI     string          `json:"workOrderSyncUri,omitempty"`
	WorkOrderAsyncURI    string          `json:"workOrderAsyncUri,omitempty"`
	WorkOrderNotifyURI   string          `json:"workOrderNotifyUri,omitempty"`
	ReceiptInvocationURI string          `json:"receiptInvocationUri,omitempty"`
	WorkerTypeData       *WorkerTypeData `json:"workerTypeData,omitempty"`
}

// WorkerTypeData attestation data published for a worker
type WorkerTypeData struct {
	VerificationKey        string `json:"verificationKey,omitempty"`
	EncryptionKey          string `json:"encryptionKey,omitempty"`
	EncryptionKeyNonce     string `json:"encryptionKeyNonce,omitempty"`
	EncryptionKeySignature string `json:"encryptionKeySignature,omitempty"`
	EnclaveCertificate     string `json:"enclaveCertificate,omitempty"`
	ProofData              string `json:"proofData,omitempty"`
}

// WorkerRegisterParams params of WorkerRegister
type WorkerRegisterParams struct {
	WorkerID          string          `json:"workerId"`
	WorkerType        WorkerType      `json:"workerType"`
	OrganizationID    string          `json:"organizationId"`
	ApplicationTypeID StringList      `json:"applicationTypeId"`
	Details           json.RawMessage `json:"details"`
}

// WorkerUpdateParams params of WorkerUpdate
type WorkerUpdateParams struct {
	WorkerID string          `json:"workerId"`
	Details  json.RawMessage `json:"details"`
}

// WorkerSetStatusParams params of WorkerSetStatus
type WorkerSetStatusParams struct {
	WorkerID string       `json:"workerId"`
	Status   WorkerStatus `json:"status"`
}

// WorkerIDParams params carrying only a worker id
type WorkerIDParams struct {
	WorkerID string `json:"workerId"`
}

// WorkerLookUpParams filters of WorkerLookUp and WorkerLookUpNext
type WorkerLookUpParams struct {
	WorkerType        *WorkerType `json:"workerType,omitempty"`
	OrganizationID    *string     `json:"organizationId,omitempty"`
	ApplicationTypeID *string     `json:"applicationTypeId,omitempty"`
	LookupTag         LookupTag   `json:"lookupTag,omitempty"`
}

// WorkerView result of WorkerRetrieve
type WorkerView struct {
	WorkerType        WorkerType      `json:"workerType"`
	OrganizationID    string          `json:"organizationId"`
	ApplicationTypeID StringList      `json:"applicationTypeId"`
	Details           json.RawMessage `json:"details"`
	Status            WorkerStatus    `json:"status"`
}

// View projects a worker onto the WorkerRetrieve result shape
func (w *Worker) View() *WorkerView {
	return &WorkerView{
		WorkerType:        w.WorkerType,
		OrganizationID:    w.OrganizationID,
		ApplicationTypeID: w.ApplicationTypeID,
		Details:           w.Details,
		Status:            w.Status,
	}
}

// Registry record stored in the registries table
type Registry struct {
	OrganizationID string       `json:"organizationId"`
	URI            string       `json:"uri"`
	SCAddr         string       `json:"scAddr"`
	AppTypeIDs     StringList   `json:"appTypeIds"`
	Status         WorkerStatus `json:"status"`
}

// RegistryLookUpParams filters of RegistryLookUp and RegistryLookUpNext
type RegistryLookUpParams struct {
	AppTypeID *string   `json:"appTypeId,omitempty"`
	LookupTag LookupTag `json:"lookupTag,omitempty"`
}

// RegistryIDParams params carrying only an organization id
type RegistryIDParams struct {
	OrganizationID string `json:"organizationId"`
}
