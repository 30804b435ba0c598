package workorder

import (
	"encoding/json"
	"fmt"

	"trustcompute/internal/model"
)

// State lifecycle state derived from table presence
type State int

const (
	StatePurged State = iota
	StateSubmitted
	StateProcessing
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StatePurged:
		return "PURGED"
	case StateSubmitted:
		return "SUBMITTED"
	case StateProcessing:
		return "PROCESSING"
	case StateCompleted:
		return "COMPLETED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SubmitOutcome result of Submit
type SubmitOutcome int

const (
	SubmitAccepted SubmitOutcome = iota
	SubmitAlreadyExists
	SubmitBusy
)

func (o SubmitOutcome) String() string {
	switch o {
	case SubmitAccepted:
		return "ACCEPTED"
	case SubmitAlreadyExists:
		return "ALREADY_EXISTS"
	case SubmitBusy:
		return "BUSY"
	default:
		return fmt.Sprintf("SubmitOutcome(%d)", int(o))
	}
}

// ResultStatus kind of a GetResult answer
type ResultStatus int

const (
	ResultNotFound ResultStatus = iota
	ResultPending
	ResultReady
)

// Result answer of GetResult. When Status is ResultReady exactly one of
// Result and Error is set.
type Result struct {
	Status ResultStatus
	Result json.RawMessage
	Error  *model.RPCError
}

// SchedulerState in-memory admission FIFO mirroring the persisted work orders.
// Rebuilt by BootRecover, then only mutated under the store lock.
type SchedulerState struct {
	Queue []string
	Count int
}

func (s SchedulerState) clone() SchedulerState {
	return SchedulerState{Queue: append([]string{}, s.Queue...), Count: s.Count}
}

// remove drops an evicted id. Count always drops since the id may have been
// admitted by another store sharing the KV.
func (s *SchedulerState) remove(id string) {
	for i, queued := range s.Queue {
		if queued == id {
			s.Queue = append(s.Queue[:i], s.Queue[i+1:]...)
			break
		}
	}
	if s.Count > 0 {
		s.Count--
	}
}

// RecoveredOrder outcome of ProcessingRecover for one id
type RecoveredOrder struct {
	WorkOrderID string `json:"workOrderId"`
	Rescheduled bool   `json:"rescheduled"`
	Processed   string `json:"processed,omitempty"` // SUCCESS or FAILED when not rescheduled
	Response    string `json:"-"`
}
