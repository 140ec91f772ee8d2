package lifecycle

import (
	"fmt"

	"github.com/gridshare/platform/internal/domain"
)

// Operation is a lifecycle operation a region connector may attempt.
type Operation string

const (
	OpValidate                                Operation = "validate"
	OpSendToPermissionAdministrator           Operation = "sendToPermissionAdministrator"
	OpReceivedPermissionAdministratorResponse Operation = "receivedPermissionAdministratorResponse"
	OpAccept                                  Operation = "accept"
	OpReject                                  Operation = "reject"
	OpInvalid                                 Operation = "invalid"
	OpTerminate                               Operation = "terminate"
	OpRevoke                                  Operation = "revoke"
	OpFulfill                                 Operation = "fulfill"
	OpTimeLimit                               Operation = "timeLimit"
	OpTimeOut                                 Operation = "timeOut"
	// OpAppend names raw status changes checked by CheckTransition.
	OpAppend Operation = "append"
)

// Operations lists every operation exposed by a State.
var Operations = []Operation{
	OpValidate,
	OpSendToPermissionAdministrator,
	OpReceivedPermissionAdministratorResponse,
	OpAccept,
	OpReject,
	OpInvalid,
	OpTerminate,
	OpRevoke,
	OpFulfill,
	OpTimeLimit,
	OpTimeOut,
}

// operationStage orders operations along the lifecycle.
var operationStage = map[Operation]int{
	OpValidate:                                0,
	OpSendToPermissionAdministrator:           1,
	OpReceivedPermissionAdministratorResponse: 2,
	OpAccept:                                  3,
	OpReject:                                  3,
	OpInvalid:                                 3,
	OpTimeOut:                                 3,
	OpTerminate:                               4,
	OpRevoke:                                  4,
	OpFulfill:                                 4,
	OpTimeLimit:                               4,
}

// stateStage orders states for the past/future classification. States not
// listed sit after every operation.
var stateStage = map[domain.Status]int{
	domain.StatusCreated:                       0,
	domain.StatusMalformed:                     0,
	domain.StatusValidated:                     1,
	domain.StatusPendingAcknowledgement:        2,
	domain.StatusSentToPermissionAdministrator: 3,
	domain.StatusAccepted:                      4,
}

const lastStage = 5

// transitions is the dispatch table: state x operation -> allowed outcomes.
// The first outcome is the one Next returns.
var transitions = map[domain.Status]map[Operation][]domain.Status{
	domain.StatusCreated: {
		OpValidate: {domain.StatusValidated, domain.StatusMalformed},
	},
	domain.StatusMalformed: {
		OpValidate: {domain.StatusValidated, domain.StatusMalformed},
	},
	domain.StatusValidated: {
		OpSendToPermissionAdministrator: {
			domain.StatusPendingAcknowledgement,
			domain.StatusSentToPermissionAdministrator,
			domain.StatusUnableToSend,
		},
	},
	domain.StatusPendingAcknowledgement: {
		OpReceivedPermissionAdministratorResponse: {
			domain.StatusSentToPermissionAdministrator,
			domain.StatusUnableToSend,
		},
	},
	domain.StatusSentToPermissionAdministrator: {
		OpAccept:  {domain.StatusAccepted},
		OpReject:  {domain.StatusRejected},
		OpInvalid: {domain.StatusInvalid},
		OpTimeOut: {domain.StatusTimedOut},
	},
	domain.StatusAccepted: {
		OpTerminate: {domain.StatusTerminated},
		OpRevoke:    {domain.StatusRevoked},
		OpFulfill:   {domain.StatusFulfilled},
		OpTimeLimit: {domain.StatusFulfilled},
	},
}

// State is the lifecycle state of a permission request. It is a plain value:
// every State exposes the same operations and answers them from the
// dispatch table.
type State struct {
	status domain.Status
}

// StateOf returns the State for a status.
func StateOf(status domain.Status) State {
	return State{status: status}
}

// Status returns the status associated with the state.
func (s State) Status() domain.Status { return s.status }

func (s State) String() string { return string(s.status) }

// Allows reports whether op is legal in s.
func (s State) Allows(op Operation) bool {
	_, ok := transitions[s.status][op]
	return ok
}

// Exposed returns the operations legal in s, in lifecycle order.
func (s State) Exposed() []Operation {
	var ops []Operation
	for _, op := range Operations {
		if s.Allows(op) {
			ops = append(ops, op)
		}
	}
	return ops
}

// Outcomes returns every status op may lead to from s.
func (s State) Outcomes(op Operation) ([]domain.Status, error) {
	out, ok := transitions[s.status][op]
	if !ok {
		return nil, s.reject(op)
	}
	return append([]domain.Status(nil), out...), nil
}

// Next returns the primary outcome of op, or a *TransitionError.
func (s State) Next(op Operation) (State, error) {
	out, err := s.Outcomes(op)
	if err != nil {
		return s, err
	}
	return StateOf(out[0]), nil
}

// NextWithOutcome checks that op may lead to target from s.
func (s State) NextWithOutcome(op Operation, target domain.Status) (State, error) {
	out, err := s.Outcomes(op)
	if err != nil {
		return s, err
	}
	for _, st := range out {
		if st == target {
			return StateOf(st), nil
		}
	}
	return s, fmt.Errorf("%w: %s from %s cannot lead to %s", ErrUnexpectedOutcome, op, s.status, target)
}

func (s State) Validate() (State, error)  { return s.Next(OpValidate) }
func (s State) Accept() (State, error)    { return s.Next(OpAccept) }
func (s State) Reject() (State, error)    { return s.Next(OpReject) }
func (s State) Invalid() (State, error)   { return s.Next(OpInvalid) }
func (s State) Terminate() (State, error) { return s.Next(OpTerminate) }
func (s State) Revoke() (State, error)    { return s.Next(OpRevoke) }
func (s State) Fulfill() (State, error)   { return s.Next(OpFulfill) }
func (s State) TimeLimit() (State, error) { return s.Next(OpTimeLimit) }
func (s State) TimeOut() (State, error)   { return s.Next(OpTimeOut) }

func (s State) SendToPermissionAdministrator() (State, error) {
	return s.Next(OpSendToPermissionAdministrator)
}

func (s State) ReceivedPermissionAdministratorResponse() (State, error) {
	return s.Next(OpReceivedPermissionAdministratorResponse)
}

func (s State) reject(op Operation) error {
	kind := FutureState
	if s.stage() > operationStage[op] {
		kind = PastState
	}
	return &TransitionError{Operation: op, State: s.status, Kind: kind}
}

func (s State) stage() int {
	if st, ok := stateStage[s.status]; ok {
		return st
	}
	return lastStage
}
