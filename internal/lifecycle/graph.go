package lifecycle

import "github.com/gridshare/platform/internal/domain"

// edges is the lifecycle graph of the event log. Events repeating the current
// status (internal events, region payload updates) are always allowed unless
// the status is terminal.
var edges = map[domain.Status][]domain.Status{
	domain.StatusCreated:   {domain.StatusValidated, domain.StatusMalformed},
	domain.StatusMalformed: {domain.StatusValidated},
	domain.StatusValidated: {
		domain.StatusPendingAcknowledgement,
		domain.StatusSentToPermissionAdministrator,
		domain.StatusUnableToSend,
	},
	domain.StatusPendingAcknowledgement: {
		domain.StatusSentToPermissionAdministrator,
		domain.StatusUnableToSend,
	},
	domain.StatusSentToPermissionAdministrator: {
		domain.StatusAccepted,
		domain.StatusRejected,
		domain.StatusInvalid,
		domain.StatusTimedOut,
		domain.StatusUnfulfillable,
	},
	domain.StatusAccepted: {
		domain.StatusFulfilled,
		domain.StatusRevoked,
		domain.StatusTerminated,
		domain.StatusUnfulfillable,
		domain.StatusRequiresExternalTermination,
		domain.StatusExternallyTerminated,
	},
	domain.StatusUnfulfillable: {domain.StatusRequiresExternalTermination},
	domain.StatusRequiresExternalTermination: {
		domain.StatusExternallyTerminated,
		domain.StatusFailedToTerminate,
	},
	domain.StatusFailedToTerminate: {
		domain.StatusRequiresExternalTermination,
		domain.StatusExternallyTerminated,
	},
}

// graphStage orders statuses for classifying rejected edges.
var graphStage = map[domain.Status]int{
	domain.StatusCreated:                       0,
	domain.StatusMalformed:                     0,
	domain.StatusValidated:                     1,
	domain.StatusPendingAcknowledgement:        2,
	domain.StatusSentToPermissionAdministrator: 3,
	domain.StatusUnableToSend:                  3,
	domain.StatusAccepted:                      4,
	domain.StatusRejected:                      4,
	domain.StatusInvalid:                       4,
	domain.StatusTimedOut:                      4,
	domain.StatusUnfulfillable:                 5,
	domain.StatusRevoked:                       5,
	domain.StatusTerminated:                    5,
	domain.StatusFulfilled:                     5,
	domain.StatusRequiresExternalTermination:   6,
	domain.StatusFailedToTerminate:             7,
	domain.StatusExternallyTerminated:          8,
}

// CanTransition reports whether the log may move from one status to another.
func CanTransition(from, to domain.Status) bool {
	if from.Terminal() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition validates appending an event with status next to a log
// whose latest status is last. The first event of a log may carry any status.
func CheckTransition(last domain.Status, hasLast bool, next domain.Status) error {
	if !next.Valid() {
		return &TransitionError{Operation: OpAppend, State: last, Target: next, Kind: FutureState}
	}
	if !hasLast || CanTransition(last, next) {
		return nil
	}
	kind := FutureState
	if last.Terminal() || graphStage[next] <= graphStage[last] {
		kind = PastState
	}
	return &TransitionError{Operation: OpAppend, State: last, Target: next, Kind: kind}
}
