package domain

import "fmt"

// Status is the PermissionProcessStatus a permission request is in.
type Status string

const (
	StatusCreated                       Status = "CREATED"
	StatusMalformed                     Status = "MALFORMED"
	StatusValidated                     Status = "VALIDATED"
	StatusUnableToSend                  Status = "UNABLE_TO_SEND"
	StatusPendingAcknowledgement        Status = "PENDING_PERMISSION_ADMINISTRATOR_ACKNOWLEDGEMENT"
	StatusSentToPermissionAdministrator Status = "SENT_TO_PERMISSION_ADMINISTRATOR"
	StatusTimedOut                      Status = "TIMED_OUT"
	StatusAccepted                      Status = "ACCEPTED"
	StatusRejected                      Status = "REJECTED"
	StatusInvalid                       Status = "INVALID"
	StatusRevoked                       Status = "REVOKED"
	StatusTerminated                    Status = "TERMINATED"
	StatusFulfilled                     Status = "FULFILLED"
	StatusUnfulfillable                 Status = "UNFULFILLABLE"
	StatusRequiresExternalTermination   Status = "REQUIRES_EXTERNAL_TERMINATION"
	StatusFailedToTerminate             Status = "FAILED_TO_TERMINATE"
	StatusExternallyTerminated          Status = "EXTERNALLY_TERMINATED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusCreated,
	StatusMalformed,
	StatusValidated,
	StatusUnableToSend,
	StatusPendingAcknowledgement,
	StatusSentToPermissionAdministrator,
	StatusTimedOut,
	StatusAccepted,
	StatusRejected,
	StatusInvalid,
	StatusRevoked,
	StatusTerminated,
	StatusFulfilled,
	StatusUnfulfillable,
	StatusRequiresExternalTermination,
	StatusFailedToTerminate,
	StatusExternallyTerminated,
}

// terminalStatuses have no outgoing lifecycle edges.
var terminalStatuses = map[Status]bool{
	StatusInvalid:              true,
	StatusTerminated:           true,
	StatusFulfilled:            true,
	StatusRevoked:              true,
	StatusExternallyTerminated: true,
	StatusUnableToSend:         true,
	StatusRejected:             true,
	StatusTimedOut:             true,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no event may move a request out of s.
func (s Status) Terminal() bool {
	return terminalStatuses[s]
}

// ParseStatus converts a persisted status string back into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown permission status: %q", s)
	}
	return st, nil
}
