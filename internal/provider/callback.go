package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/lifecycle"
)

// SignatureHeader carries the callback signature: t=<unix>,v1=<hex hmac>.
const SignatureHeader = "X-Region-Signature"

// Callback is a status change reported by the permission administrator.
type Callback struct {
	ID           string        `json:"id"`
	PermissionID string        `json:"permissionId"`
	Status       domain.Status `json:"status"`
	Reason       string        `json:"reason,omitempty"`
}

// callbackOperations maps reported statuses to the operation they perform.
var callbackOperations = map[domain.Status]lifecycle.Operation{
	domain.StatusSentToPermissionAdministrator: lifecycle.OpReceivedPermissionAdministratorResponse,
	domain.StatusUnableToSend:                  lifecycle.OpReceivedPermissionAdministratorResponse,
	domain.StatusAccepted:                      lifecycle.OpAccept,
	domain.StatusRejected:                      lifecycle.OpReject,
	domain.StatusInvalid:                       lifecycle.OpInvalid,
	domain.StatusRevoked:                       lifecycle.OpRevoke,
	domain.StatusTerminated:                    lifecycle.OpTerminate,
}

// Operation returns the lifecycle operation the callback performs.
func (cb *Callback) Operation() (lifecycle.Operation, error) {
	op, ok := callbackOperations[cb.Status]
	if !ok {
		return "", fmt.Errorf("callback status %q is not accepted", cb.Status)
	}
	return op, nil
}

// Event returns the event recording the callback.
func (cb *Callback) Event() domain.PermissionEvent {
	return domain.NewSimpleEvent(cb.PermissionID, cb.Status)
}

// CallbackVerifier checks HMAC-SHA256 signatures on administrator callbacks.
type CallbackVerifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewCallbackVerifier creates a verifier. Signatures older than tolerance
// are rejected.
func NewCallbackVerifier(secret string, tolerance time.Duration) *CallbackVerifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &CallbackVerifier{secret: secret, tolerance: tolerance, now: time.Now}
}

// Sign returns a signature header value for payload at ts.
func (v *CallbackVerifier) Sign(payload []byte, ts time.Time) string {
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, v.mac(timestamp, payload))
}

func (v *CallbackVerifier) mac(timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks sigHeader against payload and decodes the callback.
func (v *CallbackVerifier) Verify(payload []byte, sigHeader string) (*Callback, error) {
	if v.secret == "" {
		return nil, fmt.Errorf("callback secret not configured")
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return nil, fmt.Errorf("invalid signature header format")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	if v.now().Sub(time.Unix(ts, 0)) > v.tolerance {
		return nil, fmt.Errorf("callback timestamp too old")
	}

	expected := v.mac(timestamp, payload)
	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("invalid callback signature")
	}

	var cb Callback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, fmt.Errorf("decode callback: %w", err)
	}
	if cb.PermissionID == "" {
		return nil, fmt.Errorf("callback without permissionId")
	}
	return &cb, nil
}
