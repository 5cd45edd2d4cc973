// Package audit provides tamper-evident audit logging for certificate and
// signature operations.
//
// Audit logs are separate from technical logs and designed for:
//   - Operator accountability in charging PKIs
//   - SIEM integration
//   - Tamper evidence via cryptographic hash chaining
//
// Key principles:
//   - Audit failure = Operation failure
//   - Never log secrets (private keys, scalars)
//   - All timestamps in UTC
//   - Hash chain for integrity verification
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// EventType represents the category of audit event.
type EventType string

const (
	// Key events
	EventKeyGenerated EventType = "KEY_GENERATED"

	// Certificate events
	EventCertCreated   EventType = "CERT_CREATED"
	EventCertSigned    EventType = "CERT_SIGNED"
	EventCertImported  EventType = "CERT_IMPORTED"
	EventCertExported  EventType = "CERT_EXPORTED"
	EventCertDeleted   EventType = "CERT_DELETED"
	EventSigAttached   EventType = "SIGNATURE_ATTACHED"
	EventSigVerified   EventType = "SIGNATURE_VERIFIED"
	EventSigRejected   EventType = "SIGNATURE_REJECTED"
	EventAnchorsLoaded EventType = "ANCHORS_LOADED"

	// Service events
	EventServerStarted EventType = "SERVER_STARTED"
	EventServerStopped EventType = "SERVER_STOPPED"
)

// Result represents the outcome of an audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Actor represents who performed the action.
type Actor struct {
	Type string `json:"type"`           // "user", "system", "service"
	ID   string `json:"id"`             // username or service identifier
	Host string `json:"host,omitempty"` // hostname where action occurred
}

// Object represents what was acted upon.
type Object struct {
	Type        string `json:"type"`                  // "certificate", "signature", "key", "anchors"
	ID          string `json:"id,omitempty"`          // certificate or signature identifier
	Owner       string `json:"owner,omitempty"`       // certificate owner name
	Fingerprint string `json:"fingerprint,omitempty"` // public key fingerprint
	Path        string `json:"path,omitempty"`        // file or store path
}

// Context provides additional details about the operation.
type Context struct {
	Profile     string `json:"profile,omitempty"`     // certificate profile used
	Curve       string `json:"curve,omitempty"`       // key curve
	Signer      string `json:"signer,omitempty"`      // signer name
	Certificate string `json:"certificate,omitempty"` // signed certificate identifier
	Format      string `json:"format,omitempty"`      // export format
	Protocol    string `json:"protocol,omitempty"`    // ISO 15118 protocol version
	Count       int    `json:"count,omitempty"`       // number of items affected
	Reason      string `json:"reason,omitempty"`      // failure reason
	Remote      string `json:"remote,omitempty"`      // remote address for API calls
}

// Event represents a single audit log entry.
type Event struct {
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"` // RFC3339 UTC
	Actor     Actor     `json:"actor"`
	Object    Object    `json:"object"`
	Context   Context   `json:"context,omitempty"`
	Result    Result    `json:"result"`
	HashPrev  string    `json:"hash_prev"` // SHA-256 hash of previous event
	Hash      string    `json:"hash"`      // SHA-256 hash of this event
}

// NewEvent creates a new audit event with current timestamp and actor info.
func NewEvent(eventType EventType, result Result) *Event {
	hostname, _ := os.Hostname()
	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME") // Windows
	}
	if username == "" {
		username = "unknown"
	}

	return &Event{
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor: Actor{
			Type: "user",
			ID:   username,
			Host: hostname,
		},
		Result: result,
	}
}

// WithObject sets the object field.
func (e *Event) WithObject(obj Object) *Event {
	e.Object = obj
	return e
}

// WithContext sets the context field.
func (e *Event) WithContext(ctx Context) *Event {
	e.Context = ctx
	return e
}

// WithActor overrides the default actor.
func (e *Event) WithActor(actor Actor) *Event {
	e.Actor = actor
	return e
}

// Validate checks that required fields are present.
func (e *Event) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.Timestamp == "" {
		return fmt.Errorf("timestamp is required")
	}
	if e.Actor.Type == "" || e.Actor.ID == "" {
		return fmt.Errorf("actor type and id are required")
	}
	if e.Result == "" {
		return fmt.Errorf("result is required")
	}
	return nil
}

// CanonicalJSON returns the event as canonical JSON for hashing.
// Excludes the Hash field to allow hash calculation.
func (e *Event) CanonicalJSON() ([]byte, error) {
	type eventForHash struct {
		EventType EventType `json:"event_type"`
		Timestamp string    `json:"timestamp"`
		Actor     Actor     `json:"actor"`
		Object    Object    `json:"object"`
		Context   Context   `json:"context,omitempty"`
		Result    Result    `json:"result"`
		HashPrev  string    `json:"hash_prev"`
	}

	return json.Marshal(eventForHash{
		EventType: e.EventType,
		Timestamp: e.Timestamp,
		Actor:     e.Actor,
		Object:    e.Object,
		Context:   e.Context,
		Result:    e.Result,
		HashPrev:  e.HashPrev,
	})
}

// JSON returns the full event as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

func resultOf(success bool) Result {
	if success {
		return ResultSuccess
	}
	return ResultFailure
}
