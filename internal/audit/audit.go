package audit

import (
	"fmt"
	"sync"
)

var (
	// globalWriter is the default audit writer.
	globalWriter Writer = NopWriter{}
	globalMu     sync.RWMutex

	// enabled tracks whether audit logging is active.
	enabled bool
)

// Init installs w as the global audit writer. A nil writer disables audit
// logging.
func Init(w Writer) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if w == nil {
		globalWriter = NopWriter{}
		enabled = false
		return nil
	}

	globalWriter = w
	enabled = true
	return nil
}

// InitFile initializes the global audit logger with a file writer.
// An empty path disables audit logging.
func InitFile(path string) error {
	if path == "" {
		return Init(nil)
	}

	w, err := NewFileWriter(path)
	if err != nil {
		return err
	}

	return Init(w)
}

// Close closes the global audit writer.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	err := globalWriter.Close()
	globalWriter = NopWriter{}
	enabled = false
	return err
}

// Enabled returns whether audit logging is active.
func Enabled() bool {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return enabled
}

// Log writes an audit event to the global writer.
//
// IMPORTANT: If audit logging is enabled and this returns an error,
// the calling operation SHOULD fail.
func Log(event *Event) error {
	globalMu.RLock()
	w := globalWriter
	globalMu.RUnlock()

	return w.Write(event)
}

// MustLog writes an audit event and returns an error suitable for
// failing the parent operation if audit logging fails.
//
// Usage:
//
//	if err := audit.MustLog(event); err != nil {
//	    return nil, err // Operation fails if audit fails
//	}
func MustLog(event *Event) error {
	if err := Log(event); err != nil {
		return fmt.Errorf("audit log failed: %w", err)
	}
	return nil
}

// LogKeyGenerated logs a key generation event. The private key is never
// part of the event.
func LogKeyGenerated(path, curve, fingerprint string, success bool) error {
	event := NewEvent(EventKeyGenerated, resultOf(success)).
		WithObject(Object{
			Type:        "key",
			Path:        path,
			Fingerprint: fingerprint,
		}).
		WithContext(Context{
			Curve: curve,
		})

	return MustLog(event)
}

// LogCertCreated logs the construction of a certificate.
func LogCertCreated(id, owner, profile string, success bool) error {
	event := NewEvent(EventCertCreated, resultOf(success)).
		WithObject(Object{
			Type:  "certificate",
			ID:    id,
			Owner: owner,
		}).
		WithContext(Context{
			Profile: profile,
		})

	return MustLog(event)
}

// LogCertSigned logs a signature appended to a certificate.
func LogCertSigned(certID, sigID, signer, curve string, success bool) error {
	event := NewEvent(EventCertSigned, resultOf(success)).
		WithObject(Object{
			Type: "signature",
			ID:   sigID,
		}).
		WithContext(Context{
			Certificate: certID,
			Signer:      signer,
			Curve:       curve,
		})

	return MustLog(event)
}

// LogSignatureAttached logs a pre-built signature added to a certificate.
func LogSignatureAttached(certID, sigID, signer string, success bool, reason string) error {
	event := NewEvent(EventSigAttached, resultOf(success)).
		WithObject(Object{
			Type: "signature",
			ID:   sigID,
		}).
		WithContext(Context{
			Certificate: certID,
			Signer:      signer,
			Reason:      reason,
		})

	return MustLog(event)
}

// LogVerification logs the outcome of verifying a certificate's signatures.
// valid is the number of signatures that verified.
func LogVerification(certID string, valid int, reason string) error {
	eventType := EventSigVerified
	result := ResultSuccess
	if valid == 0 {
		eventType = EventSigRejected
		result = ResultFailure
	}

	event := NewEvent(eventType, result).
		WithObject(Object{
			Type: "certificate",
			ID:   certID,
		}).
		WithContext(Context{
			Count:  valid,
			Reason: reason,
		})

	return MustLog(event)
}

// LogCertTransfer logs a certificate import or export in the given format.
func LogCertTransfer(eventType EventType, id, path, format string, success bool) error {
	event := NewEvent(eventType, resultOf(success)).
		WithObject(Object{
			Type: "certificate",
			ID:   id,
			Path: path,
		}).
		WithContext(Context{
			Format: format,
		})

	return MustLog(event)
}

// LogAnchorsLoaded logs the loading of a trust anchor store.
func LogAnchorsLoaded(path string, count int, success bool, reason string) error {
	event := NewEvent(EventAnchorsLoaded, resultOf(success)).
		WithObject(Object{
			Type: "anchors",
			Path: path,
		}).
		WithContext(Context{
			Count:  count,
			Reason: reason,
		})

	return MustLog(event)
}
