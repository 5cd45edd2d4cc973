package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/remiblancher/evpki/internal/api/dto"
	apierrors "github.com/remiblancher/evpki/internal/api/errors"
	"github.com/remiblancher/evpki/internal/api/metrics"
	"github.com/remiblancher/evpki/internal/api/middleware"
	"github.com/remiblancher/evpki/internal/audit"
	"github.com/remiblancher/evpki/internal/canonical"
	"github.com/remiblancher/evpki/internal/certificate"
	"github.com/remiblancher/evpki/internal/crypto"
	"github.com/remiblancher/evpki/internal/profile"
	"github.com/remiblancher/evpki/internal/store"
	"github.com/remiblancher/evpki/internal/trust"
)

const rootName = "V2G Root CA"

type testEnv struct {
	handler http.Handler
	store   *store.Store
	root    *crypto.KeyPair
	events  *audit.MemoryWriter
}

// =============================================================================
// Health Tests
// =============================================================================

func TestU_Router_Health(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := do(t, env.handler, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp dto.HealthResponse
	decode(t, rec, &resp)
	if resp.Status != "ok" {
		t.Errorf("Status = %s, want ok", resp.Status)
	}
	if resp.Version != "test" {
		t.Errorf("Version = %s, want test", resp.Version)
	}
}

func TestU_Router_Ready(t *testing.T) {
	t.Run("[Unit] Ready: initialized store", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := do(t, env.handler, http.MethodGet, "/ready", nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET /ready = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("[Unit] Ready: missing store directory", func(t *testing.T) {
		profiles := profile.NewProfileStore("")
		if err := profiles.Load(); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		h := New(&Config{
			Version:  "test",
			Store:    store.NewStore(t.TempDir() + "/missing"),
			Profiles: profiles,
		})
		rec := do(t, h, http.MethodGet, "/ready", nil, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET /ready = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestU_Router_OpenAPI(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := do(t, env.handler, http.MethodGet, "/api/openapi.yaml", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/openapi.yaml = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/certificates/{id}/verify") {
		t.Error("OpenAPI document does not describe the verify endpoint")
	}
}

// =============================================================================
// Certificate Tests
// =============================================================================

func TestF_Certificates_CreateGetList(t *testing.T) {
	env := newTestEnv(t, nil)
	subject := mustKeyPair(t, crypto.CurveSecp256r1)

	created := createContract(t, env, subject)

	rec := do(t, env.handler, http.MethodGet, "/api/v1/certificates/"+created.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET certificate = %d: %s", rec.Code, rec.Body.String())
	}
	cert, err := certificate.ParseJSON(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if cert.ID().String() != created.ID {
		t.Errorf("ID = %s, want %s", cert.ID(), created.ID)
	}
	if cert.Owner().Name != "Mobility Operator AG" {
		t.Errorf("Owner = %s", cert.Owner().Name)
	}
	wantNotAfter := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(2 * 365 * 24 * time.Hour)
	if !cert.NotAfter().Equal(wantNotAfter) {
		t.Errorf("NotAfter = %s, want %s", cert.NotAfter(), wantNotAfter)
	}

	t.Run("[Functional] Get: CBOR", func(t *testing.T) {
		rec := do(t, env.handler, http.MethodGet, "/api/v1/certificates/"+created.ID, nil,
			map[string]string{"Accept": "application/cbor"})
		if rec.Code != http.StatusOK {
			t.Fatalf("GET certificate (cbor) = %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/cbor" {
			t.Errorf("Content-Type = %s", ct)
		}
		doc, err := canonical.UnmarshalCBOR(rec.Body.Bytes())
		if err != nil {
			t.Fatalf("UnmarshalCBOR() error = %v", err)
		}
		fromCBOR, err := certificate.Parse(doc)
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if fromCBOR.ID().String() != created.ID {
			t.Errorf("CBOR ID = %s, want %s", fromCBOR.ID(), created.ID)
		}
	})

	t.Run("[Functional] List", func(t *testing.T) {
		rec := do(t, env.handler, http.MethodGet, "/api/v1/certificates?limit=10", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET certificates = %d", rec.Code)
		}
		var resp dto.CertificateListResponse
		decode(t, rec, &resp)
		if resp.Pagination.Total != 1 || len(resp.Certificates) != 1 {
			t.Fatalf("List() total = %d, len = %d, want 1", resp.Pagination.Total, len(resp.Certificates))
		}
		if resp.Certificates[0].ID != created.ID {
			t.Errorf("List()[0].ID = %s", resp.Certificates[0].ID)
		}
		if resp.Pagination.HasMore {
			t.Error("HasMore = true, want false")
		}
	})

	t.Run("[Functional] List: invalid limit", func(t *testing.T) {
		rec := do(t, env.handler, http.MethodGet, "/api/v1/certificates?limit=abc", nil, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET certificates?limit=abc = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	events := env.events.Events()
	if len(events) == 0 || events[0].EventType != audit.EventCertCreated {
		t.Errorf("audit events = %v, want CERT_CREATED first", events)
	}
}

func TestU_Certificates_Create_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	p256 := mustKeyPair(t, crypto.CurveSecp256r1)
	p521 := mustKeyPair(t, crypto.CurveSecp521r1)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{
			name:   "invalid JSON",
			body:   "{",
			status: http.StatusBadRequest,
			code:   apierrors.CodeInvalidRequest,
		},
		{
			name:   "missing profile",
			body:   `{"owner":{"name":"x"}}`,
			status: http.StatusBadRequest,
			code:   apierrors.CodeValidation,
		},
		{
			name:   "unknown profile",
			body:   createBody(t, "no-such-profile", p256.PublicKey),
			status: http.StatusNotFound,
			code:   apierrors.CodeProfileNotFound,
		},
		{
			name:   "curve mismatch",
			body:   createBody(t, "contract", p521.PublicKey),
			status: http.StatusUnprocessableEntity,
			code:   apierrors.CodeKeyMismatch,
		},
		{
			name:   "missing keys",
			body:   `{"profile":"contract","owner":{"name":"x"}}`,
			status: http.StatusBadRequest,
			code:   apierrors.CodeValidation,
		},
		{
			name:   "invalid point",
			body:   `{"profile":"contract","owner":{"name":"x"},"public_keys":[{"curve":"secp256r1","point":"04ff"}]}`,
			status: http.StatusBadRequest,
			code:   apierrors.CodeCryptoError,
		},
	}

	for _, tt := range tests {
		t.Run("[Unit] Create: "+tt.name, func(t *testing.T) {
			rec := do(t, env.handler, http.MethodPost, "/api/v1/certificates", []byte(tt.body), nil)
			if rec.Code != tt.status {
				t.Fatalf("POST certificates = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			var apiErr dto.APIError
			decode(t, rec, &apiErr)
			if apiErr.Code != tt.code {
				t.Errorf("code = %s, want %s", apiErr.Code, tt.code)
			}
		})
	}
}

func TestF_Certificates_ImportDocument(t *testing.T) {
	env := newTestEnv(t, nil)
	subject := mustKeyPair(t, crypto.CurveSecp256r1)
	cert := newLocalCertificate(t, subject.PublicKey)
	if _, err := cert.Sign(env.root.PrivateKey, certificate.SignOptions{Name: rootName, PublicKey: env.root.PublicKey}); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	doc, err := cert.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	body, _ := json.Marshal(dto.CertificateCreateRequest{Document: doc})

	rec := do(t, env.handler, http.MethodPost, "/api/v1/certificates", body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST certificates (import) = %d: %s", rec.Code, rec.Body.String())
	}
	var resp dto.CertificateResponse
	decode(t, rec, &resp)
	if resp.ID != cert.ID().String() {
		t.Errorf("ID = %s, want %s", resp.ID, cert.ID())
	}

	t.Run("[Functional] Import: tampered document", func(t *testing.T) {
		tampered := strings.Replace(string(doc), "Charge Point Operator", "Someone Else", 1)
		body, _ := json.Marshal(dto.CertificateCreateRequest{Document: json.RawMessage(tampered)})
		rec := do(t, env.handler, http.MethodPost, "/api/v1/certificates", body, nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("POST tampered = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
		}
	})
}

func TestF_Certificates_AttachAndVerify(t *testing.T) {
	env := newTestEnv(t, nil)
	subject := mustKeyPair(t, crypto.CurveSecp256r1)
	created := createContract(t, env, subject)
	cert := fetchCertificate(t, env, created.ID)

	sig, err := certificate.Sign(cert, env.root.PrivateKey, certificate.SignOptions{
		Name:      rootName,
		PublicKey: env.root.PublicKey,
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	path := "/api/v1/certificates/" + created.ID

	rec := do(t, env.handler, http.MethodPost, path+"/signatures", marshalDoc(t, sig.ToJSON(false, "")), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST signatures = %d: %s", rec.Code, rec.Body.String())
	}
	var attached dto.SignatureAttachResponse
	decode(t, rec, &attached)
	if attached.SignatureID != sig.ID().String() || attached.Signatures != 1 {
		t.Errorf("attach = %+v, want signature %s of 1", attached, sig.ID())
	}

	t.Run("[Functional] Attach: idempotent", func(t *testing.T) {
		rec := do(t, env.handler, http.MethodPost, path+"/signatures", marshalDoc(t, sig.ToJSON(false, "")), nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("POST signatures again = %d", rec.Code)
		}
		var again dto.SignatureAttachResponse
		decode(t, rec, &again)
		if again.Signatures != 1 {
			t.Errorf("Signatures = %d, want 1", again.Signatures)
		}
	})

	t.Run("[Functional] Verify: embedded keys", func(t *testing.T) {
		rec := do(t, env.handler, http.MethodPost, path+"/verify", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("POST verify = %d: %s", rec.Code, rec.Body.String())
		}
		var resp dto.CertificateVerifyResponse
		decode(t, rec, &resp)
		if !resp.Valid || len(resp.Signatures) != 1 {
			t.Errorf("verify = %+v, want one valid signature", resp)
		}
	})

	t.Run("[Functional] Verify: foreign key", func(t *testing.T) {
		other := mustKeyPair(t, crypto.CurveSecp256r1)
		body, _ := json.Marshal(dto.CertificateVerifyRequest{PublicKey: keyInfo(other.PublicKey)})
		rec := do(t, env.handler, http.MethodPost, path+"/verify", body, nil)
		var resp dto.CertificateVerifyResponse
		decode(t, rec, &resp)
		if resp.Valid {
			t.Error("Valid = true with a key that differs from the embedded one")
		}
	})

	t.Run("[Functional] Verify: protocol anchors", func(t *testing.T) {
		body, _ := json.Marshal(dto.CertificateVerifyRequest{
			Protocol: "ISO 15118-20",
			At:       "2024-06-01T00:00:00.000Z",
		})
		rec := do(t, env.handler, http.MethodPost, path+"/verify", body, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("POST verify = %d: %s", rec.Code, rec.Body.String())
		}
		var resp dto.CertificateVerifyResponse
		decode(t, rec, &resp)
		if !resp.Valid || !resp.InWindow {
			t.Fatalf("verify = %+v, want valid and in window", resp)
		}
		if len(resp.Anchors) != 1 || resp.Anchors[0] != rootName {
			t.Errorf("Anchors = %v, want [%s]", resp.Anchors, rootName)
		}
	})

	t.Run("[Functional] Verify: anchor not provisioned for protocol", func(t *testing.T) {
		body, _ := json.Marshal(dto.CertificateVerifyRequest{Protocol: "ISO 15118-2", At: "2024-06-01T00:00:00.000Z"})
		rec := do(t, env.handler, http.MethodPost, path+"/verify", body, nil)
		var resp dto.CertificateVerifyResponse
		decode(t, rec, &resp)
		if resp.Valid {
			t.Error("Valid = true without an anchor serving ISO 15118-2")
		}
	})

	t.Run("[Functional] Verify: unknown protocol", func(t *testing.T) {
		body, _ := json.Marshal(dto.CertificateVerifyRequest{Protocol: "DIN 70121"})
		rec := do(t, env.handler, http.MethodPost, path+"/verify", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("POST verify = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestU_Certificates_AttachSignature_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	subject := mustKeyPair(t, crypto.CurveSecp256r1)
	created := createContract(t, env, subject)
	cert := fetchCertificate(t, env, created.ID)
	path := "/api/v1/certificates/" + created.ID + "/signatures"

	t.Run("[Unit] AttachSignature: keyless signature", func(t *testing.T) {
		sig, err := certificate.Sign(cert, env.root.PrivateKey, certificate.SignOptions{Name: rootName})
		if err != nil {
			t.Fatalf("Sign() error = %v", err)
		}
		rec := do(t, env.handler, http.MethodPost, path, marshalDoc(t, sig.ToJSON(false, "")), nil)
		assertError(t, rec, http.StatusUnprocessableEntity, apierrors.CodeMissingKey)
	})

	t.Run("[Unit] AttachSignature: signature over another certificate", func(t *testing.T) {
		other := newLocalCertificate(t, subject.PublicKey)
		sig, err := certificate.Sign(other, env.root.PrivateKey, certificate.SignOptions{Name: rootName, PublicKey: env.root.PublicKey})
		if err != nil {
			t.Fatalf("Sign() error = %v", err)
		}
		rec := do(t, env.handler, http.MethodPost, path, marshalDoc(t, sig.ToJSON(false, "")), nil)
		assertError(t, rec, http.StatusUnprocessableEntity, apierrors.CodeSignatureInvalid)
	})

	t.Run("[Unit] AttachSignature: unknown certificate", func(t *testing.T) {
		unknown := strings.Repeat("0", 64)
		rec := do(t, env.handler, http.MethodPost, "/api/v1/certificates/"+unknown+"/signatures", []byte(`{"name":"x","r":"01","s":"01"}`), nil)
		assertError(t, rec, http.StatusNotFound, apierrors.CodeCertNotFound)
	})

	t.Run("[Unit] AttachSignature: empty body", func(t *testing.T) {
		rec := do(t, env.handler, http.MethodPost, path, nil, nil)
		assertError(t, rec, http.StatusBadRequest, apierrors.CodeInvalidRequest)
	})

	rec := do(t, env.handler, http.MethodGet, "/api/v1/certificates/"+created.ID, nil, nil)
	stored, err := certificate.ParseJSON(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if n := len(stored.Signatures()); n != 0 {
		t.Errorf("stored signatures = %d, want 0 after rejected attachments", n)
	}
}

func TestU_Certificates_Identify(t *testing.T) {
	env := newTestEnv(t, nil)
	subject := mustKeyPair(t, crypto.CurveSecp256r1)
	cert := newLocalCertificate(t, subject.PublicKey)
	data, err := cert.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}

	t.Run("[Unit] Identify: matching identifier", func(t *testing.T) {
		rec := do(t, env.handler, http.MethodPost, "/api/v1/certificates/identify", data, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("POST identify = %d: %s", rec.Code, rec.Body.String())
		}
		var resp dto.IdentifyResponse
		decode(t, rec, &resp)
		if resp.ID != cert.ID().String() || !resp.Matches {
			t.Errorf("identify = %+v, want %s matching", resp, cert.ID())
		}
	})

	t.Run("[Unit] Identify: wrong claimed identifier", func(t *testing.T) {
		doc := cert.ToJSON(false)
		doc["@id"] = strings.Repeat("a", 64)
		rec := do(t, env.handler, http.MethodPost, "/api/v1/certificates/identify", marshalDoc(t, doc), nil)
		var resp dto.IdentifyResponse
		decode(t, rec, &resp)
		if resp.Matches || resp.ID != cert.ID().String() {
			t.Errorf("identify = %+v, want mismatch against %s", resp, cert.ID())
		}
	})
}

func TestU_Certificates_Delete(t *testing.T) {
	env := newTestEnv(t, nil)
	created := createContract(t, env, mustKeyPair(t, crypto.CurveSecp256r1))
	path := "/api/v1/certificates/" + created.ID

	rec := do(t, env.handler, http.MethodDelete, path, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE = %d, want %d", rec.Code, http.StatusNoContent)
	}
	rec = do(t, env.handler, http.MethodGet, path, nil, nil)
	assertError(t, rec, http.StatusNotFound, apierrors.CodeCertNotFound)

	rec = do(t, env.handler, http.MethodGet, "/api/v1/certificates/NOT-AN-ID", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("GET invalid id = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// =============================================================================
// Anchor and Profile Tests
// =============================================================================

func TestU_Anchors_List(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := do(t, env.handler, http.MethodGet, "/api/v1/anchors", nil, nil)
	var all dto.AnchorListResponse
	decode(t, rec, &all)
	if len(all.Anchors) != 1 || all.Anchors[0].Name != rootName {
		t.Fatalf("anchors = %+v", all.Anchors)
	}
	if all.Anchors[0].PublicKey.Fingerprint != env.root.PublicKey.Fingerprint() {
		t.Error("anchor fingerprint does not match root key")
	}

	rec = do(t, env.handler, http.MethodGet, "/api/v1/anchors?protocol=ISO%2015118-2", nil, nil)
	var filtered dto.AnchorListResponse
	decode(t, rec, &filtered)
	if len(filtered.Anchors) != 0 {
		t.Errorf("anchors for ISO 15118-2 = %d, want 0", len(filtered.Anchors))
	}
}

func TestU_Profiles(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := do(t, env.handler, http.MethodGet, "/api/v1/profiles", nil, nil)
	var list dto.ProfileListResponse
	decode(t, rec, &list)
	found := false
	for _, p := range list.Profiles {
		if p.Name == "contract" {
			found = true
		}
	}
	if !found {
		t.Error("profile list does not contain contract")
	}

	rec = do(t, env.handler, http.MethodGet, "/api/v1/profiles/root-ca", nil, nil)
	var root dto.ProfileInfo
	decode(t, rec, &root)
	if !root.IsIssuer {
		t.Error("root-ca IsIssuer = false")
	}

	rec = do(t, env.handler, http.MethodGet, "/api/v1/profiles/nope", nil, nil)
	assertError(t, rec, http.StatusNotFound, apierrors.CodeProfileNotFound)
}

// =============================================================================
// Middleware Integration Tests
// =============================================================================

func TestF_Router_Metrics(t *testing.T) {
	env := newTestEnv(t, nil)
	_ = do(t, env.handler, http.MethodGet, "/api/v1/profiles", nil, nil)

	rec := do(t, env.handler, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "evpki_http_requests_total") {
		t.Error("metrics output lacks evpki_http_requests_total")
	}
	if !strings.Contains(body, `route="/api/v1/profiles`) {
		t.Error("metrics output lacks the profiles route label")
	}
}

func TestF_Router_RateLimit(t *testing.T) {
	env := newTestEnv(t, middleware.NewRateLimiter(0.001, 1, time.Minute))

	first := do(t, env.handler, http.MethodGet, "/api/v1/profiles", nil, nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first request = %d, want %d", first.Code, http.StatusOK)
	}
	second := do(t, env.handler, http.MethodGet, "/api/v1/profiles", nil, nil)
	assertError(t, second, http.StatusTooManyRequests, apierrors.CodeRateLimited)

	// Health is outside the limited group.
	health := do(t, env.handler, http.MethodGet, "/health", nil, nil)
	if health.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want %d", health.Code, http.StatusOK)
	}
}

func TestU_Router_RequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := do(t, env.handler, http.MethodGet, "/health", nil, map[string]string{"X-Request-ID": "abc-123"})
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
	rec = do(t, env.handler, http.MethodGet, "/health", nil, nil)
	if got := rec.Header().Get("X-Request-ID"); len(got) != 32 {
		t.Errorf("generated X-Request-ID = %q, want 32 hex characters", got)
	}
}

// =============================================================================
// Helpers
// =============================================================================

func newTestEnv(t *testing.T, limiter *middleware.RateLimiter) *testEnv {
	t.Helper()

	events := audit.NewMemoryWriter()
	if err := audit.Init(events); err != nil {
		t.Fatalf("audit.Init() error = %v", err)
	}
	t.Cleanup(func() { _ = audit.Close() })

	st := store.NewStore(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	profiles := profile.NewProfileStore("")
	if err := profiles.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	root := mustKeyPair(t, crypto.CurveSecp256r1)
	anchors, err := trust.NewStore(&trust.Anchor{
		Name:      rootName,
		PublicKey: root.PublicKey,
		NotBefore: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Protocols: []trust.ProtocolVersion{trust.ISO15118_20},
	})
	if err != nil {
		t.Fatalf("trust.NewStore() error = %v", err)
	}

	h := New(&Config{
		Version:     "test",
		Store:       st,
		Anchors:     anchors,
		Profiles:    profiles,
		Metrics:     metrics.New(),
		RateLimiter: limiter,
	})
	return &testEnv{handler: h, store: st, root: root, events: events}
}

func do(t *testing.T, h http.Handler, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response (%d %s): %v", rec.Code, rec.Body.String(), err)
	}
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d: %s", rec.Code, status, rec.Body.String())
	}
	var apiErr dto.APIError
	decode(t, rec, &apiErr)
	if apiErr.Code != code {
		t.Errorf("code = %s, want %s", apiErr.Code, code)
	}
}

func mustKeyPair(t *testing.T, curve crypto.Curve) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair(curve)
	if err != nil {
		t.Fatalf("GenerateKeyPair(%s) error = %v", curve, err)
	}
	return kp
}

func keyInfo(k *crypto.ECCPublicKey) *dto.PublicKeyInfo {
	return &dto.PublicKeyInfo{
		Curve: string(k.Curve()),
		Point: k.Point(crypto.EncodingHex),
	}
}

func createBody(t *testing.T, profileName string, keys ...*crypto.ECCPublicKey) string {
	t.Helper()
	req := dto.CertificateCreateRequest{
		Profile:   profileName,
		Owner:     dto.OwnerInfo{Name: "Mobility Operator AG"},
		NotBefore: "2024-01-01T00:00:00.000Z",
	}
	for _, k := range keys {
		req.PublicKeys = append(req.PublicKeys, *keyInfo(k))
	}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return string(data)
}

func createContract(t *testing.T, env *testEnv, subject *crypto.KeyPair) dto.CertificateResponse {
	t.Helper()
	rec := do(t, env.handler, http.MethodPost, "/api/v1/certificates", []byte(createBody(t, "contract", subject.PublicKey)), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST certificates = %d: %s", rec.Code, rec.Body.String())
	}
	var resp dto.CertificateResponse
	decode(t, rec, &resp)
	if loc := rec.Header().Get("Location"); loc != "/api/v1/certificates/"+resp.ID {
		t.Errorf("Location = %s", loc)
	}
	return resp
}

func fetchCertificate(t *testing.T, env *testEnv, id string) *certificate.Certificate {
	t.Helper()
	certID, err := certificate.ParseCertificateID(id)
	if err != nil {
		t.Fatalf("ParseCertificateID() error = %v", err)
	}
	cert, err := env.store.Load(certID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cert
}

func newLocalCertificate(t *testing.T, pub *crypto.ECCPublicKey) *certificate.Certificate {
	t.Helper()
	cert, err := certificate.New(certificate.Params{
		PublicKeys: []*crypto.ECCPublicKey{pub},
		NotBefore:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Owner:      certificate.Owner{Name: "Charge Point Operator"},
	})
	if err != nil {
		t.Fatalf("certificate.New() error = %v", err)
	}
	return cert
}

func marshalDoc(t *testing.T, doc canonical.Document) []byte {
	t.Helper()
	data, err := canonical.Marshal(doc)
	if err != nil {
		t.Fatalf("canonical.Marshal() error = %v", err)
	}
	return data
}
