package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"forms-api/domain"
)

type stubVerifier struct{ ok bool }

func (s stubVerifier) Verify(context.Context, string, string) bool { return s.ok }

type memLedger struct {
	mu    sync.Mutex
	rows  map[string][][]string
	err   error
	calls int
}

func (m *memLedger) EnsureHeader(_ context.Context, id string, headers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	if len(m.rows[id]) == 0 {
		m.rows[id] = [][]string{headers}
	}
	return nil
}

func (m *memLedger) AppendRow(_ context.Context, id string, row []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.rows[id] = append(m.rows[id], row)
	return nil
}

type memBlobs struct {
	calls     int
	mediaType string
	content   []byte
}

func (m *memBlobs) Publish(_ context.Context, key string, content io.Reader, mediaType string) (string, error) {
	m.calls++
	m.mediaType = mediaType
	m.content, _ = io.ReadAll(content)
	return "https://storage.googleapis.com/bucket/" + key, nil
}

type testEnv struct {
	router *gin.Engine
	ledger *memLedger
	blobs  *memBlobs
}

func setupTestRouter(verified bool, secrets map[domain.Kind]string) *testEnv {
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		ledger: &memLedger{rows: map[string][][]string{}},
		blobs:  &memBlobs{},
	}
	pipeline := domain.NewPipeline(domain.Dependencies{
		Verifier:  stubVerifier{ok: verified},
		Ledger:    env.ledger,
		Blobs:     env.blobs,
		Secrets:   secrets,
		LedgerIDs: map[domain.Kind]string{domain.KindContact: "contact", domain.KindCareer: "career"},
		Now:       func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	})

	env.router = NewRouter(zap.NewNop(), []string{"*"})
	NewHTTPHandler(env.router, &HTTPHandler{
		Pipeline: pipeline,
		Verifier: stubVerifier{ok: verified},
		Secrets:  secrets,
	})
	return env
}

func (e *testEnv) do(req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func contactRequest(values url.Values) *http.Request {
	req, _ := http.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func careerRequest(t *testing.T, fields map[string]string, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="resume"; filename="%s"`, filename))
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest(http.MethodPost, "/api/career", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

var careerFields = map[string]string{
	"name":            "Jane Doe",
	"email":           "jane@example.com",
	"positionApplied": "Backend Engineer",
	"turnstileToken":  "t",
}

func TestRootAndHealth(t *testing.T) {
	env := setupTestRouter(true, nil)

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	w, body := env.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "Forms API is running", body["message"])

	req, _ = http.NewRequest(http.MethodGet, "/health", nil)
	w, body = env.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestSubmitContact_EndToEnd(t *testing.T) {
	env := setupTestRouter(false, nil)

	w, body := env.do(contactRequest(url.Values{
		"name": {"Ann"}, "email": {"ann@x.com"}, "message": {"hi"}, "turnstileToken": {"t"},
	}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Contact form submitted successfully", body["message"])

	rows := env.ledger.rows["contact"]
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2024-06-01 17:30:00", "Ann", "ann@x.com", "N/A", "N/A", "hi", "New"}, rows[1])
}

func TestSubmitContact_JSONBody(t *testing.T) {
	env := setupTestRouter(true, nil)

	req, _ := http.NewRequest(http.MethodPost, "/api/contact",
		strings.NewReader(`{"name":"Ann","email":"ann@x.com","company":"Acme","message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	w, _ := env.do(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Acme", env.ledger.rows["contact"][1][4])
}

func TestSubmitContact_Rejections(t *testing.T) {
	t.Run("missing message", func(t *testing.T) {
		env := setupTestRouter(true, nil)
		w, body := env.do(contactRequest(url.Values{"name": {"Ann"}, "email": {"ann@x.com"}}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "message is required", body["detail"])
		assert.Equal(t, 0, env.ledger.calls)
	})

	t.Run("bad captcha", func(t *testing.T) {
		env := setupTestRouter(false, map[domain.Kind]string{domain.KindContact: "secret"})
		w, body := env.do(contactRequest(url.Values{
			"name": {"Ann"}, "email": {"ann@x.com"}, "message": {"hi"}, "turnstileToken": {"t"},
		}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid captcha verification", body["detail"])
		assert.Equal(t, 0, env.ledger.calls)
	})

	t.Run("malformed json", func(t *testing.T) {
		env := setupTestRouter(true, nil)
		req, _ := http.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(`{"name":`))
		req.Header.Set("Content-Type", "application/json")
		w, body := env.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid form data received", body["detail"])
	})
}

func TestSubmitContact_LedgerFailureIs500(t *testing.T) {
	env := setupTestRouter(true, nil)
	env.ledger.err = errors.New("googleapi: Error 403: The caller does not have permission")

	w, body := env.do(contactRequest(url.Values{
		"name": {"Ann"}, "email": {"ann@x.com"}, "message": {"hi"},
	}))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to submit contact form", body["detail"])
	assert.NotContains(t, w.Body.String(), "permission")
}

func TestSubmitCareer_Success(t *testing.T) {
	env := setupTestRouter(true, map[domain.Kind]string{domain.KindCareer: "secret"})
	fields := map[string]string{
		"name":             "Jane Doe",
		"email":            "jane@example.com",
		"position_applied": "Backend Engineer",
		"cover_letter":     "Hello",
		"turnstileToken":   "t",
	}

	w, body := env.do(careerRequest(t, fields, "cv.pdf", "application/pdf", []byte("%PDF-1.4 test")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Application submitted successfully", body["message"])
	assert.Equal(t, 1, env.blobs.calls)
	assert.Equal(t, "%PDF-1.4 test", string(env.blobs.content))

	rows := env.ledger.rows["career"]
	require.Len(t, rows, 2)
	assert.Equal(t, domain.CareerHeaders, rows[0])
	assert.Equal(t, "Backend Engineer", rows[1][4])
	assert.Equal(t, "Hello", rows[1][5])
	assert.Equal(t, "https://storage.googleapis.com/bucket/resumes/Jane_Doe_20240601_120000_cv.pdf", rows[1][6])
}

func TestSubmitCareer_SniffsGenericMediaType(t *testing.T) {
	env := setupTestRouter(true, nil)

	w, _ := env.do(careerRequest(t, careerFields, "cv.pdf", "application/octet-stream", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", env.blobs.mediaType)
}

func TestSubmitCareer_OversizedFile(t *testing.T) {
	env := setupTestRouter(true, nil)

	w, body := env.do(careerRequest(t, careerFields, "big.pdf", "application/pdf", make([]byte, 6*1000*1000)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["detail"], "5MB")
	assert.Equal(t, 0, env.blobs.calls)
	assert.Equal(t, 0, env.ledger.calls)
}

func TestSubmitCareer_HugeBodyRejectedBeforeParsing(t *testing.T) {
	env := setupTestRouter(true, nil)

	w, body := env.do(careerRequest(t, careerFields, "huge.pdf", "application/pdf", make([]byte, maxCareerBody+1)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["detail"], "5MB")
	assert.Equal(t, 0, env.blobs.calls)
}

func TestSubmitCareer_DisallowedMediaType(t *testing.T) {
	env := setupTestRouter(true, nil)

	w, body := env.do(careerRequest(t, careerFields, "me.png", "image/png", []byte("\x89PNG")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Only PDF and DOC files are allowed", body["detail"])
	assert.Equal(t, 0, env.blobs.calls)
	assert.Equal(t, 0, env.ledger.calls)
}

func TestSubmitCareer_MissingResume(t *testing.T) {
	env := setupTestRouter(true, nil)

	w, body := env.do(careerRequest(t, careerFields, "", "", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "resume file is required", body["detail"])
}

func TestVerifyTurnstile(t *testing.T) {
	secrets := map[domain.Kind]string{domain.KindContact: "secret"}
	post := func(env *testEnv, payload string) (*httptest.ResponseRecorder, map[string]any) {
		req, _ := http.NewRequest(http.MethodPost, "/api/verify-turnstile", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		return env.do(req)
	}

	w, body := post(setupTestRouter(true, secrets), `{"token":"t","formType":"contact"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	w, body = post(setupTestRouter(false, secrets), `{"token":"t","formType":"contact"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Verification failed", body["error"])

	w, body = post(setupTestRouter(false, secrets), `{"token":"t","formType":"career"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["skipped"])

	w, body = post(setupTestRouter(true, secrets), `{"formType":"contact"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing token", body["error"])

	w, body = post(setupTestRouter(true, secrets), `{"token":"t","formType":"newsletter"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid form type", body["error"])
}

func TestCORSPreflightAndNotFound(t *testing.T) {
	env := setupTestRouter(true, nil)

	req, _ := http.NewRequest(http.MethodOptions, "/api/contact", nil)
	req.Header.Set("Origin", "https://example.com")
	w, _ := env.do(req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodGet, "/nope", nil)
	w, body := env.do(req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not Found", body["detail"])
}

func TestSubmitContact_OversizedBody(t *testing.T) {
	env := setupTestRouter(true, nil)

	w, body := env.do(contactRequest(url.Values{
		"name": {"Ann"}, "email": {"ann@x.com"}, "message": {strings.Repeat("a", maxContactBody)},
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Request body too large", body["detail"])
	assert.Equal(t, 0, env.ledger.calls)
}

type stubReadiness struct{ err error }

func (s stubReadiness) Ready(context.Context) error { return s.err }

func TestReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	newEnv := func(r ReadinessChecker) *testEnv {
		env := &testEnv{router: NewRouter(zap.NewNop(), nil)}
		NewHTTPHandler(env.router, &HTTPHandler{Readiness: r})
		return env
	}

	req, _ := http.NewRequest(http.MethodGet, "/health/ready", nil)
	w, body := newEnv(stubReadiness{}).do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", body["status"])

	req, _ = http.NewRequest(http.MethodGet, "/health/ready", nil)
	w, body = newEnv(stubReadiness{err: errors.New("googleapi: Error 404")}).do(req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", body["status"])
	assert.Equal(t, "Ledger unreachable", body["detail"])
	assert.NotContains(t, w.Body.String(), "googleapi")

	req, _ = http.NewRequest(http.MethodGet, "/health/ready", nil)
	w, _ = newEnv(nil).do(req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReady_ReachesConfiguredLedger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ledger := &pingingLedger{memLedger: &memLedger{rows: map[string][][]string{}}, err: errors.New("refused")}
	pipeline := domain.NewPipeline(domain.Dependencies{
		Ledger:    ledger,
		LedgerIDs: map[domain.Kind]string{domain.KindContact: "contact"},
	})
	env := &testEnv{router: NewRouter(zap.NewNop(), nil)}
	NewHTTPHandler(env.router, &HTTPHandler{Pipeline: pipeline, Readiness: pipeline})

	req, _ := http.NewRequest(http.MethodGet, "/health/ready", nil)
	w, _ := env.do(req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, []string{"contact"}, ledger.pinged)
}

type pingingLedger struct {
	*memLedger
	err    error
	pinged []string
}

func (p *pingingLedger) Ping(_ context.Context, id string) error {
	p.pinged = append(p.pinged, id)
	return p.err
}

func TestSubmitContact_DownstreamFailureLoggedOnce(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	ledger := &memLedger{rows: map[string][][]string{}, err: errors.New("backend unavailable")}
	pipeline := domain.NewPipeline(domain.Dependencies{
		Ledger:    ledger,
		LedgerIDs: map[domain.Kind]string{domain.KindContact: "contact"},
		Logger:    logger,
	})
	env := &testEnv{router: NewRouter(zap.NewNop(), nil), ledger: ledger}
	NewHTTPHandler(env.router, &HTTPHandler{Pipeline: pipeline, Logger: logger})

	req := contactRequest(url.Values{"name": {"Ann"}, "email": {"ann@x.com"}, "message": {"hi"}})
	req.Header.Set("X-Request-ID", "req-42")
	w, _ := env.do(req)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errs, 1)
	assert.Equal(t, "req-42", errs[0].ContextMap()["request_id"])
}
