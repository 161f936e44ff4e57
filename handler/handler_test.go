package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"gemini-proxy/internal/domain"
	"gemini-proxy/internal/usecase"
)

type stubUseCase struct {
	configured bool
	out        usecase.GenerateOutput
	err        error
	panicWith  any
	in         usecase.GenerateInput
	calls      int
}

func (s *stubUseCase) Configured() bool { return s.configured }

func (s *stubUseCase) Generate(_ context.Context, in usecase.GenerateInput) (usecase.GenerateOutput, error) {
	s.calls++
	s.in = in
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	return s.out, s.err
}

func newTestHandler(t *testing.T, uc UseCase, opts ...Option) (*Handler, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	opts = append([]Option{WithLogger(zerolog.New(&logs))}, opts...)
	h, err := NewHandler(uc, opts...)
	require.NoError(t, err)
	return h, &logs
}

func postGenerate(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, GeneratePath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func parseBody[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestServeGenerate_HappyPath(t *testing.T) {
	uc := &stubUseCase{configured: true, out: usecase.GenerateOutput{Text: "hello"}}
	h, _ := newTestHandler(t, uc)

	rec := postGenerate(t, h.Routes(""), `{"userQuery":"What is Go?","systemPrompt":"Be brief."}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Equal(t, domain.NewTextRequest("What is Go?", "Be brief."), uc.in)
	require.JSONEq(t, `{"text":"hello"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Correlation-Id"))
}

func TestServeGenerate_MissingFieldsArePermissive(t *testing.T) {
	for _, body := range []string{``, `{}`, `null`, `[]`, `["a","b"]`, `"text"`, `{"userQuery":"only query"}`, `{"extra":true}`} {
		uc := &stubUseCase{configured: true, out: usecase.GenerateOutput{Text: "ok"}}
		h, _ := newTestHandler(t, uc)

		rec := postGenerate(t, h.Routes(""), body)
		require.Equal(t, http.StatusOK, rec.Code, "body=%q", body)
		require.Equal(t, 1, uc.calls)
		require.Empty(t, uc.in.SystemPrompt)
	}
}

func TestServeGenerate_MissingAPIKey(t *testing.T) {
	for _, body := range []string{`{"userQuery":"q","systemPrompt":"s"}`, `not-json`, ``} {
		uc := &stubUseCase{configured: false}
		h, logs := newTestHandler(t, uc)

		rec := postGenerate(t, h.Routes(""), body)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		out := parseBody[domain.ErrorResponse](t, rec.Body.Bytes())
		require.Equal(t, "API key is not configured on the server.", out.Error)
		require.Zero(t, uc.calls)
		require.Contains(t, logs.String(), "API key is not configured")
	}
}

func TestServeGenerate_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{
			name:   "configuration",
			err:    usecase.NewConfigurationError(),
			status: http.StatusInternalServerError,
			msg:    "API key is not configured on the server.",
		},
		{
			name:   "upstream rate limited",
			err:    &usecase.Error{Code: usecase.ErrorUpstream, Reason: "gemini_error", Status: http.StatusTooManyRequests, Body: "quota exceeded"},
			status: http.StatusTooManyRequests,
			msg:    "Gemini API error: quota exceeded",
		},
		{
			name:   "upstream bad request",
			err:    &usecase.Error{Code: usecase.ErrorUpstream, Reason: "gemini_error", Status: http.StatusBadRequest, Body: `{"error":{"message":"bad"}}`},
			status: http.StatusBadRequest,
			msg:    `Gemini API error: {"error":{"message":"bad"}}`,
		},
		{
			name:   "internal",
			err:    &usecase.Error{Code: usecase.ErrorInternal, Reason: "gemini_request_failed", Status: http.StatusInternalServerError},
			status: http.StatusInternalServerError,
			msg:    "An internal server error occurred.",
		},
		{
			name:   "unexpected",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			msg:    "An internal server error occurred.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubUseCase{configured: true, err: tc.err}
			h, _ := newTestHandler(t, uc)

			rec := postGenerate(t, h.Routes(""), `{"userQuery":"q"}`)
			require.Equal(t, tc.status, rec.Code)
			out := parseBody[domain.ErrorResponse](t, rec.Body.Bytes())
			require.Equal(t, tc.msg, out.Error)
		})
	}
}

func TestServeGenerate_LogsUpstreamBody(t *testing.T) {
	uc := &stubUseCase{configured: true, err: &usecase.Error{Code: usecase.ErrorUpstream, Status: http.StatusForbidden, Body: "permission denied"}}
	h, logs := newTestHandler(t, uc)

	postGenerate(t, h.Routes(""), `{}`)
	require.Contains(t, logs.String(), `"upstream_body":"permission denied"`)
	require.Contains(t, logs.String(), `"status":403`)
}

func TestServeGenerate_InvalidBody(t *testing.T) {
	for _, body := range []string{`not-json`, `{"userQuery":`, `{"userQuery":"a"} trailing`} {
		uc := &stubUseCase{configured: true}
		h, logs := newTestHandler(t, uc)

		rec := postGenerate(t, h.Routes(""), body)
		require.Equal(t, http.StatusInternalServerError, rec.Code, "body=%q", body)
		out := parseBody[domain.ErrorResponse](t, rec.Body.Bytes())
		require.Equal(t, "An internal server error occurred.", out.Error)
		require.Zero(t, uc.calls)
		require.Contains(t, logs.String(), "server error")
	}
}

func TestServeGenerate_NonStringFieldsPassThrough(t *testing.T) {
	uc := &stubUseCase{configured: true, out: usecase.GenerateOutput{Text: "ok"}}
	h, _ := newTestHandler(t, uc)

	rec := postGenerate(t, h.Routes(""), `{"userQuery":123,"systemPrompt":["be","brief"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, uc.calls)
	require.JSONEq(t, `123`, string(uc.in.UserQuery))
	require.JSONEq(t, `["be","brief"]`, string(uc.in.SystemPrompt))
}

func TestServeGenerate_NonJSONContentTypeIsEmptyBody(t *testing.T) {
	for _, contentType := range []string{"text/plain", "", "application/x-www-form-urlencoded", "application/json-ish"} {
		uc := &stubUseCase{configured: true, out: usecase.GenerateOutput{Text: "ok"}}
		h, _ := newTestHandler(t, uc)

		req := httptest.NewRequest(http.MethodPost, GeneratePath, strings.NewReader(`{"userQuery":"ignored"}`))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rec := httptest.NewRecorder()
		h.Routes("").ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, "content type %q", contentType)
		require.Equal(t, 1, uc.calls)
		require.Equal(t, usecase.GenerateInput{}, uc.in)
	}
}

func TestServeGenerate_JSONContentTypeVariants(t *testing.T) {
	for _, contentType := range []string{"application/json; charset=utf-8", "Application/JSON", "application/vnd.api+json"} {
		uc := &stubUseCase{configured: true, out: usecase.GenerateOutput{Text: "ok"}}
		h, _ := newTestHandler(t, uc)

		req := httptest.NewRequest(http.MethodPost, GeneratePath, strings.NewReader(`{"userQuery":"parsed"}`))
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		h.Routes("").ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, "content type %q", contentType)
		require.Equal(t, `"parsed"`, string(uc.in.UserQuery))
	}
}

func TestServeGenerate_BodyTooLarge(t *testing.T) {
	uc := &stubUseCase{configured: true}
	h, _ := newTestHandler(t, uc, WithMaxBodyBytes(16))

	rec := postGenerate(t, h.Routes(""), `{"userQuery":"this is longer than sixteen bytes"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Zero(t, uc.calls)
}

func TestServeGenerate_RecoversFromPanic(t *testing.T) {
	uc := &stubUseCase{configured: true, panicWith: "kaboom"}
	h, logs := newTestHandler(t, uc)

	rec := postGenerate(t, h.Routes(""), `{}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	out := parseBody[domain.ErrorResponse](t, rec.Body.Bytes())
	require.Equal(t, "An internal server error occurred.", out.Error)
	require.Contains(t, logs.String(), "kaboom")
}

func TestServeGenerate_UsesProvidedCorrelationID(t *testing.T) {
	uc := &stubUseCase{configured: true, out: usecase.GenerateOutput{Text: "ok"}}
	h, logs := newTestHandler(t, uc)

	req := httptest.NewRequest(http.MethodPost, GeneratePath, strings.NewReader(`{}`))
	req.Header.Set("x-correlation-id", "corr-123")
	rec := httptest.NewRecorder()
	h.Routes("").ServeHTTP(rec, req)

	require.Equal(t, "corr-123", rec.Header().Get("X-Correlation-Id"))
	require.Contains(t, logs.String(), `"correlation_id":"corr-123"`)
	require.Contains(t, logs.String(), "request completed")
}

func TestRoutes_ServesStaticFiles(t *testing.T) {
	dir := t.TempDir()
	index := []byte("<!doctype html><title>chat</title>\n")
	script := []byte("console.log('hi');\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), index, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), script, 0o644))

	h, _ := newTestHandler(t, &stubUseCase{configured: true})
	routes := h.Routes(dir)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, script, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, index, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing.css", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes_NoDirectoryListing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "secret.txt"), []byte("hidden"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "index.html"), []byte("docs"), 0o644))

	h, _ := newTestHandler(t, &stubUseCase{configured: true})
	routes := h.Routes(dir)

	for _, target := range []string{"/", "/assets/"} {
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusNotFound, rec.Code, "target=%s", target)
		require.NotContains(t, rec.Body.String(), "secret.txt")
	}

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/secret.txt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hidden", rec.Body.String())

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "docs", rec.Body.String())
}

func TestRoutes_GenerateRequiresPost(t *testing.T) {
	uc := &stubUseCase{configured: true}
	h, _ := newTestHandler(t, uc)

	rec := httptest.NewRecorder()
	h.Routes(t.TempDir()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, GeneratePath, nil))
	require.NotEqual(t, http.StatusOK, rec.Code)
	require.Zero(t, uc.calls)
}
