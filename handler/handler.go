package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gemini-proxy/internal/domain"
	"gemini-proxy/internal/usecase"
)

const (
	GeneratePath        = "/api/generate"
	correlationIDHeader = "X-Correlation-Id"
	defaultMaxBodyBytes = 1 << 20
)

type UseCase interface {
	Configured() bool
	Generate(ctx context.Context, in usecase.GenerateInput) (usecase.GenerateOutput, error)
}

// Handler translates transport requests into GenerateService calls. It is
// shared by the HTTP server and the Lambda entrypoint.
type Handler struct {
	uc           UseCase
	logger       zerolog.Logger
	maxBodyBytes int64
}

type Option func(*Handler)

func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMaxBodyBytes caps the inbound body size. Non-positive values are ignored.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

func NewHandler(uc UseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	h := &Handler{
		uc:           uc,
		logger:       log.Logger,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With().Str("component", "handler").Logger()
	return h, nil
}

// generate runs one request through the use case and returns the status and
// body to send. It never fails: every outcome maps to a JSON body.
func (h *Handler) generate(ctx context.Context, contentType string, body io.Reader, logger zerolog.Logger) (int, any) {
	if !h.uc.Configured() {
		logger.Error().Msg("API key is not configured")
		return errorResult(usecase.NewConfigurationError())
	}

	in, err := h.decode(contentType, body)
	if err != nil {
		logger.Error().Err(err).Msg("server error")
		return errorResult(usecase.AsError(err))
	}

	out, err := h.uc.Generate(ctx, in)
	if err != nil {
		ue := usecase.AsError(err)
		switch ue.Code {
		case usecase.ErrorConfiguration:
			logger.Error().Msg("API key is not configured")
		case usecase.ErrorUpstream:
			logger.Error().
				Int("status", ue.Status).
				Str("upstream_body", ue.Body).
				Msg("gemini api error")
		default:
			logger.Error().Err(err).Msg("server error")
		}
		return errorResult(ue)
	}
	return http.StatusOK, domain.GenerateResponse{Text: out.Text}
}

// decode reads the inbound body. Only JSON content types are parsed; any other
// body, an empty body, or a JSON value that is not an object counts as {}.
// Field values are kept raw so non-string values reach the upstream unchanged.
func (h *Handler) decode(contentType string, body io.Reader) (usecase.GenerateInput, error) {
	var in usecase.GenerateInput
	if body == nil || !isJSONContentType(contentType) {
		return in, nil
	}
	raw, err := io.ReadAll(io.LimitReader(body, h.maxBodyBytes+1))
	if err != nil {
		return in, fmt.Errorf("handler: read request body: %w", err)
	}
	if int64(len(raw)) > h.maxBodyBytes {
		return in, fmt.Errorf("handler: request body exceeds %d bytes", h.maxBodyBytes)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return in, nil
	}
	if !json.Valid(raw) {
		return in, errors.New("handler: request body is not valid JSON")
	}
	if raw[0] != '{' {
		return in, nil
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("handler: decode request body: %w", err)
	}
	return in, nil
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func errorResult(ue *usecase.Error) (int, any) {
	status := ue.Status
	if status < 100 || status > 999 {
		status = http.StatusInternalServerError
	}
	return status, domain.ErrorResponse{Error: ue.Message()}
}

func internalErrorResult() (int, any) {
	return http.StatusInternalServerError, domain.ErrorResponse{Error: usecase.MessageInternal}
}

func correlationID(value string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return uuid.NewString()
}
