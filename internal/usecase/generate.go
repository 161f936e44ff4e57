package usecase

import (
	"context"
	"errors"

	"gemini-proxy/internal/domain"
)

// NoResponseText is returned when the upstream answer carries no text.
const NoResponseText = "No response generated."

type Generator interface {
	HasAPIKey() bool
	GenerateContent(ctx context.Context, payload domain.GenerateContentRequest) (*domain.GenerateContentResponse, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type responseBodier interface {
	ResponseBody() string
}

// GenerateService forwards one inbound request to the upstream model. It holds
// no per-request state and is safe for concurrent use.
type GenerateService struct {
	llm Generator
}

type GenerateInput = domain.GenerateRequest

type GenerateOutput struct {
	Text string
}

func NewGenerateService(llm Generator) (*GenerateService, error) {
	if llm == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	return &GenerateService{llm: llm}, nil
}

// Configured reports whether the upstream credential is present. Transports
// check it before reading the request body.
func (s *GenerateService) Configured() bool {
	return s.llm.HasAPIKey()
}

func (s *GenerateService) Generate(ctx context.Context, in GenerateInput) (GenerateOutput, error) {
	if !s.Configured() {
		return GenerateOutput{}, NewConfigurationError()
	}

	resp, err := s.llm.GenerateContent(ctx, domain.NewGenerateContentRequest(in))
	if err != nil {
		if status, body, ok := upstreamFailure(err); ok {
			return GenerateOutput{}, newUpstreamError(status, body, err)
		}
		return GenerateOutput{}, newError(ErrorInternal, "gemini_request_failed", err)
	}

	text, ok := resp.Text()
	if !ok {
		text = NoResponseText
	}
	return GenerateOutput{Text: text}, nil
}

func upstreamFailure(err error) (int, string, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, "", false
	}
	var body string
	var bodier responseBodier
	if errors.As(err, &bodier) {
		body = bodier.ResponseBody()
	}
	return statusErr.HTTPStatusCode(), body, true
}
