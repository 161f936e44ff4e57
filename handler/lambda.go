package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"gemini-proxy/internal/domain"
)

// Handle serves POST /api/generate behind API Gateway. Any other route gets a
// JSON 404; static assets are expected to be served elsewhere in that setup.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
	corrID := correlationID(headerValue(event.Headers, correlationIDHeader))
	logger := h.logger.With().
		Str("correlation_id", corrID).
		Str("method", event.HTTPMethod).
		Str("path", event.Path).
		Logger()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("server error")
			status, body := internalErrorResult()
			resp, err = apiResponse(status, body, corrID), nil
		}
	}()

	if event.HTTPMethod != http.MethodPost || !strings.HasSuffix(strings.TrimRight(event.Path, "/"), GeneratePath) {
		return apiResponse(http.StatusNotFound, domain.ErrorResponse{Error: http.StatusText(http.StatusNotFound)}, corrID), nil
	}

	body := event.Body
	if event.IsBase64Encoded {
		decoded, decErr := base64.StdEncoding.DecodeString(body)
		if decErr != nil {
			logger.Error().Err(decErr).Msg("server error")
			status, out := internalErrorResult()
			return apiResponse(status, out, corrID), nil
		}
		body = string(decoded)
	}

	status, out := h.generate(logger.WithContext(ctx), headerValue(event.Headers, "Content-Type"), strings.NewReader(body), logger)
	logger.Info().Int("status", status).Msg("request completed")
	return apiResponse(status, out, corrID), nil
}

func apiResponse(status int, body any, corrID string) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"An internal server error occurred."}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json; charset=utf-8",
			correlationIDHeader: corrID,
		},
		Body: string(raw),
	}
}

// headerValue looks up name case-insensitively; API Gateway forwards headers
// as sent by the client.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
