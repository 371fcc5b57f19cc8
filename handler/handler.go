// Package handler adapts Lambda events to the turn engine. The webhook and
// the queue adapter share one TurnHandler.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type TurnHandler interface {
	Handle(ctx context.Context, in usecase.Inbound) (usecase.Outbound, error)
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

var newCorrelationID = uuid.NewString

type Handler struct {
	turns TurnHandler
}

func NewHandler(turns TurnHandler) (*Handler, error) {
	if turns == nil {
		return nil, errors.New("handler: turn handler must not be nil")
	}
	return &Handler{turns: turns}, nil
}

// Handle serves the inbound webhook: one JSON message per request, the reply
// in the response body.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = newCorrelationID()
	}
	log := slog.With("correlation_id", correlationID)

	var in usecase.Inbound
	if err := json.Unmarshal([]byte(event.Body), &in); err != nil {
		log.Warn("handler: invalid request body", "err", err)
		return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{
			Error:  string(usecase.ErrorInvalidInput),
			Reason: "invalid_json",
		}), nil
	}

	out, err := h.turns.Handle(ctx, in)
	if err != nil {
		status, body := mapError(err)
		log.Warn("handler: turn rejected", "status", status, "code", body.Error, "err", err)
		return jsonResponse(status, correlationID, body), nil
	}
	return jsonResponse(http.StatusOK, correlationID, out), nil
}

func mapError(err error) (int, errorResponse) {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}
	body := errorResponse{Error: string(ue.Code), Reason: ue.Reason}
	switch ue.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, body
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, body
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, body
	case usecase.ErrorConflict:
		return http.StatusConflict, body
	default:
		return http.StatusInternalServerError, body
	}
}

func jsonResponse(status int, correlationID string, body any) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(raw),
	}
}

// headerValue looks a header up case-insensitively.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
