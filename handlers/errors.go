package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	mw "github.com/padraicbc/pageantapi/middleware"
	"github.com/padraicbc/pageantapi/scoring"
)

type errorBody struct {
	Code    scoring.Code `json:"code"`
	Message string       `json:"message"`
	Details any          `json:"details,omitempty"`
}

type errorEnvelope struct {
	RequestID string    `json:"request_id"`
	Error     errorBody `json:"error"`
}

func requestID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	if id := c.Request().Header.Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Response().Header().Set(echo.HeaderXRequestID, id)
	return id
}

// fail converts a service error into an HTTP error with a JSON envelope.
// Unknown errors are logged and reported without their internals.
func (h *Handler) fail(c echo.Context, err error) error {
	reqID := requestID(c)
	body := errorBody{Code: scoring.GetCode(err), Message: err.Error()}

	var de *scoring.Error
	if errors.As(err, &de) {
		body.Message = de.Message
		body.Details = de.Details
	}
	if body.Code == scoring.CodeUnknown {
		h.log.Error("request failed",
			zap.String("request_id", reqID),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		body.Message = "internal error"
	}
	return echo.NewHTTPError(body.Code.HTTPStatus(), errorEnvelope{RequestID: reqID, Error: body})
}

// badRequest reports malformed input in the same envelope as domain errors.
func badRequest(c echo.Context, message string) error {
	return echo.NewHTTPError(http.StatusBadRequest, errorEnvelope{
		RequestID: requestID(c),
		Error:     errorBody{Code: scoring.CodeValidation, Message: message},
	})
}

// int64Param reads a required positive integer query parameter.
func int64Param(c echo.Context, name string) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, badRequest(c, "missing "+name+" param")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, badRequest(c, name+" must be a positive integer")
	}
	return v, nil
}

func actor(c echo.Context) scoring.Identity {
	id, _ := mw.IdentityFrom(c)
	return id
}
