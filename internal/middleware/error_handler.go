package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"traderoom_app_echo/internal/apperrors"
)

// statusForCode maps taxonomy codes to HTTP statuses
var statusForCode = map[apperrors.Code]int{
	apperrors.CodeValidation:         http.StatusBadRequest,
	apperrors.CodeConfiguration:      http.StatusInternalServerError,
	apperrors.CodeUpstreamGateway:    http.StatusBadGateway,
	apperrors.CodeProtocol:           http.StatusBadGateway,
	apperrors.CodeNotFound:           http.StatusNotFound,
	apperrors.CodeIdentityResolution: http.StatusUnprocessableEntity,
	apperrors.CodePersistence:        http.StatusInternalServerError,
	apperrors.CodeInternal:           http.StatusInternalServerError,
}

// NewErrorHandler builds the Echo error handler. Clients get the taxonomy
// code, a user-safe message and the request id; causes (including raw
// gateway descriptions) go to the log only.
func NewErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		requestID := c.Response().Header().Get(echo.HeaderXRequestID)

		code := http.StatusInternalServerError
		errCode := apperrors.CodeInternal
		message := apperrors.MessageOf(err)

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if msg, ok := he.Message.(string); ok && msg != "" {
				message = msg
			}
			switch code {
			case http.StatusNotFound:
				errCode = apperrors.CodeNotFound
			case http.StatusBadRequest:
				errCode = apperrors.CodeValidation
			}
		} else {
			errCode = apperrors.CodeOf(err)
			if mapped, ok := statusForCode[errCode]; ok {
				code = mapped
			}
		}

		logger.Error("request failed",
			zap.String("request_id", requestID),
			zap.String("path", c.Request().URL.Path),
			zap.String("code", string(errCode)),
			zap.Int("status", code),
			zap.Error(err),
		)

		_ = c.JSON(code, map[string]interface{}{
			"error":      message,
			"code":       errCode,
			"request_id": requestID,
		})
	}
}

// RequestID returns the request id middleware used for support triage
func RequestID() echo.MiddlewareFunc {
	return echomw.RequestID()
}
