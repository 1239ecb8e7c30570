package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"traderoom_app_echo/internal/apperrors"
	"traderoom_app_echo/internal/breakout"
	"traderoom_app_echo/internal/services"
)

// WebhookHandler exposes webhook ingress, the completion confirm endpoint
// and manual recovery.
type WebhookHandler struct {
	reconcile Reconciler
	logger    *zap.Logger
}

func NewWebhookHandler(reconcile Reconciler, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{reconcile: reconcile, logger: logger}
}

// Ingress receives the gateway's server-to-server notification. The payload
// is stored verbatim and applied. Gateways retry on non-200, so processing
// problems on a well-formed payload still answer 200; recovery handles them.
func (h *WebhookHandler) Ingress(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperrors.Validation("Failed to read webhook body")
	}

	result, err := h.reconcile.HandleWebhook(c.Request().Context(), payload)
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) && appErr.Code == apperrors.CodeValidation {
			return err
		}
		h.logger.Error("webhook processing failed", zap.Error(err))
		return c.JSON(http.StatusOK, map[string]string{"status": "held"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"status": result.Status})
}

// Complete is the canonical completion URL target. The hosting page (or a
// breakout navigation) lands here; success markers are verified against the
// fixed contract before reconciliation is triggered.
func (h *WebhookHandler) Complete(c echo.Context) error {
	query := c.Request().URL.Query()
	correlationID := query.Get(breakout.ParamCorrelationID)

	if !breakout.ConfirmCompletionQuery(query) {
		// failure navigation: nothing to apply, the client shows a retry
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":         "not_completed",
			"correlation_id": correlationID,
		})
	}

	response := map[string]interface{}{
		"status":         "completed",
		"correlation_id": correlationID,
	}

	if correlationID != "" {
		result, err := h.reconcile.RecoverByCorrelationID(c.Request().Context(), correlationID)
		if err != nil {
			// the webhook may still be in flight; the client keeps polling
			h.logger.Warn("completion-triggered reconciliation failed",
				zap.String("correlation_id", correlationID),
				zap.Error(err),
			)
			response["status"] = "pending_confirmation"
		} else {
			response["reconciliation"] = result.Status
		}
	}

	return c.JSON(http.StatusOK, response)
}

// Recover applies a completion signal manually, keyed by webhook id,
// correlation id or email (in that priority).
func (h *WebhookHandler) Recover(c echo.Context) error {
	var req services.RecoveryRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.Validation("Invalid recovery request body")
	}

	result, err := h.reconcile.Recover(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
