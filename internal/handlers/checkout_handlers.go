package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"traderoom_app_echo/internal/apperrors"
	"traderoom_app_echo/internal/services"
)

// CheckoutHandler exposes checkout initiation and session status polling
type CheckoutHandler struct {
	checkout CheckoutInitiator
}

func NewCheckoutHandler(checkout CheckoutInitiator) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

// InitiateCheckout starts a payment session and returns the hosted form URL
func (h *CheckoutHandler) InitiateCheckout(c echo.Context) error {
	var input services.CheckoutInput
	if err := c.Bind(&input); err != nil {
		return apperrors.Validation("Invalid checkout request body")
	}

	result, err := h.checkout.InitiateCheckout(c.Request().Context(), input)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// SessionStatus reports the current state of a payment session so the
// hosting page can poll while the hosted form is open.
func (h *CheckoutHandler) SessionStatus(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return apperrors.Validation("Invalid session id")
	}

	session, err := h.checkout.GetSession(c.Request().Context(), uint(id))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id":     session.ID,
		"status":         session.Status,
		"correlation_id": session.GatewayCorrelationID,
		"expires_at":     session.ExpiresAt,
	})
}
