package handlers

import (
	"context"
	"encoding/json"

	"traderoom_app_echo/internal/models"
	"traderoom_app_echo/internal/services"
)

// CheckoutInitiator is the slice of the checkout service handlers need
type CheckoutInitiator interface {
	InitiateCheckout(ctx context.Context, input services.CheckoutInput) (*services.CheckoutResult, error)
	GetSession(ctx context.Context, id uint) (*models.PaymentSession, error)
}

// Reconciler is the slice of the reconciliation service handlers need
type Reconciler interface {
	HandleWebhook(ctx context.Context, payload json.RawMessage) (*services.ReconcileResult, error)
	Recover(ctx context.Context, req services.RecoveryRequest) (*services.ReconcileResult, error)
	RecoverByCorrelationID(ctx context.Context, correlationID string) (*services.ReconcileResult, error)
}
