package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"traderoom_app_echo/internal/apperrors"
	"traderoom_app_echo/internal/breakout"
	"traderoom_app_echo/internal/models"
)

// SessionLifetime bounds how long a hosted form stays payable before the
// expiry sweep abandons the session.
const SessionLifetime = 30 * time.Minute

// CheckoutInput describes one checkout initiation
type CheckoutInput struct {
	PlanCode string `json:"plan"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	// OperationOverride replaces the plan's default operation when set
	OperationOverride models.OperationType `json:"operation_override,omitempty"`
}

// CheckoutResult is what the client needs to embed the hosted form
type CheckoutResult struct {
	SessionID     uint   `json:"session_id"`
	FormURL       string `json:"form_url"`
	Reference     string `json:"reference"`
	CorrelationID string `json:"correlation_id"`
}

// CheckoutService is the session initiator: it resolves the plan, persists a
// correlation point, and asks the gateway for a hosted form URL.
type CheckoutService struct {
	db      *gorm.DB
	catalog *CatalogService
	gateway *GatewayService
	appURL  string
	logger  *zap.Logger
}

func NewCheckoutService(db *gorm.DB, catalog *CatalogService, gateway *GatewayService, appURL string, logger *zap.Logger) *CheckoutService {
	return &CheckoutService{
		db:      db,
		catalog: catalog,
		gateway: gateway,
		appURL:  appURL,
		logger:  logger,
	}
}

// InitiateCheckout starts a payment session and returns the hosted form URL.
// The session row is persisted before the gateway call on purpose: a
// correlation point must exist for manual recovery even when the outbound
// call fails.
func (s *CheckoutService) InitiateCheckout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	if input.OperationOverride != "" {
		if _, ok := operationCodes[input.OperationOverride]; !ok {
			// reject before any row exists; the gateway client would only
			// fail the lookup after the session was persisted
			return nil, apperrors.Validation("Unknown operation override")
		}
	}

	plan, err := s.catalog.GetPlanByCode(ctx, input.PlanCode)
	if err != nil {
		return nil, err
	}

	operation := plan.OperationType()
	if input.OperationOverride != "" {
		operation = input.OperationOverride
	}

	userID, anonymous, err := s.resolveCheckoutIdentity(ctx, input)
	if err != nil {
		return nil, err
	}

	reference := uuid.NewString()
	correlationID := uuid.NewString()

	session := models.PaymentSession{
		UserID:               userID,
		AnonymousData:        anonymous,
		PlanID:               plan.ID,
		Amount:               plan.ChargeAmount(),
		Currency:             "ILS",
		OperationType:        operation,
		Reference:            reference,
		GatewayCorrelationID: correlationID,
		Status:               models.SessionStatusInitiated,
		ExpiresAt:            time.Now().Add(SessionLifetime),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, apperrors.Persistence("Failed to create payment session", err)
	}

	logger := s.logger.With(
		zap.Uint("session_id", session.ID),
		zap.String("correlation_id", correlationID),
	)
	logger.Info("payment session created",
		zap.String("plan", plan.Code),
		zap.String("operation", string(operation)),
		zap.Float64("amount", session.Amount),
	)

	formResp, err := s.gateway.CreateHostedForm(ctx, HostedFormRequest{
		CorrelationID: correlationID,
		Reference:     reference,
		Amount:        session.Amount,
		Currency:      session.Currency,
		Operation:     operation,
		ProductName:   plan.Name,
		SuccessURL: breakout.BuildCompletionURL(s.appURL, true, breakout.CompletionParams{
			CorrelationID: correlationID,
			Plan:          plan.Code,
		}),
		FailureURL: breakout.BuildCompletionURL(s.appURL, false, breakout.CompletionParams{
			CorrelationID: correlationID,
			Plan:          plan.Code,
		}),
		NotifyURL: s.appURL + "/webhooks/payment",
	})
	if err != nil {
		logger.Error("hosted form creation failed", zap.Error(err))
		s.markSessionFailed(ctx, &session)
		return nil, err
	}

	details, _ := json.Marshal(map[string]string{"form_url": formResp.URL})
	updates := map[string]interface{}{
		"status":          models.SessionStatusPending,
		"payment_details": json.RawMessage(details),
	}
	if err := s.db.WithContext(ctx).Model(&session).
		Where("status = ?", models.SessionStatusInitiated).
		Updates(updates).Error; err != nil {
		logger.Warn("failed to advance session to pending", zap.Error(err))
	}

	return &CheckoutResult{
		SessionID:     session.ID,
		FormURL:       formResp.URL,
		Reference:     reference,
		CorrelationID: correlationID,
	}, nil
}

// GetSession loads a session for status polling
func (s *CheckoutService) GetSession(ctx context.Context, id uint) (*models.PaymentSession, error) {
	var session models.PaymentSession
	if err := s.db.WithContext(ctx).First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Payment session not found")
		}
		return nil, apperrors.Persistence("Failed to load payment session", err)
	}
	return &session, nil
}

// resolveCheckoutIdentity binds an existing user by email when one exists;
// otherwise checkout proceeds anonymously with a contact snapshot.
func (s *CheckoutService) resolveCheckoutIdentity(ctx context.Context, input CheckoutInput) (*uint, json.RawMessage, error) {
	if input.Email == "" {
		return nil, nil, apperrors.Validation("Email is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", input.Email).First(&user).Error
	if err == nil {
		return &user.ID, nil, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperrors.Persistence("Failed to look up user", err)
	}

	snapshot, err := json.Marshal(models.AnonymousContact{
		Name:  input.Name,
		Email: input.Email,
		Phone: input.Phone,
	})
	if err != nil {
		return nil, nil, apperrors.Internal("Failed to snapshot contact info", err)
	}
	return nil, snapshot, nil
}

func (s *CheckoutService) markSessionFailed(ctx context.Context, session *models.PaymentSession) {
	if !models.CanTransition(session.Status, models.SessionStatusFailed) {
		return
	}
	err := s.db.WithContext(ctx).Model(session).
		Where("status IN ?", []models.SessionStatus{models.SessionStatusInitiated, models.SessionStatusPending}).
		Update("status", models.SessionStatusFailed).Error
	if err != nil {
		s.logger.Warn("failed to mark session failed",
			zap.Uint("session_id", session.ID),
			zap.Error(err),
		)
	}
}
