package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"traderoom_app_echo/internal/apperrors"
	"traderoom_app_echo/internal/models"
)

const (
	persistAttempts = 3
	persistBackoff  = 250 * time.Millisecond
	claimLockTTL    = 30 * time.Second
)

// Reconciliation outcome statuses
const (
	ReconcileApplied          = "applied"
	ReconcileAlreadyProcessed = "already_processed"
	ReconcileInProgress       = "in_progress"
)

// ReconcileResult reports what a reconciliation attempt did
type ReconcileResult struct {
	Status         string `json:"status"`
	CorrelationID  string `json:"correlation_id"`
	WebhookID      uint   `json:"webhook_id,omitempty"`
	SessionID      uint   `json:"session_id,omitempty"`
	UserID         uint   `json:"user_id,omitempty"`
	SubscriptionID uint   `json:"subscription_id,omitempty"`
	// PartialErrors lists target-table writes that failed after retries.
	// Sibling writes proceed; a later replay completes the missing ones.
	PartialErrors []string `json:"partial_errors,omitempty"`
}

// RecoveryRequest selects which key to recover by. Priority when several are
// set: webhook id, then correlation id, then email.
type RecoveryRequest struct {
	WebhookID     uint   `json:"webhook_id"`
	CorrelationID string `json:"correlation_id"`
	Email         string `json:"email"`
}

// ReconcileService applies a gateway completion signal to subscription,
// token and audit state exactly once. It is stateless per request; all
// coordination between concurrent invocations goes through the Redis claim
// lock and the conditional session update.
type ReconcileService struct {
	db       *gorm.DB
	cache    *RedisCache
	gateway  *GatewayService
	identity *IdentityService
	email    *EmailService
	logger   *zap.Logger
}

func NewReconcileService(db *gorm.DB, cache *RedisCache, gateway *GatewayService, identity *IdentityService, email *EmailService, logger *zap.Logger) *ReconcileService {
	return &ReconcileService{
		db:       db,
		cache:    cache,
		gateway:  gateway,
		identity: identity,
		email:    email,
		logger:   logger,
	}
}

// HandleWebhook stores a native gateway callback verbatim and applies it
func (s *ReconcileService) HandleWebhook(ctx context.Context, payload json.RawMessage) (*ReconcileResult, error) {
	record := models.WebhookRecord{
		WebhookType: models.WebhookTypePaymentResult,
		Payload:     payload,
	}

	notif, parseErr := ParseNotification(payload)
	if parseErr == nil {
		record.GatewayCorrelationID = notif.LowProfileID
	}

	// The verbatim payload is stored even when it fails validation, so
	// support can inspect what the gateway actually sent.
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, apperrors.Persistence("Failed to store webhook", err)
	}

	if parseErr != nil {
		s.finishRecord(ctx, &record, map[string]interface{}{"error": parseErr.Error()})
		return nil, parseErr
	}

	return s.reconcile(ctx, notif, &record)
}

// Recover applies a completion signal through one of the manual-recovery
// keys. Unlike the native path it may reprocess an already-processed record.
func (s *ReconcileService) Recover(ctx context.Context, req RecoveryRequest) (*ReconcileResult, error) {
	switch {
	case req.WebhookID != 0:
		return s.recoverByWebhookID(ctx, req.WebhookID)
	case req.CorrelationID != "":
		return s.RecoverByCorrelationID(ctx, req.CorrelationID)
	case req.Email != "":
		return s.recoverByEmail(ctx, req.Email)
	default:
		return nil, apperrors.Validation("Provide a webhook id, correlation id or email")
	}
}

func (s *ReconcileService) recoverByWebhookID(ctx context.Context, id uint) (*ReconcileResult, error) {
	var record models.WebhookRecord
	if err := s.db.WithContext(ctx).First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Webhook record not found")
		}
		return nil, apperrors.Persistence("Failed to load webhook record", err)
	}

	notif, err := ParseNotification(record.Payload)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, notif, &record)
}

// RecoverByCorrelationID reprocesses the latest stored notification for a
// correlation id, falling back to a direct gateway lookup when no callback
// ever arrived.
func (s *ReconcileService) RecoverByCorrelationID(ctx context.Context, correlationID string) (*ReconcileResult, error) {
	if correlationID == "" {
		return nil, apperrors.Validation("Correlation id is required")
	}

	var record models.WebhookRecord
	err := s.db.WithContext(ctx).
		Where("gateway_correlation_id = ?", correlationID).
		Order("created_at desc").
		First(&record).Error
	if err == nil {
		notif, parseErr := ParseNotification(record.Payload)
		if parseErr != nil {
			return nil, parseErr
		}
		return s.reconcile(ctx, notif, &record)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Persistence("Failed to query webhook records", err)
	}

	// No stored callback: pull the result straight from the gateway
	s.logger.Info("no stored webhook, querying gateway directly",
		zap.String("correlation_id", correlationID))

	result, err := s.gateway.LookupResult(ctx, correlationID)
	if err != nil {
		return nil, err
	}

	notif := NotificationFromLookup(correlationID, result)
	payload, _ := json.Marshal(notif)
	scanned := models.WebhookRecord{
		WebhookType:          models.WebhookTypeRecoveredScan,
		GatewayCorrelationID: correlationID,
		Payload:              payload,
	}
	if err := s.db.WithContext(ctx).Create(&scanned).Error; err != nil {
		return nil, apperrors.Persistence("Failed to store recovered notification", err)
	}

	return s.reconcile(ctx, notif, &scanned)
}

func (s *ReconcileService) recoverByEmail(ctx context.Context, email string) (*ReconcileResult, error) {
	var record models.WebhookRecord
	err := s.db.WithContext(ctx).
		Where("payload ->> 'Email' = ?", email).
		Order("created_at desc").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("No notification references this email")
		}
		return nil, apperrors.Persistence("Failed to query webhook records", err)
	}

	notif, parseErr := ParseNotification(record.Payload)
	if parseErr != nil {
		return nil, parseErr
	}
	return s.reconcile(ctx, notif, &record)
}

// reconcile applies one notification's effect exactly once.
func (s *ReconcileService) reconcile(ctx context.Context, notif *Notification, record *models.WebhookRecord) (*ReconcileResult, error) {
	correlationID := notif.LowProfileID
	result := &ReconcileResult{CorrelationID: correlationID, WebhookID: record.ID}
	logger := s.logger.With(
		zap.String("correlation_id", correlationID),
		zap.Uint("webhook_id", record.ID),
	)

	if !notif.Success() {
		s.finishRecord(ctx, record, map[string]interface{}{
			"status":        "rejected",
			"response_code": notif.ResponseCode,
		})
		return nil, apperrors.UpstreamGateway("Gateway reported an unsuccessful transaction",
			fmt.Errorf("gateway code %s: %s", notif.ResponseCode, notif.Description))
	}

	// Claim the correlation id before any side effect. The Redis lock keeps
	// two concurrent reconciliations from racing past the read check; the
	// conditional session update below is the durable authority.
	if s.cache != nil {
		lockKey := "reconcile:" + correlationID
		acquired, err := s.cache.AcquireLock(ctx, lockKey, claimLockTTL)
		if err != nil {
			logger.Warn("claim lock unavailable, relying on conditional update", zap.Error(err))
		} else if !acquired {
			logger.Info("reconciliation already in progress")
			result.Status = ReconcileInProgress
			return result, nil
		} else {
			defer func() {
				if err := s.cache.ReleaseLock(context.Background(), lockKey); err != nil {
					logger.Warn("failed to release claim lock", zap.Error(err))
				}
			}()
		}
	}

	// Idempotency guard: the success audit entry is the terminal effect and
	// the only thing that short-circuits a replay. A claimed session on its
	// own is not proof the writes landed.
	var logCount int64
	if err := s.db.WithContext(ctx).Model(&models.PaymentLogEntry{}).
		Where("gateway_correlation_id = ? AND status = ?", correlationID, models.PaymentLogStatusSuccess).
		Count(&logCount).Error; err != nil {
		return nil, apperrors.Persistence("Failed to check audit log", err)
	}
	if logCount > 0 {
		logger.Info("correlation id already applied, short-circuiting")
		result.Status = ReconcileAlreadyProcessed
		return result, nil
	}

	// Conditional claim update: complete the session only if it has not
	// reached a terminal status yet.
	var session models.PaymentSession
	sessionFound := true
	if err := s.db.WithContext(ctx).Preload("Plan").
		Where("gateway_correlation_id = ?", correlationID).
		First(&session).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Persistence("Failed to load payment session", err)
		}
		sessionFound = false
		logger.Warn("no payment session for correlation id, applying notification only")
	}

	if sessionFound {
		result.SessionID = session.ID
		switch {
		case session.Status == models.SessionStatusCompleted:
			// claimed by an earlier attempt that died before its writes
			// landed (no success log exists, checked above): resume them
			logger.Info("resuming partially applied session")
		case session.Status.IsTerminal():
			// failed or expired before the gateway's signal arrived; the
			// charge still happened, so apply without reviving the session
			logger.Warn("success signal for a terminal session",
				zap.String("session_status", string(session.Status)))
		default:
			details, _ := json.Marshal(notif)
			claim := s.db.WithContext(ctx).Model(&models.PaymentSession{}).
				Where("gateway_correlation_id = ? AND status IN ?", correlationID,
					[]models.SessionStatus{models.SessionStatusInitiated, models.SessionStatusPending}).
				Updates(map[string]interface{}{
					"status":          models.SessionStatusCompleted,
					"payment_details": details,
				})
			if claim.Error != nil {
				return nil, apperrors.Persistence("Failed to claim payment session", claim.Error)
			}
			if claim.RowsAffected == 0 {
				// a concurrent reconciliation claimed the session between
				// the read and the update; its success log gates replays
				logger.Info("session claimed concurrently, backing off")
				result.Status = ReconcileInProgress
				return result, nil
			}
		}
	}

	user, err := s.resolveUser(ctx, notif, &session, sessionFound)
	if err != nil {
		s.holdUnresolved(ctx, record, notif, err)
		return nil, err
	}
	result.UserID = user.ID

	// Best-effort writes: each target table retries independently and a
	// failure in one does not roll back the others.
	plan := session.Plan
	if !sessionFound {
		plan = models.Plan{}
	}

	tokenID, err := s.storeToken(ctx, user.ID, notif)
	if err != nil {
		logger.Error("token write failed", zap.Error(err))
		result.PartialErrors = append(result.PartialErrors, "payment_token: "+err.Error())
	}

	subID, err := s.upsertSubscription(ctx, user.ID, plan, notif, tokenID)
	if err != nil {
		logger.Error("subscription write failed", zap.Error(err))
		result.PartialErrors = append(result.PartialErrors, "subscription: "+err.Error())
	}
	result.SubscriptionID = subID

	if len(result.PartialErrors) > 0 {
		// the success audit entry is the replay guard; never write it while
		// sibling writes are missing, or the replay would short-circuit
		logger.Warn("skipping audit entry until a replay completes the missing writes")
	} else if err := s.appendLog(ctx, user.ID, subID, notif); err != nil {
		logger.Error("audit log write failed", zap.Error(err))
		result.PartialErrors = append(result.PartialErrors, "payment_log: "+err.Error())
	}

	result.Status = ReconcileApplied
	snapshot := map[string]interface{}{
		"status":          result.Status,
		"user_id":         user.ID,
		"subscription_id": subID,
	}
	if len(result.PartialErrors) > 0 {
		snapshot["partial_errors"] = result.PartialErrors
	}
	s.finishRecord(ctx, record, snapshot)

	logger.Info("reconciliation applied",
		zap.Uint("user_id", user.ID),
		zap.Uint("subscription_id", subID),
		zap.Int("partial_errors", len(result.PartialErrors)),
	)
	return result, nil
}

// resolveUser binds the notification to a user: the session's user if bound,
// otherwise by the contact email from the anonymous snapshot or notification.
func (s *ReconcileService) resolveUser(ctx context.Context, notif *Notification, session *models.PaymentSession, sessionFound bool) (*models.User, error) {
	if sessionFound && session.UserID != nil {
		var user models.User
		if err := s.db.WithContext(ctx).First(&user, *session.UserID).Error; err == nil {
			return &user, nil
		}
	}

	email := notif.Email
	if sessionFound && len(session.AnonymousData) > 0 {
		var contact models.AnonymousContact
		if err := json.Unmarshal(session.AnonymousData, &contact); err == nil && contact.Email != "" {
			email = contact.Email
		}
	}
	if email == "" {
		return nil, apperrors.IdentityResolution("Notification carries no resolvable identity", nil)
	}

	return s.identity.ResolveByEmail(ctx, email)
}

// holdUnresolved marks the record unresolved and alerts support; subscription
// state stays untouched until someone recovers it manually.
func (s *ReconcileService) holdUnresolved(ctx context.Context, record *models.WebhookRecord, notif *Notification, cause error) {
	s.logger.Warn("holding unresolved notification",
		zap.String("correlation_id", notif.LowProfileID),
		zap.Uint("webhook_id", record.ID),
		zap.Error(cause),
	)

	snapshot := map[string]interface{}{
		"status": "unresolved",
		"error":  cause.Error(),
	}
	data, _ := json.Marshal(snapshot)
	s.db.WithContext(ctx).Model(record).Update("processing_result", json.RawMessage(data))

	if s.email != nil {
		subject := fmt.Sprintf("Unresolved payment notification %s", notif.LowProfileID)
		body := fmt.Sprintf("Webhook %d for correlation id %s could not be bound to a user: %v\nRecover it via POST /api/admin/recover.",
			record.ID, notif.LowProfileID, cause)
		if err := s.email.AlertSupport(subject, body); err != nil {
			s.logger.Warn("support alert failed", zap.Error(err))
		}
	}
}

func (s *ReconcileService) storeToken(ctx context.Context, userID uint, notif *Notification) (*uint, error) {
	if notif.TokenInfo.Token == "" {
		return nil, nil
	}

	var tokenID uint
	err := s.withRetry(ctx, "payment_token", func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// a replay of the same notification keeps the token it stored
			var existing models.PaymentToken
			err := tx.Where("user_id = ? AND token = ? AND is_active = ?",
				userID, notif.TokenInfo.Token, true).First(&existing).Error
			if err == nil {
				tokenID = existing.ID
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			// replace semantics: a user holds one active token
			if err := tx.Model(&models.PaymentToken{}).
				Where("user_id = ? AND is_active = ?", userID, true).
				Update("is_active", false).Error; err != nil {
				return err
			}
			token := models.PaymentToken{
				UserID:      userID,
				Token:       notif.TokenInfo.Token,
				TokenExpiry: parseTokenExpiry(notif.TokenInfo.TokenExDate),
				Last4:       notif.TranzactionInfo.Last4CardDigits,
				IsActive:    true,
			}
			if err := tx.Create(&token).Error; err != nil {
				return err
			}
			tokenID = token.ID
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &tokenID, nil
}

func (s *ReconcileService) upsertSubscription(ctx context.Context, userID uint, plan models.Plan, notif *Notification, tokenID *uint) (uint, error) {
	method, _ := json.Marshal(map[string]string{
		"card_owner": notif.TranzactionInfo.CardOwnerName,
		"last4":      notif.TranzactionInfo.Last4CardDigits,
		"card_month": notif.TranzactionInfo.CardMonth,
		"card_year":  notif.TranzactionInfo.CardYear,
	})

	var subID uint
	err := s.withRetry(ctx, "subscription", func() error {
		// re-read durable state on every attempt so a retry never feeds an
		// extended period back into the extension
		var sub models.SubscriptionRecord
		err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if sub.ID != 0 && sub.LastAppliedCorrelationID == notif.LowProfileID {
			// this payment already extended the period; a replay only
			// fills in the sibling tables
			subID = sub.ID
			return nil
		}

		now := time.Now()
		periodEnd := extendPeriod(sub.CurrentPeriodEndsAt, now, plan)

		sub.UserID = userID
		sub.Status = models.SubscriptionStatusActive
		sub.CurrentPeriodEndsAt = periodEnd
		sub.PaymentMethod = method
		sub.LastAppliedCorrelationID = notif.LowProfileID
		if plan.Code != "" {
			sub.PlanType = plan.Code
		}
		if tokenID != nil {
			sub.PaymentTokenID = tokenID
		}
		if plan.OperationType() == models.OperationTokenizeOnly || plan.OperationType() == models.OperationChargeAndTokenize {
			next := periodEnd
			sub.NextChargeDate = &next
		}
		if plan.TrialDays > 0 && sub.TrialEndsAt == nil {
			trialEnd := now.AddDate(0, 0, plan.TrialDays)
			sub.TrialEndsAt = &trialEnd
		}

		if err := s.db.WithContext(ctx).Save(&sub).Error; err != nil {
			return err
		}
		subID = sub.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return subID, nil
}

func (s *ReconcileService) appendLog(ctx context.Context, userID, subscriptionID uint, notif *Notification) error {
	data, _ := json.Marshal(notif)
	entry := models.PaymentLogEntry{
		UserID:               userID,
		SubscriptionID:       subscriptionID,
		GatewayCorrelationID: notif.LowProfileID,
		Amount:               notif.TranzactionInfo.Amount,
		Status:               models.PaymentLogStatusSuccess,
		TransactionID:        notif.TranzactionID,
		PaymentData:          data,
	}
	return s.withRetry(ctx, "payment_log", func() error {
		return s.db.WithContext(ctx).Create(&entry).Error
	})
}

// withRetry runs a write with bounded attempts and linear backoff
func (s *ReconcileService) withRetry(ctx context.Context, name string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		s.logger.Warn("write failed, retrying",
			zap.String("target", name),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return apperrors.Persistence("Write canceled", ctx.Err())
		case <-time.After(persistBackoff * time.Duration(attempt)):
		}
	}
	return apperrors.Persistence("Write failed after retries", lastErr)
}

func (s *ReconcileService) finishRecord(ctx context.Context, record *models.WebhookRecord, snapshot map[string]interface{}) {
	data, _ := json.Marshal(snapshot)
	now := time.Now()
	err := s.db.WithContext(ctx).Model(record).Updates(map[string]interface{}{
		"processed":         true,
		"processed_at":      &now,
		"processing_result": json.RawMessage(data),
	}).Error
	if err != nil {
		s.logger.Error("failed to mark webhook processed",
			zap.Uint("webhook_id", record.ID),
			zap.Error(err),
		)
	}
}

// extendPeriod computes the new subscription period end. An active remaining
// period is extended from its current end; a lapsed one restarts from now.
func extendPeriod(currentEnd, now time.Time, plan models.Plan) time.Time {
	base := now
	if currentEnd.After(now) {
		base = currentEnd
	}
	if plan.Code == "" {
		// notification-only recovery without a session: grant a month
		return base.AddDate(0, 1, 0)
	}
	return plan.PeriodEnd(base)
}
