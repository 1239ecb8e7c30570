package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"traderoom_app_echo/internal/models"
)

func TestExtendPeriod(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	monthly := models.Plan{Code: models.PlanCodeMonthly, BillingInterval: "monthly"}
	annual := models.Plan{Code: models.PlanCodeAnnual, BillingInterval: "yearly"}

	tests := []struct {
		name       string
		currentEnd time.Time
		plan       models.Plan
		expected   time.Time
	}{
		{
			name:       "lapsed subscription restarts from now",
			currentEnd: now.AddDate(0, -2, 0),
			plan:       monthly,
			expected:   now.AddDate(0, 1, 0),
		},
		{
			name:       "active subscription extends from its current end",
			currentEnd: now.AddDate(0, 0, 10),
			plan:       annual,
			expected:   now.AddDate(1, 0, 10),
		},
		{
			name:       "zero current end restarts from now",
			currentEnd: time.Time{},
			plan:       monthly,
			expected:   now.AddDate(0, 1, 0),
		},
		{
			name:       "unknown plan grants a month",
			currentEnd: now.AddDate(0, -1, 0),
			plan:       models.Plan{},
			expected:   now.AddDate(0, 1, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extendPeriod(tt.currentEnd, now, tt.plan)
			if !result.Equal(tt.expected) {
				t.Errorf("extendPeriod(%v, %v, %q) = %v; want %v",
					tt.currentEnd, now, tt.plan.Code, result, tt.expected)
			}
		})
	}
}

func openReconcileDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "reconcile.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Plan{},
		&models.PaymentSession{},
		&models.WebhookRecord{},
		&models.SubscriptionRecord{},
		&models.PaymentToken{},
		&models.PaymentLogEntry{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestReconcileService(db *gorm.DB, gateway *GatewayService) *ReconcileService {
	logger := zap.NewNop()
	identity := NewIdentityService(db, nil, logger)
	return NewReconcileService(db, nil, gateway, identity, nil, logger)
}

type reconcileFixture struct {
	user    models.User
	plan    models.Plan
	session models.PaymentSession
}

func seedAnnualCheckout(t *testing.T, db *gorm.DB, email, correlationID string) reconcileFixture {
	t.Helper()

	user := models.User{Name: "Dana", Email: email}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	var plan models.Plan
	err := db.Where(models.Plan{Code: models.PlanCodeAnnual}).
		Attrs(models.Plan{Name: "Annual Membership", Price: 1490, BillingInterval: "yearly", IsActive: true}).
		FirstOrCreate(&plan).Error
	if err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}
	session := models.PaymentSession{
		UserID:               &user.ID,
		PlanID:               plan.ID,
		Amount:               plan.Price,
		Currency:             "ILS",
		OperationType:        models.OperationChargeAndTokenize,
		Reference:            "ref-" + correlationID,
		GatewayCorrelationID: correlationID,
		Status:               models.SessionStatusPending,
		ExpiresAt:            time.Now().Add(30 * time.Minute),
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return reconcileFixture{user: user, plan: plan, session: session}
}

func successPayload(correlationID string) []byte {
	return []byte(`{
		"ResponseCode": "000",
		"LowProfileId": "` + correlationID + `",
		"TranzactionId": "tx-1",
		"TokenInfo": {"Token": "tok_1", "TokenExDate": "0128"},
		"TranzactionInfo": {"Last4CardDigits": "4242", "CardOwnerName": "Dana", "Amount": 1490}
	}`)
}

func assertOneYearFromNow(t *testing.T, got time.Time, label string) {
	t.Helper()
	want := time.Now().AddDate(1, 0, 0)
	diff := got.Sub(want)
	if diff < -time.Hour || diff > time.Hour {
		t.Errorf("%s = %v; want about %v (one billing interval)", label, got, want)
	}
}

func TestReconcileDuplicateWebhookAppliesOnce(t *testing.T) {
	db := openReconcileDB(t)
	svc := newTestReconcileService(db, nil)
	fx := seedAnnualCheckout(t, db, "dana@example.com", "cid-dup")
	ctx := context.Background()

	first, err := svc.HandleWebhook(ctx, successPayload("cid-dup"))
	if err != nil {
		t.Fatalf("first webhook failed: %v", err)
	}
	if first.Status != ReconcileApplied {
		t.Fatalf("first webhook status = %q; want %q", first.Status, ReconcileApplied)
	}
	if len(first.PartialErrors) != 0 {
		t.Fatalf("first webhook partial errors = %v; want none", first.PartialErrors)
	}

	second, err := svc.HandleWebhook(ctx, successPayload("cid-dup"))
	if err != nil {
		t.Fatalf("duplicate webhook failed: %v", err)
	}
	if second.Status != ReconcileAlreadyProcessed {
		t.Errorf("duplicate webhook status = %q; want %q", second.Status, ReconcileAlreadyProcessed)
	}

	var logCount int64
	db.Model(&models.PaymentLogEntry{}).Where("gateway_correlation_id = ?", "cid-dup").Count(&logCount)
	if logCount != 1 {
		t.Errorf("payment log entries = %d; want exactly 1", logCount)
	}

	var sub models.SubscriptionRecord
	if err := db.Where("user_id = ?", fx.user.ID).First(&sub).Error; err != nil {
		t.Fatalf("subscription not found: %v", err)
	}
	assertOneYearFromNow(t, sub.CurrentPeriodEndsAt, "CurrentPeriodEndsAt")

	var session models.PaymentSession
	db.First(&session, fx.session.ID)
	if session.Status != models.SessionStatusCompleted {
		t.Errorf("session status = %q; want %q", session.Status, models.SessionStatusCompleted)
	}
}

func TestRecoverByLookupMatchesNativeApply(t *testing.T) {
	db := openReconcileDB(t)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"ResponseCode": "000",
			"ReturnValue": "ref-cid-lost",
			"TokenInfo": {"Token": "tok_1", "TokenExDate": "0128"},
			"TranzactionInfo": {"Last4CardDigits": "4242", "CardOwnerName": "Dana", "Amount": 1490}
		}`))
	}))
	defer server.Close()

	svc := newTestReconcileService(db, testGateway(server.URL))

	native := seedAnnualCheckout(t, db, "native@example.com", "cid-native")
	lost := seedAnnualCheckout(t, db, "lost@example.com", "cid-lost")

	if _, err := svc.HandleWebhook(ctx, successPayload("cid-native")); err != nil {
		t.Fatalf("native webhook failed: %v", err)
	}

	// the callback for cid-lost never arrived; recovery pulls the result
	// straight from the gateway
	res, err := svc.RecoverByCorrelationID(ctx, "cid-lost")
	if err != nil {
		t.Fatalf("recovery failed: %v", err)
	}
	if res.Status != ReconcileApplied {
		t.Fatalf("recovery status = %q; want %q", res.Status, ReconcileApplied)
	}

	var scanned models.WebhookRecord
	if err := db.Where("gateway_correlation_id = ? AND webhook_type = ?",
		"cid-lost", models.WebhookTypeRecoveredScan).First(&scanned).Error; err != nil {
		t.Errorf("recovered scan record not stored: %v", err)
	}

	for _, fx := range []reconcileFixture{native, lost} {
		var sub models.SubscriptionRecord
		if err := db.Where("user_id = ?", fx.user.ID).First(&sub).Error; err != nil {
			t.Fatalf("subscription for user %d not found: %v", fx.user.ID, err)
		}
		if sub.Status != models.SubscriptionStatusActive {
			t.Errorf("user %d subscription status = %q; want active", fx.user.ID, sub.Status)
		}
		if sub.PlanType != models.PlanCodeAnnual {
			t.Errorf("user %d plan type = %q; want %q", fx.user.ID, sub.PlanType, models.PlanCodeAnnual)
		}
		assertOneYearFromNow(t, sub.CurrentPeriodEndsAt, "CurrentPeriodEndsAt")

		var token models.PaymentToken
		if err := db.Where("user_id = ? AND is_active = ?", fx.user.ID, true).First(&token).Error; err != nil {
			t.Fatalf("active token for user %d not found: %v", fx.user.ID, err)
		}
		if token.Token != "tok_1" {
			t.Errorf("user %d token = %q; want tok_1", fx.user.ID, token.Token)
		}

		var entry models.PaymentLogEntry
		if err := db.Where("user_id = ?", fx.user.ID).First(&entry).Error; err != nil {
			t.Fatalf("payment log for user %d not found: %v", fx.user.ID, err)
		}
		if entry.Amount != 1490 || entry.Status != models.PaymentLogStatusSuccess {
			t.Errorf("user %d log entry = %+v; want amount 1490, status success", fx.user.ID, entry)
		}

		var session models.PaymentSession
		db.First(&session, fx.session.ID)
		if session.Status != models.SessionStatusCompleted {
			t.Errorf("user %d session status = %q; want completed", fx.user.ID, session.Status)
		}
	}
}

func TestReconcileResumesAfterIdentityFailure(t *testing.T) {
	db := openReconcileDB(t)
	svc := newTestReconcileService(db, nil)
	ctx := context.Background()

	plan := models.Plan{Code: models.PlanCodeAnnual, Name: "Annual Membership", Price: 1490, BillingInterval: "yearly", IsActive: true}
	if err := db.Create(&plan).Error; err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}
	session := models.PaymentSession{
		AnonymousData:        []byte(`{"name": "Dana", "email": "late@example.com"}`),
		PlanID:               plan.ID,
		Amount:               plan.Price,
		OperationType:        models.OperationChargeAndTokenize,
		Reference:            "ref-cid-held",
		GatewayCorrelationID: "cid-held",
		Status:               models.SessionStatusPending,
		ExpiresAt:            time.Now().Add(30 * time.Minute),
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	// no local user and no identity provider: the apply must fail and hold
	if _, err := svc.HandleWebhook(ctx, successPayload("cid-held")); err == nil {
		t.Fatal("expected an identity resolution failure")
	}

	var claimed models.PaymentSession
	db.First(&claimed, session.ID)
	if claimed.Status != models.SessionStatusCompleted {
		t.Fatalf("session status after failed apply = %q; want completed (claimed)", claimed.Status)
	}
	var subCount int64
	db.Model(&models.SubscriptionRecord{}).Count(&subCount)
	if subCount != 0 {
		t.Fatalf("subscriptions after failed apply = %d; want 0", subCount)
	}

	// the account now exists; a replay must complete the paid transaction
	// even though the session was already claimed
	user := models.User{Name: "Dana", Email: "late@example.com"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	var record models.WebhookRecord
	if err := db.Where("gateway_correlation_id = ?", "cid-held").First(&record).Error; err != nil {
		t.Fatalf("webhook record not found: %v", err)
	}

	res, err := svc.Recover(ctx, RecoveryRequest{WebhookID: record.ID})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if res.Status != ReconcileApplied {
		t.Errorf("replay status = %q; want %q", res.Status, ReconcileApplied)
	}

	var sub models.SubscriptionRecord
	if err := db.Where("user_id = ?", user.ID).First(&sub).Error; err != nil {
		t.Fatalf("subscription not created by replay: %v", err)
	}
	assertOneYearFromNow(t, sub.CurrentPeriodEndsAt, "CurrentPeriodEndsAt")

	var logCount int64
	db.Model(&models.PaymentLogEntry{}).Where("gateway_correlation_id = ?", "cid-held").Count(&logCount)
	if logCount != 1 {
		t.Errorf("payment log entries = %d; want exactly 1", logCount)
	}
}

func TestReconcileRetryExtendsPeriodOnce(t *testing.T) {
	db := openReconcileDB(t)
	svc := newTestReconcileService(db, nil)
	fx := seedAnnualCheckout(t, db, "retry@example.com", "cid-retry")
	ctx := context.Background()

	// fail the first subscription insert to force one retry attempt
	var failed bool
	err := db.Callback().Create().Before("gorm:create").Register("fail_first_subscription", func(tx *gorm.DB) {
		if failed {
			return
		}
		if _, ok := tx.Statement.Dest.(*models.SubscriptionRecord); ok {
			failed = true
			tx.AddError(errors.New("transient write failure"))
		}
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}

	res, err := svc.HandleWebhook(ctx, successPayload("cid-retry"))
	if err != nil {
		t.Fatalf("webhook failed: %v", err)
	}
	if res.Status != ReconcileApplied {
		t.Fatalf("status = %q; want %q", res.Status, ReconcileApplied)
	}
	if !failed {
		t.Fatal("fault was never injected")
	}
	if len(res.PartialErrors) != 0 {
		t.Fatalf("partial errors = %v; want none after a successful retry", res.PartialErrors)
	}

	var sub models.SubscriptionRecord
	if err := db.Where("user_id = ?", fx.user.ID).First(&sub).Error; err != nil {
		t.Fatalf("subscription not found: %v", err)
	}
	// a single payment extends by exactly one interval, retries included
	assertOneYearFromNow(t, sub.CurrentPeriodEndsAt, "CurrentPeriodEndsAt")
}
