package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"traderoom_app_echo/internal/apperrors"
	"traderoom_app_echo/internal/models"
)

func TestInitiateCheckoutRejectsUnknownOverride(t *testing.T) {
	db := openReconcileDB(t)
	plan := models.Plan{Code: models.PlanCodeAnnual, Name: "Annual Membership", Price: 1490, BillingInterval: "yearly", IsActive: true}
	if err := db.Create(&plan).Error; err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}

	svc := NewCheckoutService(db, NewCatalogService(db, nil), nil, "https://app.example", zap.NewNop())

	_, err := svc.InitiateCheckout(context.Background(), CheckoutInput{
		PlanCode:          models.PlanCodeAnnual,
		Email:             "dana@example.com",
		Name:              "Dana",
		OperationOverride: "charge_twice",
	})
	if err == nil {
		t.Fatal("expected a validation error for an unknown operation override")
	}
	if apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Errorf("error code = %q; want %q", apperrors.CodeOf(err), apperrors.CodeValidation)
	}

	// rejected before anything durable happened
	var count int64
	db.Model(&models.PaymentSession{}).Count(&count)
	if count != 0 {
		t.Errorf("payment sessions = %d; want none after a rejected override", count)
	}
}

func TestInitiateCheckoutAppliesOverride(t *testing.T) {
	db := openReconcileDB(t)
	plan := models.Plan{Code: models.PlanCodeAnnual, Name: "Annual Membership", Price: 1490, BillingInterval: "yearly", IsActive: true}
	if err := db.Create(&plan).Error; err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("tranmode"); got != "VK" {
			t.Errorf("tranmode = %q; want %q for a tokenize-only override", got, "VK")
		}
		w.Write([]byte("ResponseCode=000&Description=OK&url=https%3A%2F%2Fsecure.cardgw.example%2Fform%2Fabc"))
	}))
	defer server.Close()

	svc := NewCheckoutService(db, NewCatalogService(db, nil), testGateway(server.URL), "https://app.example", zap.NewNop())

	result, err := svc.InitiateCheckout(context.Background(), CheckoutInput{
		PlanCode:          models.PlanCodeAnnual,
		Email:             "dana@example.com",
		Name:              "Dana",
		OperationOverride: models.OperationTokenizeOnly,
	})
	if err != nil {
		t.Fatalf("InitiateCheckout returned error: %v", err)
	}

	var session models.PaymentSession
	if err := db.First(&session, result.SessionID).Error; err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if session.OperationType != models.OperationTokenizeOnly {
		t.Errorf("session operation = %q; want %q", session.OperationType, models.OperationTokenizeOnly)
	}
}
