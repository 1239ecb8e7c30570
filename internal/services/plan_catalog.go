package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"traderoom_app_echo/internal/apperrors"
	"traderoom_app_echo/internal/models"
)

const planCacheTTL = 10 * time.Minute

// CatalogService resolves plan codes to catalog rows, with a Redis read
// cache in front of the database.
type CatalogService struct {
	db    *gorm.DB
	cache *RedisCache
}

func NewCatalogService(db *gorm.DB, cache *RedisCache) *CatalogService {
	return &CatalogService{db: db, cache: cache}
}

// GetPlanByCode resolves a plan code. Unknown codes are a validation error;
// no session must be created for them.
func (s *CatalogService) GetPlanByCode(ctx context.Context, code string) (*models.Plan, error) {
	if code == "" {
		return nil, apperrors.Validation("Plan code is required")
	}

	fetch := func() (models.Plan, error) {
		var plan models.Plan
		err := s.db.WithContext(ctx).Where("code = ? AND is_active = ?", code, true).First(&plan).Error
		return plan, err
	}

	var plan models.Plan
	var err error
	if s.cache != nil {
		plan, err = GetOrSet(s.cache, ctx, "plan:"+code, planCacheTTL, fetch)
	} else {
		plan, err = fetch()
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Validation("Unknown plan: " + code)
		}
		return nil, apperrors.Persistence("Failed to load plan", err)
	}
	return &plan, nil
}

// SeedDefaultPlans inserts the built-in catalog rows if they are missing
func (s *CatalogService) SeedDefaultPlans(ctx context.Context) error {
	defaults := []models.Plan{
		{Code: models.PlanCodeMonthly, Name: "Monthly Membership", Price: 149, BillingInterval: "monthly", TrialDays: 14},
		{Code: models.PlanCodeAnnual, Name: "Annual Membership", Price: 1490, BillingInterval: "yearly"},
		{Code: models.PlanCodeVIP, Name: "VIP Access", Price: 2900, BillingInterval: "onetime"},
	}

	for _, plan := range defaults {
		p := plan
		if err := s.db.WithContext(ctx).Where("code = ?", p.Code).FirstOrCreate(&p).Error; err != nil {
			return err
		}
	}
	return nil
}
