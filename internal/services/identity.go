package services

import (
	"context"
	"time"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"traderoom_app_echo/internal/apperrors"
	"traderoom_app_echo/internal/models"
)

const (
	identityLookupAttempts = 3
	identityLookupBackoff  = 500 * time.Millisecond
)

// IdentityService resolves user identities against the identity provider and
// keeps a local users row in sync. Reconciliation uses it when a notification
// arrives for a session that was started anonymously.
type IdentityService struct {
	db         *gorm.DB
	authClient *auth.Client
	logger     *zap.Logger
}

func NewIdentityService(db *gorm.DB, authClient *auth.Client, logger *zap.Logger) *IdentityService {
	return &IdentityService{db: db, authClient: authClient, logger: logger}
}

// ResolveByEmail finds the local user for an email address. If no local row
// exists it consults the identity provider with bounded retries and upserts a
// local row from the provider record.
func (s *IdentityService) ResolveByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, apperrors.Validation("Email is required to resolve an identity")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, apperrors.Persistence("Failed to look up user", err)
	}

	if s.authClient == nil {
		return nil, apperrors.IdentityResolution("Identity provider is not configured", nil)
	}

	var record *auth.UserRecord
	var lookupErr error
	for attempt := 1; attempt <= identityLookupAttempts; attempt++ {
		record, lookupErr = s.authClient.GetUserByEmail(ctx, email)
		if lookupErr == nil {
			break
		}
		if auth.IsUserNotFound(lookupErr) {
			return nil, apperrors.IdentityResolution("No account exists for this email", lookupErr)
		}
		s.logger.Warn("identity lookup failed, retrying",
			zap.String("email", email),
			zap.Int("attempt", attempt),
			zap.Error(lookupErr),
		)
		select {
		case <-ctx.Done():
			return nil, apperrors.IdentityResolution("Identity lookup canceled", ctx.Err())
		case <-time.After(identityLookupBackoff * time.Duration(attempt)):
		}
	}
	if lookupErr != nil {
		return nil, apperrors.IdentityResolution("Identity provider lookup failed", lookupErr)
	}

	user = models.User{
		Name:        record.DisplayName,
		Email:       email,
		Phone:       record.PhoneNumber,
		FirebaseUID: record.UID,
	}
	if err := s.db.WithContext(ctx).Where("email = ?", email).FirstOrCreate(&user).Error; err != nil {
		return nil, apperrors.Persistence("Failed to store resolved user", err)
	}

	return &user, nil
}
