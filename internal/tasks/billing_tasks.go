package tasks

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"traderoom_app_echo/internal/models"
)

// RenewalSweepTaskDef invokes the external stored procedure that scans due
// subscriptions and issues off-session charges against stored tokens. Only
// the trigger and error surfacing live here; per-subscription logic is the
// procedure's.
type RenewalSweepTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *RenewalSweepTaskDef) TaskID() string {
	return "process_renewals"
}

// HandleExecution calls the renewal procedure and surfaces its outcome
func (t *RenewalSweepTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	started := time.Now()

	if err := db.WithContext(ctx).Exec("CALL process_due_renewals()").Error; err != nil {
		log.Printf("[Task: process_renewals] procedure failed: %v", err)
		return nil, err
	}

	// Count what the procedure left due for visibility in task history
	var stillDue int64
	db.WithContext(ctx).Model(&models.SubscriptionRecord{}).
		Where("status = ? AND next_charge_date <= ?", models.SubscriptionStatusActive, time.Now()).
		Count(&stillDue)

	return map[string]interface{}{
		"status":     "success",
		"runtime_ms": time.Since(started).Milliseconds(),
		"still_due":  stillDue,
	}, nil
}

// RenewalSweepTask is the singleton instance of RenewalSweepTaskDef
var RenewalSweepTask = &RenewalSweepTaskDef{}

// ExpireSessionsTaskDef abandons payment sessions that never reached a
// terminal status before their expiry timestamp.
type ExpireSessionsTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *ExpireSessionsTaskDef) TaskID() string {
	return "expire_stale_sessions"
}

// HandleExecution moves stale initiated/pending sessions to expired. The
// WHERE clause keeps the transition monotonic: terminal sessions are never
// touched even if their expiry has passed.
func (t *ExpireSessionsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	res := db.WithContext(ctx).Model(&models.PaymentSession{}).
		Where("status IN ? AND expires_at <= ?",
			[]models.SessionStatus{models.SessionStatusInitiated, models.SessionStatusPending},
			time.Now()).
		Update("status", models.SessionStatusExpired)
	if res.Error != nil {
		return nil, res.Error
	}

	if res.RowsAffected > 0 {
		log.Printf("[Task: expire_stale_sessions] expired %d sessions", res.RowsAffected)
	}

	return map[string]interface{}{
		"status":  "success",
		"expired": res.RowsAffected,
	}, nil
}

// ExpireSessionsTask is the singleton instance of ExpireSessionsTaskDef
var ExpireSessionsTask = &ExpireSessionsTaskDef{}
