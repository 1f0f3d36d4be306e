// Package audit persists the security event trail: sign-ins, bindings,
// verification results and second-factor changes. Recording never fails
// the action it records; errors stay in the logs.
package audit

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vibepatch/identity/internal/models"
)

// Recorder writes audit events through GORM.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder constructs a Recorder backed by GORM.
func NewRecorder(db *gorm.DB) *Recorder { return &Recorder{db: db} }

// Event captures one action before persistence.
type Event struct {
	AccountID uint64 // 0 when no account was resolved
	Event     string
	Provider  string
	Detail    string
	ClientIP  string
}

// Record persists an event. Safe on a nil recorder so callers do not need
// to care whether the trail is wired.
func (r *Recorder) Record(event Event) {
	if r == nil || r.db == nil {
		return
	}

	// Detached context: a canceled request must not drop its own trail.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row := models.AuditEvent{
		Event:     event.Event,
		Provider:  event.Provider,
		Detail:    event.Detail,
		ClientIP:  event.ClientIP,
		CreatedAt: time.Now().UTC(),
	}
	if event.AccountID != 0 {
		accountID := event.AccountID
		row.AccountID = &accountID
	}

	if errCreate := r.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).Warnf("audit: record %s event failed", event.Event)
	}
}

// ListForAccount returns an account's most recent events, newest first.
func (r *Recorder) ListForAccount(ctx context.Context, accountID uint64, limit int) ([]models.AuditEvent, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	var events []models.AuditEvent
	errList := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	if errList != nil {
		return nil, fmt.Errorf("audit: list events: %w", errList)
	}
	return events, nil
}
