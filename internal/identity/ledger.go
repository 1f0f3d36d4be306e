// Package identity manages the ledger of external identity bindings: the
// durable record of which provider subject belongs to which account.
package identity

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vibepatch/identity/internal/models"
)

// ErrDuplicateBinding indicates the (provider, subject) pair is already
// bound to some account. The database unique index is the arbiter, so two
// racing binds cannot both succeed.
var ErrDuplicateBinding = errors.New("identity already bound")

// Ledger reads and writes identity bindings.
type Ledger struct {
	db *gorm.DB
}

// NewLedger constructs a Ledger backed by GORM.
func NewLedger(db *gorm.DB) *Ledger { return &Ledger{db: db} }

// Find returns the binding for a provider subject, or nil when absent.
func (l *Ledger) Find(ctx context.Context, provider, subjectID string) (*models.IdentityBinding, error) {
	var binding models.IdentityBinding
	errFind := l.db.WithContext(ctx).
		Where("provider = ? AND subject_id = ?", provider, subjectID).
		First(&binding).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, fmt.Errorf("identity: find binding: %w", errFind)
	}
	return &binding, nil
}

// Get returns a binding by id, or nil when absent.
func (l *Ledger) Get(ctx context.Context, bindingID uint64) (*models.IdentityBinding, error) {
	var binding models.IdentityBinding
	errFind := l.db.WithContext(ctx).First(&binding, bindingID).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, fmt.Errorf("identity: get binding: %w", errFind)
	}
	return &binding, nil
}

// Create inserts a binding. It returns ErrDuplicateBinding when the
// (provider, subject) pair is already taken, by this or any other account.
func (l *Ledger) Create(ctx context.Context, accountID uint64, provider, subjectID string, snapshot datatypes.JSON) (*models.IdentityBinding, error) {
	binding := &models.IdentityBinding{
		AccountID:       accountID,
		Provider:        provider,
		SubjectID:       subjectID,
		ProfileSnapshot: snapshot,
	}
	if errCreate := l.db.WithContext(ctx).Create(binding).Error; errCreate != nil {
		if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateBinding
		}
		return nil, fmt.Errorf("identity: create binding: %w", errCreate)
	}
	return binding, nil
}

// ListForAccount returns all bindings owned by an account, oldest first.
func (l *Ledger) ListForAccount(ctx context.Context, accountID uint64) ([]models.IdentityBinding, error) {
	var bindings []models.IdentityBinding
	errList := l.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id asc").
		Find(&bindings).Error
	if errList != nil {
		return nil, fmt.Errorf("identity: list bindings: %w", errList)
	}
	return bindings, nil
}

// HasProvider reports whether an account has a binding for a provider.
func (l *Ledger) HasProvider(ctx context.Context, accountID uint64, provider string) (bool, error) {
	var count int64
	errCount := l.db.WithContext(ctx).
		Model(&models.IdentityBinding{}).
		Where("account_id = ? AND provider = ?", accountID, provider).
		Count(&count).Error
	if errCount != nil {
		return false, fmt.Errorf("identity: count bindings: %w", errCount)
	}
	return count > 0, nil
}

// UpdateSnapshot refreshes the stored profile snapshot for a binding.
func (l *Ledger) UpdateSnapshot(ctx context.Context, bindingID uint64, snapshot datatypes.JSON) error {
	errUpdate := l.db.WithContext(ctx).
		Model(&models.IdentityBinding{}).
		Where("id = ?", bindingID).
		Update("profile_snapshot", snapshot).Error
	if errUpdate != nil {
		return fmt.Errorf("identity: update snapshot: %w", errUpdate)
	}
	return nil
}

// Delete removes a binding by id. It reports whether a row was deleted;
// deleting an absent binding is not an error.
func (l *Ledger) Delete(ctx context.Context, bindingID uint64) (bool, error) {
	res := l.db.WithContext(ctx).Delete(&models.IdentityBinding{}, bindingID)
	if res.Error != nil {
		return false, fmt.Errorf("identity: delete binding: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
