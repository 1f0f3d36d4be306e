// Package accounts persists marketplace accounts and their satellite
// records: solver profiles and terms agreements.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vibepatch/identity/internal/db"
	"github.com/vibepatch/identity/internal/models"
)

// Store errors.
var (
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrNotFound indicates the account does not exist.
	ErrNotFound = errors.New("account not found")
)

// Store reads and writes accounts.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store backed by GORM.
func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// DB exposes the underlying connection for transactional composition.
func (s *Store) DB() *gorm.DB { return s.db }

// CreateParams holds inputs for account creation.
type CreateParams struct {
	Email         *string // nil for social-only accounts
	PasswordHash  string  // empty for social-only accounts
	Nickname      string
	Role          string
	AvatarURL     string
	TermsAgreedAt time.Time
}

// Create inserts an account with its agreement record and, for solver
// capable roles, an empty solver profile. Everything happens in one
// transaction so a half-created account cannot be observed.
func (s *Store) Create(ctx context.Context, params CreateParams) (*models.Account, error) {
	if !models.ValidRole(params.Role) {
		return nil, fmt.Errorf("accounts: invalid role %q", params.Role)
	}

	account := &models.Account{
		Email:     normalizeEmail(params.Email),
		Password:  params.PasswordHash,
		Nickname:  strings.TrimSpace(params.Nickname),
		Role:      params.Role,
		AvatarURL: strings.TrimSpace(params.AvatarURL),
	}
	if !params.TermsAgreedAt.IsZero() {
		agreedAt := params.TermsAgreedAt.UTC()
		account.TermsAgreedAt = &agreedAt
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(account).Error; errCreate != nil {
			if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return fmt.Errorf("accounts: create: %w", errCreate)
		}

		agreement := &models.Agreement{
			AccountID: account.ID,
			Email:     account.Email,
			Version:   models.CurrentAgreementVersion,
			AgreedAt:  account.CreatedAt,
		}
		if account.TermsAgreedAt != nil {
			agreement.AgreedAt = *account.TermsAgreedAt
		}
		if errAgreement := tx.Create(agreement).Error; errAgreement != nil {
			return fmt.Errorf("accounts: record agreement: %w", errAgreement)
		}

		if account.CanSolve() {
			profile := &models.SolverProfile{
				AccountID:      account.ID,
				ExpertiseAreas: datatypes.JSON(`[]`),
				Available:      true,
			}
			if errProfile := tx.Create(profile).Error; errProfile != nil {
				return fmt.Errorf("accounts: create solver profile: %w", errProfile)
			}
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return account, nil
}

// GetByID loads an account, or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, accountID uint64) (*models.Account, error) {
	var account models.Account
	errFind := s.db.WithContext(ctx).First(&account, accountID).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if errFind != nil {
		return nil, fmt.Errorf("accounts: get: %w", errFind)
	}
	return &account, nil
}

// GetByEmail loads an account by email, case-insensitively, or ErrNotFound.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	errFind := s.db.WithContext(ctx).
		Where(db.EqualFoldExpr("email"), db.FoldValue(email)).
		First(&account).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if errFind != nil {
		return nil, fmt.Errorf("accounts: get by email: %w", errFind)
	}
	return &account, nil
}

// ProfileUpdate holds optional profile field changes. Nil fields are left
// untouched.
type ProfileUpdate struct {
	Nickname  *string
	AvatarURL *string
	Phone     *string
	Bio       *string
}

// UpdateProfile applies a partial profile update.
func (s *Store) UpdateProfile(ctx context.Context, accountID uint64, update ProfileUpdate) error {
	changes := map[string]any{}
	if update.Nickname != nil {
		changes["nickname"] = strings.TrimSpace(*update.Nickname)
	}
	if update.AvatarURL != nil {
		changes["avatar_url"] = strings.TrimSpace(*update.AvatarURL)
	}
	if update.Phone != nil {
		changes["phone"] = strings.TrimSpace(*update.Phone)
	}
	if update.Bio != nil {
		changes["bio"] = *update.Bio
	}
	if len(changes) == 0 {
		return nil
	}
	changes["updated_at"] = time.Now().UTC()

	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("accounts: update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVerified marks an account as identity-verified with its legal name.
// Verification never regresses: this only ever sets the flag to true.
func (s *Store) SetVerified(ctx context.Context, accountID uint64, legalName string) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"real_name":  legalName,
			"verified":   true,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("accounts: set verified: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTOTPSecret stores (or clears, with an empty secret) the TOTP secret.
func (s *Store) SetTOTPSecret(ctx context.Context, accountID uint64, secret string) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"totp_secret": secret,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("accounts: set totp secret: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an account together with its agreement and solver
// profile rows. Identity bindings are owned by the ledger and must be
// removed first.
func (s *Store) Delete(ctx context.Context, accountID uint64) error {
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).Delete(&models.SolverProfile{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", accountID).Delete(&models.Agreement{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", accountID).Delete(&models.Account{}).Error
	})
	if errTx != nil {
		return fmt.Errorf("accounts: delete: %w", errTx)
	}
	return nil
}

// GetSolverProfile loads the solver profile for an account, or nil when
// the account has none.
func (s *Store) GetSolverProfile(ctx context.Context, accountID uint64) (*models.SolverProfile, error) {
	var profile models.SolverProfile
	errFind := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&profile).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, fmt.Errorf("accounts: get solver profile: %w", errFind)
	}
	return &profile, nil
}

// SolverProfileUpdate holds optional solver profile changes.
type SolverProfileUpdate struct {
	ExperienceYears *int
	ExpertiseAreas  datatypes.JSON
	Resume          *string
	HourlyRate      *float64
	Available       *bool
}

// UpdateSolverProfile applies a partial solver profile update.
func (s *Store) UpdateSolverProfile(ctx context.Context, accountID uint64, update SolverProfileUpdate) error {
	changes := map[string]any{}
	if update.ExperienceYears != nil {
		changes["experience_years"] = *update.ExperienceYears
	}
	if update.ExpertiseAreas != nil {
		changes["expertise_areas"] = update.ExpertiseAreas
	}
	if update.Resume != nil {
		changes["resume"] = *update.Resume
	}
	if update.HourlyRate != nil {
		changes["hourly_rate"] = *update.HourlyRate
	}
	if update.Available != nil {
		changes["available"] = *update.Available
	}
	if len(changes) == 0 {
		return nil
	}
	changes["updated_at"] = time.Now().UTC()

	res := s.db.WithContext(ctx).Model(&models.SolverProfile{}).
		Where("account_id = ?", accountID).
		Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("accounts: update solver profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// normalizeEmail lowercases and trims an optional email.
func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	normalized := strings.ToLower(strings.TrimSpace(*email))
	if normalized == "" {
		return nil
	}
	return &normalized
}
