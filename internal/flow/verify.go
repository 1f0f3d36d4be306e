package flow

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vibepatch/identity/internal/accounts"
	"github.com/vibepatch/identity/internal/correlation"
	"github.com/vibepatch/identity/internal/gateway/alipay"
	"github.com/vibepatch/identity/internal/security"
	"github.com/vibepatch/identity/internal/util"
)

// VerifyGateway is the provider surface the verification flow drives.
type VerifyGateway interface {
	Configured() bool
	Initialize(ctx context.Context, orderRef, legalName, idNumber string) (string, error)
	CertifyURL(certifyID string) (string, error)
	QueryResult(ctx context.Context, certifyID string) (alipay.Result, error)
}

var _ VerifyGateway = (*alipay.Client)(nil)

// VerifyFlow runs the real-name verification state machine: validate
// the submitted identity, open a provider session, and commit the
// result when the provider sends the browser back.
type VerifyFlow struct {
	gateway  VerifyGateway
	store    correlation.Store
	accounts *accounts.Store
}

// NewVerifyFlow wires the verification orchestrator.
func NewVerifyFlow(gw VerifyGateway, store correlation.Store, accountStore *accounts.Store) *VerifyFlow {
	return &VerifyFlow{gateway: gw, store: store, accounts: accountStore}
}

// SubmitResult is the successful result of a verification submission.
type SubmitResult struct {
	// RedirectURL is where the browser must go to complete verification.
	// Empty when the submission was auto approved.
	RedirectURL string `json:"redirect_url,omitempty"`
	// AutoApproved is set when the provider is not configured and the
	// deployment approves submissions directly.
	AutoApproved bool `json:"auto_approved,omitempty"`
}

// Submit validates a verification request and opens a provider session
// for it. Invalid input fails with ErrValidation before any network
// call. When the provider is not configured the submission is approved
// directly; that degraded mode is deliberate and logged.
func (f *VerifyFlow) Submit(ctx context.Context, accountID uint64, legalName, idNumber string) (*SubmitResult, error) {
	if errName := ValidateLegalName(legalName); errName != nil {
		return nil, errName
	}
	if errID := ValidateIDNumber(idNumber); errID != nil {
		return nil, errID
	}

	if !f.gateway.Configured() {
		log.Warnf("verify: provider not configured, auto approving account %d (%s)", accountID, MaskName(legalName))
		if errSet := f.accounts.SetVerified(ctx, accountID, legalName); errSet != nil {
			return nil, fmt.Errorf("record verification: %w", errSet)
		}
		return &SubmitResult{AutoApproved: true}, nil
	}

	orderRef, errRef := security.GenerateOrderRef(accountID)
	if errRef != nil {
		return nil, fmt.Errorf("generate order ref: %w", errRef)
	}
	certifyID, errInit := f.gateway.Initialize(ctx, orderRef, legalName, idNumber)
	if errInit != nil {
		log.WithError(errInit).Warnf("verify: initialize failed (order %s)", orderRef)
		return nil, errInit
	}

	entry := correlation.Entry{
		Token:     certifyID,
		Purpose:   correlation.PurposeVerify,
		AccountID: accountID,
		LegalName: legalName,
		OrderRef:  orderRef,
	}
	if errPut := f.store.Put(ctx, entry); errPut != nil {
		return nil, fmt.Errorf("store verification state: %w", errPut)
	}

	redirectURL, errURL := f.gateway.CertifyURL(certifyID)
	if errURL != nil {
		return nil, errURL
	}
	log.Infof("verify: session %s opened for account %d (order %s)", util.MaskToken(certifyID), accountID, orderRef)
	return &SubmitResult{RedirectURL: redirectURL}, nil
}

// HandleCallback resolves the provider's return redirect. The pending
// entry is consumed first, so replaying a certify id finds nothing; the
// result is then queried from the provider and committed.
func (f *VerifyFlow) HandleCallback(ctx context.Context, certifyID string, callerAccountID uint64) Outcome {
	entry, ok, errPop := f.store.Pop(ctx, certifyID)
	if errPop != nil {
		log.WithError(errPop).Error("verify callback: pop session")
		return failure(StatusFailed, reasonInternal)
	}
	if !ok {
		log.Warnf("verify callback: unknown or expired session %s", util.MaskToken(certifyID))
		return failure(StatusExpiredState, "the verification session expired, please start over")
	}
	if entry.AccountID != callerAccountID {
		log.Warnf("verify callback: session %s belongs to account %d but was presented by account %d",
			util.MaskToken(certifyID), entry.AccountID, callerAccountID)
		return failure(StatusMismatch, "the verification session does not match the signed-in account")
	}

	result, errQuery := f.gateway.QueryResult(ctx, certifyID)
	if errQuery != nil {
		// Provider diagnostics stay in the logs; the user gets a generic
		// reason either way.
		log.WithError(errQuery).Warnf("verify callback: query failed (order %s)", entry.OrderRef)
		return gatewayFailure(errQuery, false)
	}
	if !result.Passed {
		log.Infof("verify callback: order %s did not pass", entry.OrderRef)
		return failure(StatusNotPassed, "identity verification did not pass, please check the name and ID number")
	}

	if errSet := f.accounts.SetVerified(ctx, entry.AccountID, entry.LegalName); errSet != nil {
		log.WithError(errSet).Errorf("verify callback: persist verification for account %d", entry.AccountID)
		return failure(StatusFailed, reasonInternal)
	}
	log.Infof("verify callback: account %d verified (order %s)", entry.AccountID, entry.OrderRef)
	return Outcome{
		Status: StatusCompleted,
		Verification: &VerificationState{
			Verified:  true,
			LegalName: MaskName(entry.LegalName),
		},
	}
}

// Status reports an account's verification state with the legal name
// masked.
func (f *VerifyFlow) Status(ctx context.Context, accountID uint64) (*VerificationState, error) {
	account, errGet := f.accounts.GetByID(ctx, accountID)
	if errGet != nil {
		return nil, errGet
	}
	state := &VerificationState{Verified: account.Verified}
	if account.Verified {
		state.LegalName = MaskName(account.RealName)
	}
	return state, nil
}
