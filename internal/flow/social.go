package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/vibepatch/identity/internal/accounts"
	"github.com/vibepatch/identity/internal/correlation"
	"github.com/vibepatch/identity/internal/gateway"
	"github.com/vibepatch/identity/internal/gateway/wechat"
	"github.com/vibepatch/identity/internal/identity"
	"github.com/vibepatch/identity/internal/models"
	"github.com/vibepatch/identity/internal/security"
	"github.com/vibepatch/identity/internal/util"
)

// Unbind errors.
var (
	// ErrBindingNotFound means the binding does not exist or belongs to a
	// different account.
	ErrBindingNotFound = errors.New("binding not found")
	// ErrLastLoginMethod means removing the binding would leave the
	// account without a password-capable way to sign in.
	ErrLastLoginMethod = errors.New("cannot remove the last sign-in method")
)

// defaultNickname is what the provider reports for consent-less profiles.
const defaultNickname = "微信用户"

// SocialGateway is the provider surface the social login flow drives.
type SocialGateway interface {
	Configured() bool
	AuthorizeURL(state, scope string) string
	ExchangeCode(ctx context.Context, code string) (*wechat.Token, error)
	FetchProfile(ctx context.Context, accessToken, openID string) (*wechat.Profile, error)
}

var _ SocialGateway = (*wechat.Client)(nil)

// SocialFlow runs the social login state machine: allocate a state
// token, send the browser to the provider, and resolve the callback
// into a login, a registration or a binding.
type SocialFlow struct {
	gateway  SocialGateway
	store    correlation.Store
	ledger   *identity.Ledger
	accounts *accounts.Store
	sessions SessionIssuer
}

// NewSocialFlow wires the social login orchestrator.
func NewSocialFlow(gw SocialGateway, store correlation.Store, ledger *identity.Ledger, accountStore *accounts.Store, sessions SessionIssuer) *SocialFlow {
	return &SocialFlow{
		gateway:  gw,
		store:    store,
		ledger:   ledger,
		accounts: accountStore,
		sessions: sessions,
	}
}

// StartParams describes a social flow about to leave for the provider.
type StartParams struct {
	// Purpose is one of the correlation purposes: login, register or bind.
	Purpose string
	// AccountID is the signed-in caller; required for bind.
	AccountID uint64
	// Role optionally pre-selects the account role for register.
	Role string
}

// Start allocates the state token for a social flow and returns the
// provider consent URL the browser should be sent to.
func (f *SocialFlow) Start(ctx context.Context, params StartParams) (string, error) {
	switch params.Purpose {
	case correlation.PurposeLogin, correlation.PurposeRegister:
	case correlation.PurposeBind:
		if params.AccountID == 0 {
			return "", fmt.Errorf("%w: bind requires a signed-in account", ErrValidation)
		}
	default:
		return "", fmt.Errorf("%w: unknown purpose %q", ErrValidation, params.Purpose)
	}
	if params.Role != "" && !models.ValidRole(params.Role) {
		return "", fmt.Errorf("%w: invalid role %q", ErrValidation, params.Role)
	}
	if !f.gateway.Configured() {
		return "", gateway.ErrNotConfigured
	}

	token, errToken := security.GenerateStateToken()
	if errToken != nil {
		return "", fmt.Errorf("generate state token: %w", errToken)
	}
	entry := correlation.Entry{
		Token:     token,
		Purpose:   params.Purpose,
		AccountID: params.AccountID,
		Role:      params.Role,
	}
	if errPut := f.store.Put(ctx, entry); errPut != nil {
		return "", fmt.Errorf("store state: %w", errPut)
	}
	return f.gateway.AuthorizeURL(token, wechat.ScopeUserInfo), nil
}

// CallbackParams carries what the provider redirect delivered.
type CallbackParams struct {
	Code  string
	State string
	// ProviderError is the error query parameter, set when consent failed.
	ProviderError string
	// CallerAccountID is the signed-in account on the callback request,
	// zero for anonymous browsers. Bind callbacks must match it against
	// the account that started the flow.
	CallerAccountID uint64
}

// HandleCallback resolves a provider callback. The state token is
// consumed before anything else so a replayed callback finds nothing.
func (f *SocialFlow) HandleCallback(ctx context.Context, params CallbackParams) Outcome {
	if params.ProviderError != "" {
		log.Warnf("social callback: provider returned error %q", params.ProviderError)
		return failure(StatusProviderRejected, fmt.Sprintf("authorization failed: %s", params.ProviderError))
	}

	entry, ok, errPop := f.store.Pop(ctx, params.State)
	if errPop != nil {
		log.WithError(errPop).Error("social callback: pop state")
		return failure(StatusFailed, reasonInternal)
	}
	if !ok {
		log.Warnf("social callback: unknown or expired state %s", util.MaskToken(params.State))
		return failure(StatusExpiredState, "authorization expired, please start over")
	}

	token, errExchange := f.gateway.ExchangeCode(ctx, params.Code)
	if errExchange != nil {
		log.WithError(errExchange).Warnf("social callback: code exchange failed (state %s)", util.MaskToken(params.State))
		return gatewayFailure(errExchange, true)
	}

	profileFresh := true
	profile, errProfile := f.gateway.FetchProfile(ctx, token.AccessToken, token.OpenID)
	if errProfile != nil {
		// Profile data is cosmetic; continue with the bare subject.
		log.WithError(errProfile).Warn("social callback: profile fetch failed")
		profile = &wechat.Profile{OpenID: token.OpenID, Nickname: defaultNickname}
		profileFresh = false
	}

	switch entry.Purpose {
	case correlation.PurposeBind:
		return f.bind(ctx, entry, params.CallerAccountID, token, profile)
	case correlation.PurposeRegister:
		return f.registerCallback(ctx, entry, token, profile)
	case correlation.PurposeLogin:
		return f.loginCallback(ctx, entry, token, profile, profileFresh)
	default:
		log.Errorf("social callback: state %s has unexpected purpose %q", util.MaskToken(entry.Token), entry.Purpose)
		return failure(StatusFailed, reasonInternal)
	}
}

// bind attaches the provider identity to the account that started the
// flow. The callback session must belong to that same account.
func (f *SocialFlow) bind(ctx context.Context, entry correlation.Entry, callerID uint64, token *wechat.Token, profile *wechat.Profile) Outcome {
	if entry.AccountID == 0 || callerID == 0 || callerID != entry.AccountID {
		log.Warnf("social bind: state %s started by account %d but consumed by account %d",
			util.MaskToken(entry.Token), entry.AccountID, callerID)
		return failure(StatusMismatch, "this authorization belongs to a different session")
	}

	binding, errCreate := f.ledger.Create(ctx, entry.AccountID, models.ProviderWeChat, token.OpenID, snapshotJSON(token, profile))
	if errCreate != nil {
		if errors.Is(errCreate, identity.ErrDuplicateBinding) {
			return f.duplicateBind(ctx, entry.AccountID, token.OpenID)
		}
		log.WithError(errCreate).Error("social bind: create binding")
		return failure(StatusFailed, reasonInternal)
	}
	return Outcome{Status: StatusCompleted, Binding: binding}
}

// duplicateBind distinguishes rebinding your own identity from one held
// by another account, without revealing which account holds it.
func (f *SocialFlow) duplicateBind(ctx context.Context, accountID uint64, subject string) Outcome {
	existing, errFind := f.ledger.Find(ctx, models.ProviderWeChat, subject)
	if errFind == nil && existing != nil && existing.AccountID == accountID {
		return failure(StatusDuplicateBinding, "this wechat account is already bound to your account")
	}
	return failure(StatusDuplicateBinding, "this wechat account is already in use")
}

func (f *SocialFlow) loginCallback(ctx context.Context, entry correlation.Entry, token *wechat.Token, profile *wechat.Profile, profileFresh bool) Outcome {
	binding, errFind := f.ledger.Find(ctx, models.ProviderWeChat, token.OpenID)
	if errFind != nil {
		log.WithError(errFind).Error("social login: find binding")
		return failure(StatusFailed, reasonInternal)
	}
	if binding == nil {
		return f.pendingRegistration(ctx, entry.Role, token, profile)
	}
	// Keep the stored nickname and avatar current, but never overwrite a
	// real snapshot with the degraded fallback profile.
	if profileFresh {
		if errSnap := f.ledger.UpdateSnapshot(ctx, binding.ID, snapshotJSON(token, profile)); errSnap != nil {
			log.WithError(errSnap).Warn("social login: refresh profile snapshot")
		}
	}
	return f.signIn(ctx, binding.AccountID, false)
}

func (f *SocialFlow) registerCallback(ctx context.Context, entry correlation.Entry, token *wechat.Token, profile *wechat.Profile) Outcome {
	binding, errFind := f.ledger.Find(ctx, models.ProviderWeChat, token.OpenID)
	if errFind != nil {
		log.WithError(errFind).Error("social register: find binding")
		return failure(StatusFailed, reasonInternal)
	}
	if binding != nil {
		// A double submit of an already registered identity signs in
		// instead of erroring.
		return f.signIn(ctx, binding.AccountID, false)
	}
	if entry.Role == "" {
		return f.pendingRegistration(ctx, "", token, profile)
	}
	return f.register(ctx, registration{
		Subject:   token.OpenID,
		UnionID:   unionIDOf(token, profile),
		Nickname:  profile.Nickname,
		AvatarURL: profile.AvatarURL,
		Sex:       profile.Sex,
		Role:      entry.Role,
	})
}

// pendingRegistration parks the provider identity under a fresh token so
// the role selection step can finish the registration. The browser only
// ever sees the token, never the subject id.
func (f *SocialFlow) pendingRegistration(ctx context.Context, role string, token *wechat.Token, profile *wechat.Profile) Outcome {
	regToken, errToken := security.GenerateStateToken()
	if errToken != nil {
		log.WithError(errToken).Error("social register: generate registration token")
		return failure(StatusFailed, reasonInternal)
	}
	entry := correlation.Entry{
		Token:     regToken,
		Purpose:   correlation.PurposeRegister,
		Role:      role,
		Subject:   token.OpenID,
		UnionID:   unionIDOf(token, profile),
		Nickname:  profile.Nickname,
		AvatarURL: profile.AvatarURL,
	}
	if errPut := f.store.Put(ctx, entry); errPut != nil {
		log.WithError(errPut).Error("social register: store registration state")
		return failure(StatusFailed, reasonInternal)
	}
	return Outcome{
		Status: StatusRegistrationRequired,
		Reason: "this wechat account is not registered yet",
		Registration: &RegistrationPrefill{
			RegistrationToken: regToken,
			Nickname:          profile.Nickname,
			AvatarURL:         profile.AvatarURL,
		},
	}
}

// CompleteRegisterParams finishes a registration parked for role
// selection.
type CompleteRegisterParams struct {
	RegistrationToken string
	Role              string
	AgreeTerms        bool
}

// CompleteRegister consumes a pending registration and creates the
// account. Validation failures return ErrValidation; everything else is
// reported as an outcome.
func (f *SocialFlow) CompleteRegister(ctx context.Context, params CompleteRegisterParams) (Outcome, error) {
	if !params.AgreeTerms {
		return Outcome{}, fmt.Errorf("%w: the service agreement must be accepted", ErrValidation)
	}
	if !models.ValidRole(params.Role) {
		return Outcome{}, fmt.Errorf("%w: invalid role %q", ErrValidation, params.Role)
	}

	entry, ok, errPop := f.store.Pop(ctx, params.RegistrationToken)
	if errPop != nil {
		log.WithError(errPop).Error("social register: pop registration state")
		return failure(StatusFailed, reasonInternal), nil
	}
	if !ok || entry.Purpose != correlation.PurposeRegister || entry.Subject == "" {
		log.Warnf("social register: unknown or expired registration token %s", util.MaskToken(params.RegistrationToken))
		return failure(StatusExpiredState, "the registration session expired, please sign in with wechat again"), nil
	}

	return f.register(ctx, registration{
		Subject:   entry.Subject,
		UnionID:   entry.UnionID,
		Nickname:  entry.Nickname,
		AvatarURL: entry.AvatarURL,
		Role:      params.Role,
	}), nil
}

// registration carries everything needed to create a social account.
type registration struct {
	Subject   string
	UnionID   string
	Nickname  string
	AvatarURL string
	Sex       int
	Role      string
}

func (f *SocialFlow) register(ctx context.Context, reg registration) Outcome {
	nickname := reg.Nickname
	if nickname == "" {
		nickname = defaultNickname
	}
	account, errCreate := f.accounts.Create(ctx, accounts.CreateParams{
		Nickname:      nickname,
		Role:          reg.Role,
		AvatarURL:     reg.AvatarURL,
		TermsAgreedAt: time.Now().UTC(),
	})
	if errCreate != nil {
		log.WithError(errCreate).Error("social register: create account")
		return failure(StatusFailed, reasonInternal)
	}

	snapshot, _ := json.Marshal(bindingSnapshot{
		UnionID:   reg.UnionID,
		Nickname:  nickname,
		AvatarURL: reg.AvatarURL,
		Sex:       reg.Sex,
	})
	if _, errBind := f.ledger.Create(ctx, account.ID, models.ProviderWeChat, reg.Subject, snapshot); errBind != nil {
		if errors.Is(errBind, identity.ErrDuplicateBinding) {
			// Lost a race for the same identity. Discard the fresh account
			// and sign in to whichever account won.
			if errDel := f.accounts.Delete(ctx, account.ID); errDel != nil {
				log.WithError(errDel).Warnf("social register: discard account %d", account.ID)
			}
			existing, errFind := f.ledger.Find(ctx, models.ProviderWeChat, reg.Subject)
			if errFind != nil || existing == nil {
				log.WithError(errFind).Error("social register: resolve winning binding")
				return failure(StatusFailed, reasonInternal)
			}
			return f.signIn(ctx, existing.AccountID, false)
		}
		log.WithError(errBind).Error("social register: create binding")
		return failure(StatusFailed, reasonInternal)
	}

	return f.signIn(ctx, account.ID, true)
}

// signIn loads an account and issues its session pair.
func (f *SocialFlow) signIn(ctx context.Context, accountID uint64, newAccount bool) Outcome {
	account, errGet := f.accounts.GetByID(ctx, accountID)
	if errGet != nil {
		log.WithError(errGet).Errorf("social sign-in: load account %d", accountID)
		return failure(StatusFailed, reasonInternal)
	}
	if account.Disabled {
		return failure(StatusAccountDisabled, "this account has been disabled")
	}
	pair, errIssue := f.sessions.Issue(account.ID, account.Role)
	if errIssue != nil {
		log.WithError(errIssue).Errorf("social sign-in: issue session for account %d", accountID)
		return failure(StatusFailed, reasonInternal)
	}
	return Outcome{Status: StatusCompleted, Account: account, Session: &pair, NewAccount: newAccount}
}

// Unbind removes an identity binding. A social binding may only go
// while the account keeps its email credential; the email binding
// itself backs password sign-in and is not removable.
func (f *SocialFlow) Unbind(ctx context.Context, accountID, bindingID uint64) error {
	binding, errGet := f.ledger.Get(ctx, bindingID)
	if errGet != nil {
		return errGet
	}
	if binding == nil || binding.AccountID != accountID {
		return ErrBindingNotFound
	}

	if binding.SupportsPassword() {
		return ErrLastLoginMethod
	}
	hasEmail, errHas := f.ledger.HasProvider(ctx, accountID, models.ProviderEmail)
	if errHas != nil {
		return errHas
	}
	if !hasEmail {
		return ErrLastLoginMethod
	}

	removed, errDelete := f.ledger.Delete(ctx, bindingID)
	if errDelete != nil {
		return errDelete
	}
	if !removed {
		return ErrBindingNotFound
	}
	return nil
}

// bindingSnapshot is the informational profile bag captured at bind
// time.
type bindingSnapshot struct {
	UnionID   string `json:"unionid,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Sex       int    `json:"sex,omitempty"`
}

func snapshotJSON(token *wechat.Token, profile *wechat.Profile) datatypes.JSON {
	payload, _ := json.Marshal(bindingSnapshot{
		UnionID:   unionIDOf(token, profile),
		Nickname:  profile.Nickname,
		AvatarURL: profile.AvatarURL,
		Sex:       profile.Sex,
	})
	return payload
}

func unionIDOf(token *wechat.Token, profile *wechat.Profile) string {
	if token.UnionID != "" {
		return token.UnionID
	}
	return profile.UnionID
}
