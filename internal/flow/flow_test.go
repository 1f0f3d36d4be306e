package flow

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/vibepatch/identity/internal/accounts"
	"github.com/vibepatch/identity/internal/correlation"
	"github.com/vibepatch/identity/internal/gateway/alipay"
	"github.com/vibepatch/identity/internal/gateway/wechat"
	"github.com/vibepatch/identity/internal/identity"
	"github.com/vibepatch/identity/internal/models"
	"github.com/vibepatch/identity/internal/security"
)

// stubSocialGateway counts provider calls so tests can assert when the
// network is and is not reached.
type stubSocialGateway struct {
	configured bool

	exchangeCalls int
	profileCalls  int

	exchangeErr error
	profileErr  error

	token   wechat.Token
	profile wechat.Profile
}

func (s *stubSocialGateway) Configured() bool { return s.configured }

func (s *stubSocialGateway) AuthorizeURL(state, scope string) string {
	return "https://auth.example/oauth?scope=" + scope + "&state=" + state
}

func (s *stubSocialGateway) ExchangeCode(_ context.Context, _ string) (*wechat.Token, error) {
	s.exchangeCalls++
	if s.exchangeErr != nil {
		return nil, s.exchangeErr
	}
	token := s.token
	return &token, nil
}

func (s *stubSocialGateway) FetchProfile(_ context.Context, _, _ string) (*wechat.Profile, error) {
	s.profileCalls++
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	profile := s.profile
	return &profile, nil
}

// stubVerifyGateway counts provider calls for the verification flow.
type stubVerifyGateway struct {
	configured bool

	initializeCalls int
	queryCalls      int

	initializeErr error
	queryErr      error

	certifyID string
	result    alipay.Result
}

func (s *stubVerifyGateway) Configured() bool { return s.configured }

func (s *stubVerifyGateway) Initialize(_ context.Context, _, _, _ string) (string, error) {
	s.initializeCalls++
	if s.initializeErr != nil {
		return "", s.initializeErr
	}
	return s.certifyID, nil
}

func (s *stubVerifyGateway) CertifyURL(certifyID string) (string, error) {
	return "https://certify.example/gateway.do?certify_id=" + certifyID, nil
}

func (s *stubVerifyGateway) QueryResult(_ context.Context, _ string) (alipay.Result, error) {
	s.queryCalls++
	if s.queryErr != nil {
		return alipay.Result{}, s.queryErr
	}
	return s.result, nil
}

type stubSessions struct {
	issued int
}

func (s *stubSessions) Issue(accountID uint64, _ string) (security.TokenPair, error) {
	s.issued++
	return security.TokenPair{
		AccessToken:  fmt.Sprintf("access-%d", accountID),
		RefreshToken: fmt.Sprintf("refresh-%d", accountID),
	}, nil
}

type flowEnv struct {
	db       *gorm.DB
	store    *correlation.MemoryStore
	ledger   *identity.Ledger
	accounts *accounts.Store
	sessions *stubSessions
}

func newFlowEnv(t *testing.T) *flowEnv {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	// In-memory sqlite is per connection; keep the pool at one so every
	// query sees the same database.
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	errMigrate := conn.AutoMigrate(
		&models.Account{},
		&models.IdentityBinding{},
		&models.SolverProfile{},
		&models.Agreement{},
	)
	if errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return &flowEnv{
		db:       conn,
		store:    correlation.NewMemoryStore(10 * time.Minute),
		ledger:   identity.NewLedger(conn),
		accounts: accounts.NewStore(conn),
		sessions: &stubSessions{},
	}
}

func (env *flowEnv) socialFlow(gw SocialGateway) *SocialFlow {
	return NewSocialFlow(gw, env.store, env.ledger, env.accounts, env.sessions)
}

func (env *flowEnv) verifyFlow(gw VerifyGateway) *VerifyFlow {
	return NewVerifyFlow(gw, env.store, env.accounts)
}

// seedAccount creates an account directly through the store.
func (env *flowEnv) seedAccount(t *testing.T, nickname, role string) *models.Account {
	t.Helper()
	account, errCreate := env.accounts.Create(context.Background(), accounts.CreateParams{
		Nickname: nickname,
		Role:     role,
	})
	if errCreate != nil {
		t.Fatalf("seed account: %v", errCreate)
	}
	return account
}

// seedBinding attaches a wechat identity to an account.
func (env *flowEnv) seedBinding(t *testing.T, accountID uint64, openID string) *models.IdentityBinding {
	t.Helper()
	binding, errCreate := env.ledger.Create(context.Background(), accountID, models.ProviderWeChat, openID, nil)
	if errCreate != nil {
		t.Fatalf("seed binding: %v", errCreate)
	}
	return binding
}

// stateFromURL pulls the state token back out of an authorize URL built
// by the stub gateway.
func stateFromURL(t *testing.T, authorizeURL string) string {
	t.Helper()
	parsed, errParse := url.Parse(authorizeURL)
	if errParse != nil {
		t.Fatalf("parse authorize url: %v", errParse)
	}
	state := parsed.Query().Get("state")
	if state == "" {
		t.Fatalf("no state in %s", authorizeURL)
	}
	return state
}
