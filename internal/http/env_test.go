package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vibepatch/identity/internal/accounts"
	"github.com/vibepatch/identity/internal/audit"
	"github.com/vibepatch/identity/internal/correlation"
	dbpkg "github.com/vibepatch/identity/internal/db"
	"github.com/vibepatch/identity/internal/flow"
	"github.com/vibepatch/identity/internal/gateway/alipay"
	"github.com/vibepatch/identity/internal/gateway/wechat"
	"github.com/vibepatch/identity/internal/identity"
	"github.com/vibepatch/identity/internal/models"
	"github.com/vibepatch/identity/internal/security"
	"gorm.io/gorm"
)

// stubSocialGateway stands in for the WeChat client in handler tests.
type stubSocialGateway struct {
	configured bool

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
	if s.exchangeErr != nil {
		return nil, s.exchangeErr
	}
	token := s.token
	return &token, nil
}

func (s *stubSocialGateway) FetchProfile(_ context.Context, _, _ string) (*wechat.Profile, error) {
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	profile := s.profile
	return &profile, nil
}

// stubVerifyGateway stands in for the Alipay client in handler tests.
type stubVerifyGateway struct {
	configured bool

	initializeErr error
	queryErr      error

	certifyID string
	result    alipay.Result
}

func (s *stubVerifyGateway) Configured() bool { return s.configured }

func (s *stubVerifyGateway) Initialize(_ context.Context, _, _, _ string) (string, error) {
	if s.initializeErr != nil {
		return "", s.initializeErr
	}
	return s.certifyID, nil
}

func (s *stubVerifyGateway) CertifyURL(certifyID string) (string, error) {
	return "https://certify.example/gateway.do?certify_id=" + certifyID, nil
}

func (s *stubVerifyGateway) QueryResult(_ context.Context, _ string) (alipay.Result, error) {
	if s.queryErr != nil {
		return alipay.Result{}, s.queryErr
	}
	return s.result, nil
}

// testEnv wires a full engine over an in-memory database so tests can
// exercise routes through middleware exactly as a client would.
type testEnv struct {
	db       *gorm.DB
	store    *correlation.MemoryStore
	accounts *accounts.Store
	ledger   *identity.Ledger
	sessions *security.Sessions
	social   *stubSocialGateway
	verify   *stubVerifyGateway
	engine   *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := dbpkg.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := dbpkg.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	env := &testEnv{
		db:       conn,
		store:    correlation.NewMemoryStore(10 * time.Minute),
		accounts: accounts.NewStore(conn),
		ledger:   identity.NewLedger(conn),
		sessions: security.NewSessions("test-secret-0123456789abcdef", time.Hour, 7*24*time.Hour),
		social:   &stubSocialGateway{},
		verify:   &stubVerifyGateway{},
	}

	socialFlow := flow.NewSocialFlow(env.social, env.store, env.ledger, env.accounts, env.sessions)
	verifyFlow := flow.NewVerifyFlow(env.verify, env.store, env.accounts)

	env.engine = gin.New()
	RegisterRoutes(env.engine, Deps{
		Accounts: env.accounts,
		Ledger:   env.ledger,
		Sessions: env.sessions,
		Social:   socialFlow,
		Verify:   verifyFlow,
		Audit:    audit.NewRecorder(conn),
	})
	return env
}

// request runs one request through the engine. A non-nil payload is sent
// as JSON; a non-empty token goes into the Authorization header.
func (env *testEnv) request(t *testing.T, method, target string, payload any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, errMarshal := json.Marshal(payload)
		if errMarshal != nil {
			t.Fatalf("marshal payload: %v", errMarshal)
		}
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	return rec
}

// decode unmarshals a response body into out.
func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if errDecode := json.Unmarshal(rec.Body.Bytes(), out); errDecode != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), errDecode)
	}
}

// errorMessage pulls the error field out of a JSON error body.
func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error
}

// registerAccount registers a password account through the API and
// returns its id and access token.
func (env *testEnv) registerAccount(t *testing.T, email, role string) (uint64, string) {
	t.Helper()
	rec := env.request(t, http.MethodPost, "/v1/auth/register", gin.H{
		"email":       email,
		"password":    "horse staple",
		"nickname":    "tester",
		"role":        role,
		"agree_terms": true,
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, rec.Code, rec.Body.String())
	}

	var resp struct {
		Account struct {
			ID uint64 `json:"id"`
		} `json:"account"`
		Session struct {
			AccessToken string `json:"access_token"`
		} `json:"session"`
	}
	decode(t, rec, &resp)
	if resp.Account.ID == 0 || resp.Session.AccessToken == "" {
		t.Fatalf("register %s: incomplete response %s", email, rec.Body.String())
	}
	return resp.Account.ID, resp.Session.AccessToken
}

// disableAccount flips the disabled flag directly in the database.
func (env *testEnv) disableAccount(t *testing.T, accountID uint64) {
	t.Helper()
	result := env.db.Model(&models.Account{}).Where("id = ?", accountID).Update("disabled", true)
	if result.Error != nil {
		t.Fatalf("disable account %d: %v", accountID, result.Error)
	}
}

// cookieValue returns the named cookie from the response, or nil.
func cookieValue(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
