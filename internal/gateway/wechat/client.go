// Package wechat implements the social login provider client: the OAuth
// authorize redirect, code-for-token exchange, and profile fetch.
package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vibepatch/identity/internal/gateway"
)

// OAuth scopes the provider supports.
const (
	// ScopeBase grants only the openid, without a consent screen.
	ScopeBase = "snsapi_base"
	// ScopeUserInfo additionally grants nickname and avatar after consent.
	ScopeUserInfo = "snsapi_userinfo"
)

// authorizeBaseURL is where browsers are sent to approve the login.
const authorizeBaseURL = "https://open.weixin.qq.com/connect/oauth2/authorize"

// defaultAPIBase is the provider API host for server-to-server calls.
const defaultAPIBase = "https://api.weixin.qq.com"

// defaultTimeout bounds each provider API request.
const defaultTimeout = 10 * time.Second

// Config holds the provider credentials.
type Config struct {
	AppID       string
	Secret      string
	RedirectURL string // callback URL registered with the provider
	Timeout     time.Duration
}

// Client talks to the social login provider. An unconfigured client
// reports Configured() == false and fails all operations with
// gateway.ErrNotConfigured.
type Client struct {
	appID       string
	secret      string
	redirectURL string
	apiBase     string
	httpClient  *http.Client
}

// New builds a Client. Missing credentials produce an unconfigured client,
// not an error.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		appID:       strings.TrimSpace(cfg.AppID),
		secret:      strings.TrimSpace(cfg.Secret),
		redirectURL: strings.TrimSpace(cfg.RedirectURL),
		apiBase:     defaultAPIBase,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c != nil && c.appID != "" && c.secret != ""
}

// Token is the result of exchanging an authorization code.
type Token struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	OpenID       string `json:"openid"`
	Scope        string `json:"scope"`
	UnionID      string `json:"unionid"` // present only for open-platform linked apps
}

// Profile is the subject's public profile.
type Profile struct {
	OpenID    string `json:"openid"`
	UnionID   string `json:"unionid"`
	Nickname  string `json:"nickname"`
	Sex       int    `json:"sex"` // 0 unknown, 1 male, 2 female
	Province  string `json:"province"`
	City      string `json:"city"`
	Country   string `json:"country"`
	AvatarURL string `json:"headimgurl"`
}

// apiError is the error shape provider responses carry on failure.
// Success responses omit errcode entirely.
type apiError struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// AuthorizeURL builds the provider consent URL for a state token. Pure
// construction; no network request is made. The #wechat_redirect fragment
// is required by the provider.
func (c *Client) AuthorizeURL(state, scope string) string {
	if scope == "" {
		scope = ScopeUserInfo
	}
	query := url.Values{}
	query.Set("appid", c.appID)
	query.Set("redirect_uri", c.redirectURL)
	query.Set("response_type", "code")
	query.Set("scope", scope)
	query.Set("state", state)
	return authorizeBaseURL + "?" + query.Encode() + "#wechat_redirect"
}

// ExchangeCode trades an authorization code for an access token and the
// subject's openid.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	if !c.Configured() {
		return nil, gateway.ErrNotConfigured
	}

	query := url.Values{}
	query.Set("appid", c.appID)
	query.Set("secret", c.secret)
	query.Set("code", code)
	query.Set("grant_type", "authorization_code")

	var token Token
	if errGet := c.getJSON(ctx, "/sns/oauth2/access_token", query, &token); errGet != nil {
		return nil, errGet
	}
	if token.AccessToken == "" || token.OpenID == "" {
		return nil, &gateway.TransportError{
			Provider: gateway.ProviderWeChat,
			Err:      fmt.Errorf("token response missing access_token or openid"),
		}
	}
	return &token, nil
}

// FetchProfile loads the subject's profile with a userinfo-scoped access
// token.
func (c *Client) FetchProfile(ctx context.Context, accessToken, openID string) (*Profile, error) {
	if !c.Configured() {
		return nil, gateway.ErrNotConfigured
	}

	query := url.Values{}
	query.Set("access_token", accessToken)
	query.Set("openid", openID)
	query.Set("lang", "zh_CN")

	var profile Profile
	if errGet := c.getJSON(ctx, "/sns/userinfo", query, &profile); errGet != nil {
		return nil, errGet
	}
	if profile.Nickname == "" {
		profile.Nickname = "微信用户"
	}
	return &profile, nil
}

// getJSON performs a provider API GET and decodes the response, turning
// errcode payloads into ProviderErrors.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	requestURL := c.apiBase + path + "?" + query.Encode()
	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if errReq != nil {
		return &gateway.TransportError{Provider: gateway.ProviderWeChat, Err: errReq}
	}

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return &gateway.TransportError{Provider: gateway.ProviderWeChat, Err: errDo}
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("wechat: close response body error: %v", errClose)
		}
	}()

	payload, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return &gateway.TransportError{Provider: gateway.ProviderWeChat, Err: errRead}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &gateway.TransportError{
			Provider: gateway.ProviderWeChat,
			Err:      fmt.Errorf("api status=%d", resp.StatusCode),
		}
	}

	// The provider serves JSON with a text/plain content type; decode the
	// body regardless of the header.
	var apiErr apiError
	if errUnmarshal := json.Unmarshal(payload, &apiErr); errUnmarshal == nil && apiErr.ErrCode != 0 {
		return &gateway.ProviderError{
			Provider: gateway.ProviderWeChat,
			Code:     strconv.Itoa(apiErr.ErrCode),
			Message:  apiErr.ErrMsg,
		}
	}
	if errUnmarshal := json.Unmarshal(payload, out); errUnmarshal != nil {
		return &gateway.TransportError{Provider: gateway.ProviderWeChat, Err: errUnmarshal}
	}
	return nil
}
