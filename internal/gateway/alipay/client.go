package alipay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vibepatch/identity/internal/gateway"
)

// Protocol methods of the certify flow.
const (
	methodInitialize = "alipay.user.certify.open.initialize"
	methodCertify    = "alipay.user.certify.open.certify"
	methodQuery      = "alipay.user.certify.open.query"
)

// timestampLayout is the request timestamp format the gateway expects.
const timestampLayout = "2006-01-02 15:04:05"

// defaultTimeout bounds each gateway request.
const defaultTimeout = 30 * time.Second

// Config holds the provider credentials and endpoints.
type Config struct {
	AppID      string
	PrivateKey string // merchant private key, PEM or bare base64
	PublicKey  string // provider public key, PEM or bare base64
	Gateway    string
	ReturnURL  string // where the provider sends the browser after face capture
	Timeout    time.Duration
}

// Client talks to the identity verification gateway. A nil or
// unconfigured client reports Configured() == false and fails all
// operations with gateway.ErrNotConfigured.
type Client struct {
	appID      string
	gatewayURL string
	returnURL  string
	signer     *Signer
	httpClient *http.Client
}

// New builds a Client. Malformed key material is rejected here so the
// process fails at startup rather than on the first verification.
// An empty app id yields an unconfigured client and no error.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AppID) == "" {
		return &Client{}, nil
	}

	signer, errSigner := NewSigner(cfg.PrivateKey, cfg.PublicKey)
	if errSigner != nil {
		return nil, errSigner
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		appID:      strings.TrimSpace(cfg.AppID),
		gatewayURL: strings.TrimSpace(cfg.Gateway),
		returnURL:  strings.TrimSpace(cfg.ReturnURL),
		signer:     signer,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c != nil && c.appID != "" && c.signer != nil
}

// Result is the outcome of a verification query. IdentityInfo and
// MaterialInfo are passed through opaque, exactly as the provider
// returned them.
type Result struct {
	Passed       bool
	IdentityInfo string
	MaterialInfo string
}

type identityParam struct {
	IdentityType string `json:"identity_type"`
	CertType     string `json:"cert_type"`
	CertName     string `json:"cert_name"`
	CertNo       string `json:"cert_no"`
}

type merchantConfig struct {
	ReturnURL string `json:"return_url"`
}

type initializeContent struct {
	OuterOrderNo   string         `json:"outer_order_no"`
	BizCode        string         `json:"biz_code"`
	IdentityParam  identityParam  `json:"identity_param"`
	MerchantConfig merchantConfig `json:"merchant_config"`
}

type certifyContent struct {
	CertifyID string `json:"certify_id"`
}

// gatewayResponse is the shared shape of certify responses.
type gatewayResponse struct {
	Code         string `json:"code"`
	Msg          string `json:"msg"`
	SubCode      string `json:"sub_code"`
	SubMsg       string `json:"sub_msg"`
	CertifyID    string `json:"certify_id"`
	Passed       string `json:"passed"`
	IdentityInfo string `json:"identity_info"`
	MaterialInfo string `json:"material_info"`
}

// successCode is the gateway code for an accepted request.
const successCode = "10000"

// Initialize registers a verification request and returns the provider's
// certify id.
func (c *Client) Initialize(ctx context.Context, orderRef, legalName, idNumber string) (string, error) {
	if !c.Configured() {
		return "", gateway.ErrNotConfigured
	}

	content := initializeContent{
		OuterOrderNo: orderRef,
		BizCode:      "FACE",
		IdentityParam: identityParam{
			IdentityType: "CERT_INFO",
			CertType:     "IDENTITY_CARD",
			CertName:     legalName,
			CertNo:       idNumber,
		},
		MerchantConfig: merchantConfig{ReturnURL: c.returnURL},
	}

	params, errParams := c.signedParams(methodInitialize, content)
	if errParams != nil {
		return "", errParams
	}

	resp, errPost := c.postForm(ctx, params, "alipay_user_certify_open_initialize_response")
	if errPost != nil {
		return "", errPost
	}
	if resp.Code != successCode {
		return "", rejection(resp, "certify initialize rejected")
	}
	if resp.CertifyID == "" {
		return "", &gateway.TransportError{
			Provider: gateway.ProviderAlipay,
			Err:      fmt.Errorf("initialize response missing certify_id"),
		}
	}
	return resp.CertifyID, nil
}

// CertifyURL builds the URL the user's browser is redirected to for face
// capture. This is pure construction; no network request is made.
func (c *Client) CertifyURL(certifyID string) (string, error) {
	if !c.Configured() {
		return "", gateway.ErrNotConfigured
	}

	params, errParams := c.signedParams(methodCertify, certifyContent{CertifyID: certifyID})
	if errParams != nil {
		return "", errParams
	}

	query := url.Values{}
	for key, value := range params {
		query.Set(key, value)
	}
	return c.gatewayURL + "?" + query.Encode(), nil
}

// QueryResult asks the provider whether a verification passed. A missing
// or non-"T" passed field means not passed; it is not an error.
func (c *Client) QueryResult(ctx context.Context, certifyID string) (Result, error) {
	if !c.Configured() {
		return Result{}, gateway.ErrNotConfigured
	}

	params, errParams := c.signedParams(methodQuery, certifyContent{CertifyID: certifyID})
	if errParams != nil {
		return Result{}, errParams
	}

	resp, errPost := c.postForm(ctx, params, "alipay_user_certify_open_query_response")
	if errPost != nil {
		return Result{}, errPost
	}
	if resp.Code != successCode {
		return Result{}, rejection(resp, "certify query rejected")
	}
	return Result{
		Passed:       resp.Passed == "T",
		IdentityInfo: resp.IdentityInfo,
		MaterialInfo: resp.MaterialInfo,
	}, nil
}

// signedParams builds the common request parameters with a signed
// biz_content payload.
func (c *Client) signedParams(method string, content any) (map[string]string, error) {
	bizContent, errMarshal := marshalBizContent(content)
	if errMarshal != nil {
		return nil, errMarshal
	}

	params := map[string]string{
		"app_id":      c.appID,
		"method":      method,
		"format":      "JSON",
		"charset":     "utf-8",
		"sign_type":   "RSA2",
		"timestamp":   time.Now().Format(timestampLayout),
		"version":     "1.0",
		"biz_content": bizContent,
	}

	signature, errSign := c.signer.Sign(CanonicalString(params))
	if errSign != nil {
		return nil, errSign
	}
	params["sign"] = signature
	return params, nil
}

// marshalBizContent encodes a biz_content payload without HTML escaping so
// URLs and non-ASCII names survive intact.
func marshalBizContent(content any) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if errEncode := encoder.Encode(content); errEncode != nil {
		return "", fmt.Errorf("alipay: marshal biz_content: %w", errEncode)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// postForm sends a signed request and unwraps the named response envelope.
func (c *Client) postForm(ctx context.Context, params map[string]string, responseKey string) (*gatewayResponse, error) {
	form := url.Values{}
	for key, value := range params {
		form.Set(key, value)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, strings.NewReader(form.Encode()))
	if errReq != nil {
		return nil, &gateway.TransportError{Provider: gateway.ProviderAlipay, Err: errReq}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return nil, &gateway.TransportError{Provider: gateway.ProviderAlipay, Err: errDo}
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("alipay: close response body error: %v", errClose)
		}
	}()

	payload, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, &gateway.TransportError{Provider: gateway.ProviderAlipay, Err: errRead}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &gateway.TransportError{
			Provider: gateway.ProviderAlipay,
			Err:      fmt.Errorf("gateway status=%d", resp.StatusCode),
		}
	}

	var envelope map[string]json.RawMessage
	if errUnmarshal := json.Unmarshal(payload, &envelope); errUnmarshal != nil {
		return nil, &gateway.TransportError{Provider: gateway.ProviderAlipay, Err: errUnmarshal}
	}
	raw, ok := envelope[responseKey]
	if !ok {
		return nil, &gateway.TransportError{
			Provider: gateway.ProviderAlipay,
			Err:      fmt.Errorf("response missing %s", responseKey),
		}
	}

	var parsed gatewayResponse
	if errUnmarshal := json.Unmarshal(raw, &parsed); errUnmarshal != nil {
		return nil, &gateway.TransportError{Provider: gateway.ProviderAlipay, Err: errUnmarshal}
	}
	return &parsed, nil
}

// rejection converts a non-success response into a ProviderError using the
// most specific message available.
func rejection(resp *gatewayResponse, fallback string) error {
	message := resp.SubMsg
	if message == "" {
		message = resp.Msg
	}
	if message == "" {
		message = fallback
	}
	code := resp.SubCode
	if code == "" {
		code = resp.Code
	}
	return &gateway.ProviderError{
		Provider: gateway.ProviderAlipay,
		Code:     code,
		Message:  message,
	}
}
