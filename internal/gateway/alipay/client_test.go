package alipay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/vibepatch/identity/internal/gateway"
)

func newTestClient(t *testing.T, gatewayURL string) *Client {
	t.Helper()
	key := generateTestKey(t)
	client, errNew := New(Config{
		AppID:      "2021000000000000",
		PrivateKey: privateKeyPEM(t, key),
		PublicKey:  publicKeyPEM(t, &key.PublicKey),
		Gateway:    gatewayURL,
		ReturnURL:  "https://vibepatch.example.com/v1/verify/callback",
	})
	if errNew != nil {
		t.Fatalf("new client: %v", errNew)
	}
	return client
}

// fakeGateway validates inbound certify requests the way the provider
// would: re-derive the canonical string and check the RSA2 signature with
// the merchant public key.
func fakeGateway(t *testing.T, client *Client, handle func(method string, biz map[string]any) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if errParse := r.ParseForm(); errParse != nil {
			t.Errorf("parse form: %v", errParse)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		params := map[string]string{}
		for key := range r.PostForm {
			if key == "sign" {
				continue
			}
			params[key] = r.PostForm.Get(key)
		}
		signature := r.PostForm.Get("sign")
		if !client.signer.Verify(CanonicalString(params), signature) {
			t.Error("request signature did not verify")
			http.Error(w, "bad sign", http.StatusBadRequest)
			return
		}

		var biz map[string]any
		if errUnmarshal := json.Unmarshal([]byte(r.PostForm.Get("biz_content")), &biz); errUnmarshal != nil {
			t.Errorf("unmarshal biz_content: %v", errUnmarshal)
			http.Error(w, "bad biz_content", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if _, errWrite := w.Write([]byte(handle(r.PostForm.Get("method"), biz))); errWrite != nil {
			t.Errorf("write response: %v", errWrite)
		}
	}))
}

func TestInitializeSignsRequestAndReturnsCertifyID(t *testing.T) {
	var gotBiz map[string]any
	client := newTestClient(t, "placeholder")
	server := fakeGateway(t, client, func(method string, biz map[string]any) string {
		if method != "alipay.user.certify.open.initialize" {
			t.Errorf("method = %q", method)
		}
		gotBiz = biz
		return `{"alipay_user_certify_open_initialize_response":{"code":"10000","msg":"Success","certify_id":"CERT001"}}`
	})
	defer server.Close()
	client.gatewayURL = server.URL

	certifyID, errInit := client.Initialize(context.Background(), "VERIFY_7_abcd1234", "张三", "110101199003072316")
	if errInit != nil {
		t.Fatalf("initialize: %v", errInit)
	}
	if certifyID != "CERT001" {
		t.Fatalf("certify id = %q, want CERT001", certifyID)
	}

	if gotBiz["outer_order_no"] != "VERIFY_7_abcd1234" {
		t.Fatalf("outer_order_no = %v", gotBiz["outer_order_no"])
	}
	if gotBiz["biz_code"] != "FACE" {
		t.Fatalf("biz_code = %v", gotBiz["biz_code"])
	}
	identity, ok := gotBiz["identity_param"].(map[string]any)
	if !ok {
		t.Fatalf("identity_param missing: %v", gotBiz)
	}
	if identity["cert_name"] != "张三" || identity["cert_no"] != "110101199003072316" {
		t.Fatalf("identity_param = %v", identity)
	}
	if identity["identity_type"] != "CERT_INFO" || identity["cert_type"] != "IDENTITY_CARD" {
		t.Fatalf("identity_param = %v", identity)
	}
	merchant, ok := gotBiz["merchant_config"].(map[string]any)
	if !ok || merchant["return_url"] != "https://vibepatch.example.com/v1/verify/callback" {
		t.Fatalf("merchant_config = %v", gotBiz["merchant_config"])
	}
}

func TestInitializeProviderRejection(t *testing.T) {
	client := newTestClient(t, "placeholder")
	server := fakeGateway(t, client, func(string, map[string]any) string {
		return `{"alipay_user_certify_open_initialize_response":{"code":"40004","msg":"Business Failed","sub_code":"INVALID_CERT_NO","sub_msg":"cert no invalid"}}`
	})
	defer server.Close()
	client.gatewayURL = server.URL

	_, errInit := client.Initialize(context.Background(), "VERIFY_7_x", "张三", "110101199003072316")
	providerErr, ok := gateway.IsProviderError(errInit)
	if !ok {
		t.Fatalf("error = %v, want ProviderError", errInit)
	}
	if providerErr.Message != "cert no invalid" || providerErr.Code != "INVALID_CERT_NO" {
		t.Fatalf("provider error = %+v", providerErr)
	}
}

func TestInitializeTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, errInit := client.Initialize(context.Background(), "VERIFY_7_x", "张三", "110101199003072316")

	var transportErr *gateway.TransportError
	if !errors.As(errInit, &transportErr) {
		t.Fatalf("error = %v, want TransportError", errInit)
	}
}

func TestCertifyURLIsPureConstruction(t *testing.T) {
	// Gateway deliberately unreachable: no request may be made.
	client := newTestClient(t, "https://openapi.alipay.invalid/gateway.do")

	certifyURL, errBuild := client.CertifyURL("CERT123")
	if errBuild != nil {
		t.Fatalf("certify url: %v", errBuild)
	}
	if !strings.HasPrefix(certifyURL, "https://openapi.alipay.invalid/gateway.do?") {
		t.Fatalf("certify url = %q", certifyURL)
	}

	parsed, errParse := url.Parse(certifyURL)
	if errParse != nil {
		t.Fatalf("parse certify url: %v", errParse)
	}
	query := parsed.Query()
	if query.Get("method") != "alipay.user.certify.open.certify" {
		t.Fatalf("method = %q", query.Get("method"))
	}
	if !strings.Contains(query.Get("biz_content"), "CERT123") {
		t.Fatalf("biz_content = %q, want certify id inside", query.Get("biz_content"))
	}
	if query.Get("sign") == "" {
		t.Fatal("certify url must carry a signature")
	}

	params := map[string]string{}
	for key := range query {
		if key == "sign" {
			continue
		}
		params[key] = query.Get(key)
	}
	if !client.signer.Verify(CanonicalString(params), query.Get("sign")) {
		t.Fatal("certify url signature did not verify")
	}
}

func TestQueryResultPassed(t *testing.T) {
	client := newTestClient(t, "placeholder")
	server := fakeGateway(t, client, func(method string, biz map[string]any) string {
		if method != "alipay.user.certify.open.query" {
			t.Errorf("method = %q", method)
		}
		if biz["certify_id"] != "CERT9" {
			t.Errorf("certify_id = %v", biz["certify_id"])
		}
		return `{"alipay_user_certify_open_query_response":{"code":"10000","msg":"Success","passed":"T","identity_info":"{\"cert_name\":\"张三\"}"}}`
	})
	defer server.Close()
	client.gatewayURL = server.URL

	result, errQuery := client.QueryResult(context.Background(), "CERT9")
	if errQuery != nil {
		t.Fatalf("query: %v", errQuery)
	}
	if !result.Passed {
		t.Fatal("passed must be true for passed=T")
	}
	if !strings.Contains(result.IdentityInfo, "cert_name") {
		t.Fatalf("identity info = %q", result.IdentityInfo)
	}
}

func TestQueryResultNotPassedIsNotError(t *testing.T) {
	client := newTestClient(t, "placeholder")
	server := fakeGateway(t, client, func(string, map[string]any) string {
		return `{"alipay_user_certify_open_query_response":{"code":"10000","msg":"Success","passed":"F"}}`
	})
	defer server.Close()
	client.gatewayURL = server.URL

	result, errQuery := client.QueryResult(context.Background(), "CERT9")
	if errQuery != nil {
		t.Fatalf("query: %v", errQuery)
	}
	if result.Passed {
		t.Fatal("passed must be false for passed=F")
	}
}

func TestQueryResultMissingPassedFieldMeansNotPassed(t *testing.T) {
	client := newTestClient(t, "placeholder")
	server := fakeGateway(t, client, func(string, map[string]any) string {
		return `{"alipay_user_certify_open_query_response":{"code":"10000","msg":"Success"}}`
	})
	defer server.Close()
	client.gatewayURL = server.URL

	result, errQuery := client.QueryResult(context.Background(), "CERT9")
	if errQuery != nil {
		t.Fatalf("query: %v", errQuery)
	}
	if result.Passed {
		t.Fatal("missing passed field must not count as passed")
	}
}

func TestUnconfiguredClientFailsAllOperations(t *testing.T) {
	client, errNew := New(Config{})
	if errNew != nil {
		t.Fatalf("new unconfigured client: %v", errNew)
	}
	if client.Configured() {
		t.Fatal("empty config must not be configured")
	}

	if _, errInit := client.Initialize(context.Background(), "o", "n", "i"); !errors.Is(errInit, gateway.ErrNotConfigured) {
		t.Fatalf("initialize error = %v", errInit)
	}
	if _, errURL := client.CertifyURL("CERT1"); !errors.Is(errURL, gateway.ErrNotConfigured) {
		t.Fatalf("certify url error = %v", errURL)
	}
	if _, errQuery := client.QueryResult(context.Background(), "CERT1"); !errors.Is(errQuery, gateway.ErrNotConfigured) {
		t.Fatalf("query error = %v", errQuery)
	}
}

func TestNewRejectsMalformedKeysAtConstruction(t *testing.T) {
	_, errNew := New(Config{
		AppID:      "2021000000000000",
		PrivateKey: "not a key at all",
	})
	if errNew == nil {
		t.Fatal("expected constructor error for malformed private key")
	}
}
