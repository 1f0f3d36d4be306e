package http

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
)

func TestTOTPConfirmWithoutPrepare(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerAccount(t, "nosetup@example.com", "asker")

	rec := env.request(t, http.MethodPost, "/v1/mfa/totp/confirm", gin.H{"code": "123456"}, token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("confirm without prepare: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestTOTPConfirmRejectsWrongCode(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerAccount(t, "wrongcode@example.com", "asker")

	rec := env.request(t, http.MethodPost, "/v1/mfa/totp/prepare", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("prepare: status %d body %s", rec.Code, rec.Body.String())
	}
	var prepared struct {
		QRImage string `json:"qr_image"`
	}
	decode(t, rec, &prepared)
	if !strings.HasPrefix(prepared.QRImage, "data:image/png;base64,") {
		t.Fatalf("qr image is not an inline png: %.40s", prepared.QRImage)
	}

	rec = env.request(t, http.MethodPost, "/v1/mfa/totp/confirm", gin.H{"code": "000000"}, token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong code: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodPost, "/v1/mfa/totp/confirm", gin.H{"code": ""}, token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty code: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestTOTPDisableRestoresPasswordOnlyLogin(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerAccount(t, "toggle@example.com", "asker")

	rec := env.request(t, http.MethodPost, "/v1/mfa/totp/prepare", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("prepare: status %d body %s", rec.Code, rec.Body.String())
	}
	var prepared struct {
		Secret string `json:"secret"`
	}
	decode(t, rec, &prepared)

	code, errCode := totp.GenerateCode(prepared.Secret, time.Now())
	if errCode != nil {
		t.Fatalf("generate code: %v", errCode)
	}
	rec = env.request(t, http.MethodPost, "/v1/mfa/totp/confirm", gin.H{"code": code}, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: status %d body %s", rec.Code, rec.Body.String())
	}

	var profile struct {
		TOTPEnabled bool `json:"totp_enabled"`
	}
	rec = env.request(t, http.MethodGet, "/v1/profile", nil, token)
	decode(t, rec, &profile)
	if !profile.TOTPEnabled {
		t.Fatal("profile does not report totp enabled")
	}

	rec = env.request(t, http.MethodPost, "/v1/mfa/totp/disable", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("disable: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodPost, "/v1/auth/login", gin.H{
		"email":    "toggle@example.com",
		"password": "horse staple",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login after disable: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodGet, "/v1/profile", nil, token)
	decode(t, rec, &profile)
	if profile.TOTPEnabled {
		t.Fatal("profile still reports totp enabled")
	}
}
