package http

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAuditTrailRecordsAccountActivity(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerAccount(t, "trail@example.com", "asker")

	// A failed then a successful login.
	rec := env.request(t, http.MethodPost, "/v1/auth/login", gin.H{
		"email":    "trail@example.com",
		"password": "not the password",
	}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: status %d", rec.Code)
	}
	rec = env.request(t, http.MethodPost, "/v1/auth/login", gin.H{
		"email":    "trail@example.com",
		"password": "horse staple",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodGet, "/v1/audit", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit list: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Events []struct {
			Event    string `json:"event"`
			Provider string `json:"provider"`
			Detail   string `json:"detail"`
		} `json:"events"`
	}
	decode(t, rec, &resp)

	seen := map[string]int{}
	for _, event := range resp.Events {
		seen[event.Event]++
	}
	if seen["register"] != 1 || seen["login"] != 1 || seen["login_failed"] != 1 {
		t.Fatalf("unexpected trail %v from %s", seen, rec.Body.String())
	}
}

func TestAuditTrailIsPerAccount(t *testing.T) {
	env := newTestEnv(t)
	env.registerAccount(t, "noisy@example.com", "asker")
	_, token := env.registerAccount(t, "quiet@example.com", "asker")

	rec := env.request(t, http.MethodGet, "/v1/audit", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit list: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Events []struct {
			Event string `json:"event"`
		} `json:"events"`
	}
	decode(t, rec, &resp)
	if len(resp.Events) != 1 || resp.Events[0].Event != "register" {
		t.Fatalf("trail leaks other accounts: %s", rec.Body.String())
	}
}

func TestAuditTrailLimitValidation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerAccount(t, "limits@example.com", "asker")

	rec := env.request(t, http.MethodGet, "/v1/audit?limit=abc", nil, token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodGet, "/v1/audit?limit=1", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("limited list: status %d body %s", rec.Code, rec.Body.String())
	}
}
