package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"carbonq/pkg/store"
	"carbonq/services/auth/internal/app"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	sessions, err := store.NewJWTSessionStore("test-secret", time.Minute, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	appCore, err := app.New(app.Config{
		Store:         store.NewMemoryStore(),
		Sessions:      sessions,
		RefreshTokens: store.NewMemoryRefreshTokenStore(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ts := httptest.NewServer(New(Config{App: appCore}).Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any, token string) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeTokens(t *testing.T, resp *http.Response) tokenResponse {
	t.Helper()
	defer resp.Body.Close()
	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestSignupLoginFlow(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/auth/signup", map[string]string{
		"email":    "a@example.com",
		"password": "secret-pass-1",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d", resp.StatusCode)
	}
	signup := decodeTokens(t, resp)
	if signup.Token == "" || signup.RefreshToken == "" {
		t.Fatal("expected token pair from signup")
	}

	resp = postJSON(t, ts.URL+"/auth/login", map[string]string{
		"email":    "a@example.com",
		"password": "secret-pass-1",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	login := decodeTokens(t, resp)
	if login.User.Email != "a@example.com" {
		t.Fatalf("unexpected login user: %q", login.User.Email)
	}

	// /auth/me with the access token.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	meResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me request: %v", err)
	}
	defer meResp.Body.Close()
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", meResp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "whatever-pass",
	}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login status = %d, want 401", resp.StatusCode)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	ts := newTestServer(t)

	signup := decodeTokens(t, postJSON(t, ts.URL+"/auth/signup", map[string]string{
		"email":    "a@example.com",
		"password": "secret-pass-1",
	}, ""))

	resp := postJSON(t, ts.URL+"/auth/logout", map[string]string{
		"refreshToken": signup.RefreshToken,
	}, signup.Token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+signup.Token)
	meResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me request: %v", err)
	}
	defer meResp.Body.Close()
	if meResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout status = %d, want 401", meResp.StatusCode)
	}
}

func TestRefreshEndpointRotates(t *testing.T) {
	ts := newTestServer(t)

	signup := decodeTokens(t, postJSON(t, ts.URL+"/auth/signup", map[string]string{
		"email":    "a@example.com",
		"password": "secret-pass-1",
	}, ""))

	resp := postJSON(t, ts.URL+"/auth/refresh", map[string]string{
		"refreshToken": signup.RefreshToken,
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	refreshed := decodeTokens(t, resp)
	if refreshed.RefreshToken == "" || refreshed.RefreshToken == signup.RefreshToken {
		t.Fatal("expected rotated refresh token")
	}

	// The consumed token is rejected on replay.
	resp = postJSON(t, ts.URL+"/auth/refresh", map[string]string{
		"refreshToken": signup.RefreshToken,
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replayed refresh status = %d, want 401", resp.StatusCode)
	}
}

func TestMethodAndBodyValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/auth/signup")
	if err != nil {
		t.Fatalf("get signup: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET signup status = %d, want 405", resp.StatusCode)
	}

	badResp, err := http.Post(ts.URL+"/auth/signup", "application/json", bytes.NewReader([]byte("{not-json")))
	if err != nil {
		t.Fatalf("post bad json: %v", err)
	}
	badResp.Body.Close()
	if badResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad json status = %d, want 400", badResp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("expected request id header from middleware")
	}
}
