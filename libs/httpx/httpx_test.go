package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("user:1") || !rl.Allow("user:1") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("user:1") {
		t.Fatal("third request in window should be rejected")
	}
	if !rl.Allow("user:2") {
		t.Fatal("other keys have their own window")
	}
	now = now.Add(61 * time.Second)
	if !rl.Allow("user:1") {
		t.Fatal("new window should reset the count")
	}
}

func TestClientKeyPrefersUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	if got := clientKey(req); got != "ip:10.0.0.1" {
		t.Fatalf("unexpected key %q", got)
	}
	req.Header.Set(HeaderUserID, "u-1")
	if got := clientKey(req); got != "user:u-1" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://glam.qa"},
		AllowedMethods: []string{"GET", "POST"},
		MaxAge:         10 * time.Minute,
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/bookings", nil)
	req.Header.Set("Origin", "https://glam.qa")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
	if rw.Header().Get("Access-Control-Allow-Methods") != "GET, POST" {
		t.Fatalf("unexpected methods header %q", rw.Header().Get("Access-Control-Allow-Methods"))
	}
	if rw.Header().Get("Access-Control-Max-Age") != "600" {
		t.Fatalf("unexpected max age %q", rw.Header().Get("Access-Control-Max-Age"))
	}

	other := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	other.Header.Set("Origin", "https://evil.example")
	rwOther := httptest.NewRecorder()
	h.ServeHTTP(rwOther, other)
	if rwOther.Code != http.StatusTeapot || rwOther.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unlisted origin should pass through without CORS headers")
	}
}

func TestIdentityManageArtist(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "u-1")
	req.Header.Set(HeaderArtistID, "a-1")
	req.Header.Set(HeaderRole, RoleArtist)
	id := IdentityFromRequest(req)
	if !id.Authenticated() || !id.CanManageArtist("a-1") || id.CanManageArtist("a-2") {
		t.Fatalf("unexpected permissions for %+v", id)
	}
	if !(Identity{UserID: "root", Role: RoleAdmin}).CanManageArtist("a-2") {
		t.Fatal("admin manages every artist")
	}
}

func TestTimeoutExemptSuffix(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(30 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	h := WithTimeout(5*time.Millisecond, "/await")(slow)

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/payments/transactions/t1", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected timeout 503, got %d", rw.Code)
	}

	rwAwait := httptest.NewRecorder()
	h.ServeHTTP(rwAwait, httptest.NewRequest(http.MethodGet, "/api/v1/payments/transactions/t1/await", nil))
	if rwAwait.Code != http.StatusOK {
		t.Fatalf("exempt path should not time out, got %d", rwAwait.Code)
	}
}
