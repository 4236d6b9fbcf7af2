package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsOriginAllowed(t *testing.T) {
	dashboardHosts := []string{"app.horizon.test", "localhost:5173"}

	tests := []struct {
		origin string
		hosts  []string
		want   bool
	}{
		{"https://app.horizon.test", dashboardHosts, true},
		{"https://app.horizon.test:8443", dashboardHosts, true},
		{"https://APP.Horizon.test", dashboardHosts, true},
		{"http://localhost:5173", dashboardHosts, true},
		{"http://localhost:3000", dashboardHosts, false},
		{"https://staging.app.horizon.test", dashboardHosts, false},
		{"https://horizon.test.attacker.example", dashboardHosts, false},
		{"null", dashboardHosts, false},
		{"://app.horizon.test", dashboardHosts, false},
		{"https://app.horizon.test", []string{" app.horizon.test\t"}, true},
		{"https://app.horizon.test", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			if got := isOriginAllowed(tt.origin, tt.hosts); got != tt.want {
				t.Errorf("isOriginAllowed(%q, %v) = %v, want %v", tt.origin, tt.hosts, got, tt.want)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	dashboardHosts := []string{"app.horizon.test"}

	tests := []struct {
		name        string
		hosts       []string
		method      string
		path        string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantCreds   bool
		wantForward bool
	}{
		{
			name:        "open when unconfigured",
			method:      http.MethodGet,
			path:        "/api/dashboard",
			origin:      "https://anywhere.example",
			wantStatus:  http.StatusOK,
			wantOrigin:  "*",
			wantForward: true,
		},
		{
			name:        "dashboard origin gets credentials",
			hosts:       dashboardHosts,
			method:      http.MethodGet,
			path:        "/api/dashboard",
			origin:      "https://app.horizon.test",
			wantStatus:  http.StatusOK,
			wantOrigin:  "https://app.horizon.test",
			wantCreds:   true,
			wantForward: true,
		},
		{
			name:       "foreign origin is refused",
			hosts:      dashboardHosts,
			method:     http.MethodGet,
			path:       "/api/dashboard",
			origin:     "https://attacker.example",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "preflight stops here",
			hosts:      dashboardHosts,
			method:     http.MethodOptions,
			path:       "/api/dashboard",
			origin:     "https://app.horizon.test",
			wantStatus: http.StatusNoContent,
			wantOrigin: "https://app.horizon.test",
			wantCreds:  true,
		},
		{
			name:        "health is open to any origin",
			hosts:       dashboardHosts,
			method:      http.MethodGet,
			path:        "/health",
			origin:      "https://attacker.example",
			wantStatus:  http.StatusOK,
			wantOrigin:  "*",
			wantForward: true,
		},
		{
			name:        "no origin header",
			hosts:       dashboardHosts,
			method:      http.MethodGet,
			path:        "/api/users/me",
			wantStatus:  http.StatusOK,
			wantForward: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forwarded := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				forwarded = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			CORS(tt.hosts)(next).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if forwarded != tt.wantForward {
				t.Errorf("forwarded = %v, want %v", forwarded, tt.wantForward)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rr.Header().Get("Access-Control-Allow-Credentials") == "true"; got != tt.wantCreds {
				t.Errorf("Allow-Credentials = %v, want %v", got, tt.wantCreds)
			}
			if tt.wantCreds && rr.Header().Get("Vary") != "Origin" {
				t.Errorf("Vary = %q, want Origin", rr.Header().Get("Vary"))
			}
		})
	}
}
