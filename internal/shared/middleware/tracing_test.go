package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracing_SpanPerRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/dashboard", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/users/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})
	handler := Tracing(mux)

	tests := []struct {
		name     string
		path     string
		wantSpan string
		wantErr  bool
	}{
		{name: "dashboard", path: "/api/dashboard?account=acc-1", wantSpan: "GET /api/dashboard"},
		{name: "upstream failure", path: "/api/users/me", wantSpan: "GET /api/users/me", wantErr: true},
		{name: "unknown path", path: "/api/accounts/acc-1", wantSpan: "GET unmatched"},
		{name: "health check", path: "/health"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(recorder.Ended())
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))
			spans := recorder.Ended()[before:]

			if tt.wantSpan == "" {
				if len(spans) != 0 {
					t.Fatalf("expected no span, got %d", len(spans))
				}
				return
			}
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			if got := spans[0].Name(); got != tt.wantSpan {
				t.Errorf("span name = %q, want %q", got, tt.wantSpan)
			}
			if got := spans[0].Status().Code == codes.Error; got != tt.wantErr {
				t.Errorf("error status = %v, want %v", got, tt.wantErr)
			}
		})
	}
}
