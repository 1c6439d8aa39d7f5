package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	"github.com/wolfman30/frontdesk-calendar/internal/frontdesk"
	"github.com/wolfman30/frontdesk-calendar/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/frontdesk-calendar/internal/http/middleware"
	"github.com/wolfman30/frontdesk-calendar/internal/observability/metrics"
	"github.com/wolfman30/frontdesk-calendar/internal/scheduleapi"
	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
	"github.com/wolfman30/frontdesk-calendar/pkg/logging"
)

type emptyBackend struct{}

func (emptyBackend) FetchWeek(ctx context.Context, providers []string, start, end clinictime.Date) (calendar.Snapshot, error) {
	return calendar.Snapshot{WeekStart: start, WeekEnd: end}, nil
}

func (emptyBackend) CreateAppointment(ctx context.Context, in scheduleapi.NewAppointment) (calendar.Appointment, error) {
	return calendar.Appointment{ID: "new"}, nil
}

func (emptyBackend) Reschedule(ctx context.Context, id string, start time.Time, provider string) error {
	return nil
}

func (emptyBackend) DeleteAppointment(ctx context.Context, id string) error { return nil }

func (emptyBackend) CreateTimeBlock(ctx context.Context, in scheduleapi.NewTimeBlock) (calendar.TimeBlock, error) {
	return calendar.TimeBlock{ID: "tb"}, nil
}

func (emptyBackend) DeleteTimeBlock(ctx context.Context, id string) error { return nil }

func (emptyBackend) SearchPatients(ctx context.Context, query string) ([]scheduleapi.Patient, error) {
	return nil, nil
}

func (emptyBackend) AddPatient(ctx context.Context, in scheduleapi.NewPatient) (scheduleapi.Patient, error) {
	return scheduleapi.Patient{ID: "p"}, nil
}

func newTestRouter(t *testing.T, mutate func(cfg *Config)) http.Handler {
	t.Helper()

	logger := logging.Discard()
	zone, err := clinictime.Load("Pacific/Honolulu")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	grid, err := timegrid.NewGrid(timegrid.DefaultConfig())
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	reg := prometheus.NewRegistry()
	m := metrics.NewConsoleMetrics(reg)
	console, err := frontdesk.New(frontdesk.Config{
		Grid:    grid,
		Zone:    zone,
		Backend: emptyBackend{},
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("console: %v", err)
	}

	cfg := &Config{
		Logger:         logger,
		Console:        console,
		ConsoleHandler: handlers.NewConsoleHandler(console, logger),
		StreamHandler:  handlers.NewStreamHandler(console, m, nil, logger),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg)
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp handlers.HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got %q", resp.Status)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected refresh status %d, got %d", http.StatusOK, rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `frontdesk_console_refresh_total{reason="manual",result="applied"} 1`) {
		t.Fatalf("expected refresh counter in metrics output:\n%s", rr.Body.String())
	}
}

func TestRouterAppointmentRoutes(t *testing.T) {
	router := newTestRouter(t, nil)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/api/grid", "", http.StatusOK},
		{http.MethodPost, "/api/appointments", `{}`, http.StatusUnprocessableEntity},
		{http.MethodDelete, "/api/appointments/a1", "", http.StatusNoContent},
		{http.MethodPost, "/api/appointments/a1/move", `{"provider_id":"cherie","date":"2025-01-06","start":"09:00"}`, http.StatusNotFound},
		{http.MethodPost, "/api/time-blocks", `{}`, http.StatusUnprocessableEntity},
		{http.MethodDelete, "/api/time-blocks/tb1", "", http.StatusNoContent},
		{http.MethodGet, "/api/entities/x", "", http.StatusNotFound},
		{http.MethodGet, "/api/patients?query=ab", "", http.StatusOK},
		{http.MethodPost, "/api/patients", `{"first_name":"Kai"}`, http.StatusUnprocessableEntity},
		{http.MethodPost, "/api/patients", `{"first_name":"Kai","last_name":"Akana","date_of_birth":"1990-01-01","primary_insurance":"HMSA"}`, http.StatusCreated},
		{http.MethodGet, "/api/grid?week=2025-01-20", "", http.StatusOK},
		{http.MethodGet, "/api/stream", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected status %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRouterStaffAuth(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.StaffAuthSecret = "signing-secret"
		cfg.AuthHandler = handlers.NewAuthHandler("aloha-desk", "signing-secret", time.Hour, cfg.Logger)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/grid", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"password":"aloha-desk"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected login status %d, got %d", http.StatusOK, rr.Code)
	}
	var login handlers.LoginResponse
	if err := json.NewDecoder(rr.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/grid", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	// Health stays public.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected health status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterRefreshIsRateLimited(t *testing.T) {
	limiter := httpmiddleware.NewRateLimiter(0.001, 1)
	defer limiter.Stop()
	router := newTestRouter(t, func(cfg *Config) { cfg.RefreshLimiter = limiter })

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
		req.RemoteAddr = "10.1.1.1:5000"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}
	if rr := send(); rr.Code != http.StatusOK {
		t.Fatalf("expected first refresh through, got %d", rr.Code)
	}
	rr := send()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d, got %d", http.StatusTooManyRequests, rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	// The grid itself is not throttled.
	req := httptest.NewRequest(http.MethodGet, "/api/grid", nil)
	req.RemoteAddr = "10.1.1.1:5000"
	grid := httptest.NewRecorder()
	router.ServeHTTP(grid, req)
	if grid.Code != http.StatusOK {
		t.Fatalf("expected grid status %d, got %d", http.StatusOK, grid.Code)
	}
}
