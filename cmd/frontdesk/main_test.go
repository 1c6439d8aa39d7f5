package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/frontdesk-calendar/internal/app/bootstrap"
	appconfig "github.com/wolfman30/frontdesk-calendar/internal/config"
	"github.com/wolfman30/frontdesk-calendar/pkg/logging"
)

func buildTestServer(t *testing.T, mutate func(*appconfig.Config)) *http.Server {
	t.Helper()
	cfg := appconfig.Load()
	cfg.ScheduleAPIBaseURL = "http://schedule.invalid"
	cfg.RedisAddr = ""
	cfg.Port = "0"
	if mutate != nil {
		mutate(cfg)
	}
	logger := logging.New("error")
	rt, err := bootstrap.BuildRuntime(context.Background(), cfg, nil, logger)
	if err != nil {
		t.Fatalf("BuildRuntime: %v", err)
	}
	srv, limiter := newServer(cfg, rt, logger)
	t.Cleanup(limiter.Stop)
	return srv
}

func TestNewServerServesHealthAndMetrics(t *testing.T) {
	srv := buildTestServer(t, nil)
	if srv.Addr != ":0" {
		t.Fatalf("addr = %q", srv.Addr)
	}

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("expected runtime collectors to be exported")
	}
}

func TestNewServerRequiresTokenWhenStaffAuthEnabled(t *testing.T) {
	srv := buildTestServer(t, func(c *appconfig.Config) {
		c.StaffPassword = "aloha"
		c.StaffJWTSecret = "secret"
	})

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/grid", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
}

func TestNewServerOpenWithoutStaffAuth(t *testing.T) {
	srv := buildTestServer(t, nil)

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/grid", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
