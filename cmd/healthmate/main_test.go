package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthmate/healthmate/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:              "8000",
		Env:               "development",
		CORSOrigins:       []string{"http://localhost:3000"},
		StorageBackend:    "local",
		StorageDir:        t.TempDir(),
		MaxUploadBytes:    10 << 20,
		AdvisoryTimeout:   30 * time.Second,
		ChatHistoryWindow: 5,
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	want := map[string][]string{
		"serve":   nil,
		"migrate": {"up", "status"},
		"seed":    {"symptoms"},
		"jobs":    {"complete-appointments", "send-reminders"},
	}

	for name, subs := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %q command, got %v (err %v)", name, cmd, err)
		}
		for _, sub := range subs {
			c, _, err := root.Find([]string{name, sub})
			if err != nil || c.Name() != sub {
				t.Errorf("expected %q %q command, got %v (err %v)", name, sub, c, err)
			}
		}
	}
}

func TestMigrateCmd_DirFlagDefault(t *testing.T) {
	for _, sub := range []string{"up", "status"} {
		cmd, _, err := rootCmd().Find([]string{"migrate", sub})
		if err != nil {
			t.Fatalf("find migrate %s: %v", sub, err)
		}
		dir, err := cmd.Flags().GetString("dir")
		if err != nil {
			t.Fatalf("migrate %s has no --dir flag: %v", sub, err)
		}
		if dir != "./migrations" {
			t.Errorf("migrate %s: expected default dir ./migrations, got %q", sub, dir)
		}
	}
}

func TestSeedCmd_FileFlagDefault(t *testing.T) {
	cmd, _, err := rootCmd().Find([]string{"seed", "symptoms"})
	if err != nil {
		t.Fatalf("find seed symptoms: %v", err)
	}
	file, _ := cmd.Flags().GetString("file")
	if file != "./seeds/symptoms.yaml" {
		t.Errorf("expected default file ./seeds/symptoms.yaml, got %q", file)
	}
}

func TestNewCompleter_NoKeyIsNilInterface(t *testing.T) {
	cfg := testConfig(t)
	if c := newCompleter(cfg); c != nil {
		t.Fatalf("expected nil completer without an API key, got %T", c)
	}

	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIModel = "gpt-3.5-turbo"
	if c := newCompleter(cfg); c == nil {
		t.Fatal("expected a completer when an API key is set")
	}
}

func TestNewPublisher_NoURLIsNop(t *testing.T) {
	cfg := testConfig(t)
	p := newPublisher(cfg, zerolog.Nop())
	if err := p.Publish(context.Background(), "appointment.created", map[string]string{"id": "x"}); err != nil {
		t.Errorf("expected nop publish to succeed, got %v", err)
	}
}

func TestNewApp_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorageBackend = "ftp"
	if _, err := newApp(context.Background(), cfg, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected an error for an unknown storage backend")
	}
}

func newTestServer(t *testing.T) *httptestServer {
	t.Helper()
	cfg := testConfig(t)
	a, err := newApp(context.Background(), cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { a.close(context.Background()) })
	return &httptestServer{handler: newServer(cfg, a, zerolog.Nop())}
}

type httptestServer struct {
	handler http.Handler
}

func (s *httptestServer) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_Health(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("expected security headers on every response")
	}
}

func TestNewServer_Routes(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(context.Background(), cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	e := newServer(cfg, a, zerolog.Nop())

	registered := make(map[string]bool)
	for _, r := range e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	want := []string{
		"GET /health",
		"POST /api/v1/accounts",
		"GET /api/v1/doctors",
		"POST /api/v1/appointments",
		"GET /api/v1/records",
		"GET /api/v1/symptoms",
		"POST /api/v1/user-symptoms",
		"POST /api/v1/symptom-checks",
		"POST /api/v1/diagnoses",
		"POST /api/v1/diagnoses/from-symptom-check",
		"GET /api/v1/diagnoses/:id/summary.pdf",
		"POST /api/v1/treatments/:id/rate",
		"POST /api/v1/follow-ups/:id/schedule",
		"POST /api/v1/chat",
		"GET /api/v1/chat/history",
	}
	for _, route := range want {
		if !registered[route] {
			t.Errorf("expected route %q to be registered", route)
		}
	}
}

func TestIsAdvisoryPath(t *testing.T) {
	id := "3f2a9c1e-0b6d-4c57-9a1e-6f0d2b8c4e71"
	tests := []struct {
		path string
		want bool
	}{
		{"/api/v1/chat", true},
		{"/api/v1/chat/history", true},
		{"/api/v1/symptom-checks", true},
		{"/api/v1/symptom-checks/recent", false},
		{"/api/v1/diagnoses/" + id + "/generate-treatment", true},
		{"/api/v1/diagnoses/" + id + "/summary.pdf", false},
		{"/api/v1/diagnoses/" + id, false},
		{"/api/v1/diagnoses", false},
		{"/api/v1/records", false},
	}
	for _, tt := range tests {
		if got := isAdvisoryPath(tt.path); got != tt.want {
			t.Errorf("isAdvisoryPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
