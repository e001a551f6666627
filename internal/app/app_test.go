package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/chatpe/chatpe-server/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.SessionSecret = "test-secret"
	cfg.Persistence = config.PersistenceConfig{Driver: config.DriverMemory}
	cfg.Rooms = []config.RoomConfig{
		{Key: "lobby", Name: "Secret Room"},
		{Key: "CS", Name: "Computer Science", Prefixes: []string{"CS"}},
	}
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	logger := zerolog.Nop()
	cfg := testConfig(t)
	cfg.Persistence.Driver = "floppy"

	if _, err := New(context.Background(), cfg, &logger); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestNewPreloadsConfiguredRooms(t *testing.T) {
	logger := zerolog.Nop()
	a, err := New(context.Background(), testConfig(t), &logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.cleanup)

	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		OK    bool `json:"ok"`
		Rooms int  `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || !body.OK || body.Rooms != 2 {
		t.Fatalf("unexpected health %d %+v", resp.StatusCode, body)
	}
}

func TestSQLiteDriverAndJobs(t *testing.T) {
	logger := zerolog.Nop()
	cfg := testConfig(t)
	cfg.Persistence = config.PersistenceConfig{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "rooms.db"),
	}

	a, err := New(context.Background(), cfg, &logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.cleanup)

	if len(a.cron.Entries()) != 3 {
		t.Fatalf("expected 3 scheduled jobs, got %d", len(a.cron.Entries()))
	}

	// Jobs must be safe to run on an idle hub.
	a.pruneRooms()
	a.flushRooms()
	a.sweepChallenges()
}

func TestRunStopsOnCancel(t *testing.T) {
	logger := zerolog.Nop()
	a, err := New(context.Background(), testConfig(t), &logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("run returned %v", err)
	}
}
