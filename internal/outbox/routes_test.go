package outbox

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRoutesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routes.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing routes file: %v", err)
	}
	return path
}

func TestLoadRoutes(t *testing.T) {
	path := writeRoutesFile(t, `
[routes]
"request.status_changed" = "/hooks/status"
"comment.added" = "/hooks/comments"
`)
	routes, err := LoadRoutes(path)
	if err != nil {
		t.Fatalf("LoadRoutes() error: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 overrides, got %d", len(routes))
	}
	if routes["request.status_changed"] != "/hooks/status" {
		t.Errorf("unexpected override: %q", routes["request.status_changed"])
	}
}

func TestLoadRoutes_EmptyPath(t *testing.T) {
	routes, err := LoadRoutes("")
	if err != nil {
		t.Fatalf("LoadRoutes(\"\") error: %v", err)
	}
	if routes != nil {
		t.Fatalf("expected nil overrides, got %v", routes)
	}
}

func TestLoadRoutes_MissingFile(t *testing.T) {
	if _, err := LoadRoutes(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing routes file")
	}
}

func TestLoadRoutes_RejectsRelativePath(t *testing.T) {
	path := writeRoutesFile(t, `
[routes]
"request.created" = "hooks/created"
`)
	if _, err := LoadRoutes(path); err == nil {
		t.Fatal("expected error for override without leading slash")
	}
}

func TestLoadRoutes_MalformedTOML(t *testing.T) {
	path := writeRoutesFile(t, `[routes`)
	if _, err := LoadRoutes(path); err == nil {
		t.Fatal("expected error for malformed TOML")
	}
}

func TestEntry_Terminal(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  bool
	}{
		{"pending", Entry{Status: StatusPending}, false},
		{"sent", Entry{Status: StatusSent}, true},
		{"failed with retries left", Entry{Status: StatusFailed, RetryCount: 2, MaxRetries: 5}, false},
		{"failed exhausted", Entry{Status: StatusFailed, RetryCount: 5, MaxRetries: 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}
