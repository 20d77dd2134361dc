package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/context-bank/internal/contextbank"
	"github.com/starford/context-bank/internal/journal"
	"github.com/starford/context-bank/internal/mcpserver"
	"github.com/starford/context-bank/internal/models"
	"github.com/starford/context-bank/internal/sse"
	"github.com/starford/context-bank/internal/workspace"
)

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestRun_StdioSweepsStaleWorkspaces(t *testing.T) {
	tmp := t.TempDir()
	journalPath := filepath.Join(t.TempDir(), "journal.db")

	stale := filepath.Join(tmp, "context-bank-1-deadbeef")
	if err := os.MkdirAll(filepath.Join(stale, "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	// Recorded by a process that no longer runs.
	db, err := journal.Open(journalPath, journal.WithOwner(journal.Owner{
		Host: journal.CurrentOwner().Host,
		PID:  1 << 30,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Record(stale, time.Now()); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	cfg := NewDefaultConfig()
	cfg.Workspace.TempDir = tmp
	cfg.Workspace.JournalPath = journalPath

	var stdout, stderr bytes.Buffer
	err = Run(context.Background(),
		WithConfig(cfg),
		WithStdio(strings.NewReader(""), &stdout, &stderr),
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale workspace still present: %v", err)
	}
	if !strings.Contains(stderr.String(), "Removed stale workspaces") {
		t.Errorf("logs went elsewhere: stderr = %q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout must carry only protocol traffic, got %q", stdout.String())
	}

	db, err = journal.Open(journalPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	pending, err := db.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("journal still holds %v", pending)
	}
}

type noopService struct{}

func (noopService) ListMarkdownFiles(context.Context, contextbank.ListRequest) (*models.FileList, error) {
	return &models.FileList{Files: []string{}}, nil
}

func (noopService) GetFileContent(context.Context, contextbank.ContentRequest) (*models.FileContent, error) {
	return &models.FileContent{}, nil
}

func (noopService) SearchMarkdownContent(context.Context, contextbank.SearchRequest) (*models.SearchResponse, error) {
	return &models.SearchResponse{}, nil
}

func TestRouter_Health(t *testing.T) {
	cfg := NewDefaultConfig()
	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	registry := workspace.NewRegistry(nil, nil)
	registry.Add(filepath.Join(t.TempDir(), "ws"))

	h := newRouter(cfg, noopService{}, mcpserver.New(noopService{}), broker, registry)

	for _, path := range []string{"/health/live", "/health/ready"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s = %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body struct {
		Status     string `json:"status"`
		Workspaces int    `json:"workspaces"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Workspaces != 1 {
		t.Errorf("workspaces = %d, want 1", body.Workspaces)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/api/files = %d", w.Code)
	}
}

func TestRouter_AuthCoversMCP(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth = AuthConfig{Mode: AuthModeToken, Token: "tok"}
	broker := sse.NewBroker(time.Second)
	defer broker.Close()

	h := newRouter(cfg, noopService{}, mcpserver.New(noopService{}), broker, workspace.NewRegistry(nil, nil))

	for _, path := range []string{"/mcp", "/api/files"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}")))
		if w.Code != http.StatusUnauthorized && w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s without token = %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health must stay open, got %d", w.Code)
	}
}
