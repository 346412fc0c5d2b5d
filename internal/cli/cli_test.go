package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/totemic/internal/config"
	"github.com/lazypower/totemic/internal/engine"
	"github.com/lazypower/totemic/internal/server"
	"github.com/lazypower/totemic/internal/store"
)

// run executes the root command with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// testConfigDir writes a config that keeps the database inside the test's
// temp dir.
func testConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.SQLitePath = filepath.Join(dir, "totemic.db")
	if _, err := config.Save(dir, cfg, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return dir
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"0", 0, true},
		{"84h", 84 * time.Hour, true},
		{"7d", 7 * 24 * time.Hour, true},
		{"1.5d", 36 * time.Hour, true},
		{"-1h", 0, false},
		{"xd", 0, false},
		{"soon", 0, false},
	}
	for _, tt := range tests {
		got, err := parseAge(tt.in)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("parseAge(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Errorf("parseAge(%q) should fail", tt.in)
		}
	}
}

func TestScoreCommand(t *testing.T) {
	out, err := run(t, "", "score", "--model", "fast", "--age", "0", "--age", "84h", "--age", "7d")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if strings.TrimSpace(out) != "50.00" {
		t.Errorf("score output = %q, want 50.00", out)
	}

	if _, err := run(t, "", "score", "--model", "glacial"); err == nil {
		t.Error("unknown model should fail")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "totemic ") {
		t.Errorf("version output = %q", out)
	}
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "", "--config", dir, "config", "init")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, filepath.Join(dir, config.ConfigFile)) {
		t.Errorf("output = %q", out)
	}

	if _, err := run(t, "", "--config", dir, "config", "init"); err == nil {
		t.Error("second init without --force should fail")
	}
	t.Cleanup(func() { configForce = false })
	if _, err := run(t, "", "--config", dir, "config", "init", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}

	out, err = run(t, "", "--config", dir, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "[engine]") {
		t.Errorf("config show output missing [engine]: %q", out)
	}
}

func TestOpenStoreDrivers(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "memory"
	st, desc, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*store.Memory); !ok || desc != "memory" {
		t.Errorf("memory driver gave %T %q", st, desc)
	}

	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "x.db")
	db, desc, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer db.Close()
	if !strings.HasPrefix(desc, "sqlite ") {
		t.Errorf("sqlite desc = %q", desc)
	}

	cfg.Store.Driver = "etcd"
	if _, _, err := openStore(context.Background(), cfg); err == nil {
		t.Error("unknown driver should fail")
	}
}

func TestNewCoordinatorRejectsBadPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Policy.Subjects = "some"
	if _, err := newCoordinator(cfg, store.NewMemory(), nil, nil); err == nil {
		t.Error("invalid policy should fail")
	}
}

func TestDocumentWorkflow(t *testing.T) {
	dir := testConfigDir(t)

	doc := `{"id":"post-1","answers":[
		{"id":"a1","text":"Enable WAL journaling for sqlite concurrency","totems":[{"name":"sqlite"}]},
		{"id":"a2","text":"Enable WAL journaling for sqlite writers concurrency","totems":[{"name":"wal","decay_model":"fast"}]}
	]}`
	out, err := run(t, doc, "--config", dir, "create")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(out, "created post-1 (2 answers)") {
		t.Errorf("create output = %q", out)
	}

	out, err = run(t, "", "--config", dir, "like", "post-1", "a1", "sqlite", "--subject", "u1")
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if !strings.HasPrefix(out, "new: sqlite on post-1/a1") || !strings.Contains(out, "score:  100.00") {
		t.Errorf("like output = %q", out)
	}

	if _, err := run(t, "", "--config", dir, "like", "post-1", "a1", "sqlite", "--subject", "u1"); err == nil {
		t.Error("second like by the same subject should fail")
	}

	out, err = run(t, "", "--config", dir, "unlike", "post-1", "a1", "sqlite", "--subject", "u1")
	if err != nil {
		t.Fatalf("unlike: %v", err)
	}
	if !strings.HasPrefix(out, "unlike: sqlite") || !strings.Contains(out, "active: 0") {
		t.Errorf("unlike output = %q", out)
	}

	out, err = run(t, "", "--config", dir, "suggest", "post-1")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if !strings.Contains(out, "a1:") || !strings.Contains(out, "wal") {
		t.Errorf("suggest output = %q", out)
	}

	out, err = run(t, "", "--config", dir, "recompute", "post-1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !strings.Contains(out, "sqlite -- wal (1)") {
		t.Errorf("recompute output = %q", out)
	}

	out, err = run(t, "", "--config", dir, "rescore", "post-1")
	if err != nil {
		t.Fatalf("rescore: %v", err)
	}
	if !strings.Contains(out, "a1\tsqlite\t0.00\t0") {
		t.Errorf("rescore output = %q", out)
	}

	if _, err := run(t, "", "--config", dir, "suggest", "post-404"); err == nil {
		t.Error("missing document should fail")
	}
}

func TestCreateFromFile(t *testing.T) {
	dir := testConfigDir(t)
	t.Cleanup(func() { createFile = "-" })
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte(`{"answers":[{"text":"hello"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "--config", dir, "create", "--file", path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(out, "created ") || !strings.Contains(out, "(1 answers)") {
		t.Errorf("create output = %q", out)
	}
}

func TestRemoteEngageAndStatus(t *testing.T) {
	mem := store.NewMemory()
	coord := engine.NewCoordinator(mem)
	_, err := coord.CreateDocument(context.Background(), engine.DocumentInput{
		ID:      "post-1",
		Answers: []engine.AnswerInput{{ID: "a1", Text: "use contexts"}},
	})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	ts := httptest.NewServer(server.New(coord, mem, "test", nil))
	defer ts.Close()
	t.Cleanup(func() { engageServer, statusServer, engageModel = "", "", "" })

	out, err := run(t, "", "like", "post-1", "a1", "golang", "--subject", "u1", "--model", "fast", "--server", ts.URL)
	if err != nil {
		t.Fatalf("remote like: %v", err)
	}
	if !strings.HasPrefix(out, "new: golang on post-1/a1") {
		t.Errorf("remote like output = %q", out)
	}

	doc, err := coord.Get(context.Background(), "post-1")
	if err != nil {
		t.Fatal(err)
	}
	if tot := doc.Answers[0].Totem("golang"); tot == nil || tot.DecayModel != store.DecayFast {
		t.Errorf("remote like did not create a fast totem: %+v", tot)
	}

	out, err = run(t, "", "status", "--server", ts.URL)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "status:  ok") || !strings.Contains(out, "version: test") {
		t.Errorf("status output = %q", out)
	}
}
