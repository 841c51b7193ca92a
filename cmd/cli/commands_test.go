package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/config"
	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
)

type stubChecker struct{}

func (stubChecker) Check(_ context.Context, target string) domain.Outcome {
	if strings.Contains(target, "down") {
		return domain.Offline(-1, "Connection failed")
	}
	return domain.Online(0.123)
}

type harness struct {
	app    *app
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newHarness(stdin string) *harness {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cfg := config.Defaults()
	cfg.Store = config.StoreMemory
	return &harness{
		app: &app{
			repo:       memory.New(),
			cfg:        cfg,
			log:        zap.NewNop(),
			in:         strings.NewReader(stdin),
			out:        out,
			errOut:     errOut,
			newChecker: func(time.Duration) probe.Checker { return stubChecker{} },
		},
		out:    out,
		errOut: errOut,
	}
}

func (h *harness) run(t *testing.T, args ...string) int {
	t.Helper()
	h.out.Reset()
	h.errOut.Reset()
	return h.app.run(context.Background(), args)
}

func TestAddListRemove(t *testing.T) {
	h := newHarness("")

	if code := h.run(t, "add", "example.com"); code != 0 || !strings.Contains(h.out.String(), "✓ Added http://example.com") {
		t.Fatalf("add: code=%d out=%q err=%q", code, h.out, h.errOut)
	}
	if code := h.run(t, "add", "http://example.com"); code != 0 || !strings.Contains(h.out.String(), "already in the monitoring list") {
		t.Fatalf("duplicate: code=%d out=%q", code, h.out)
	}
	if code := h.run(t, "add", "not a url!!"); code != 1 || !strings.Contains(h.errOut.String(), "Invalid URL format") {
		t.Fatalf("invalid: code=%d err=%q", code, h.errOut)
	}

	if code := h.run(t, "list"); code != 0 || !strings.Contains(h.out.String(), " 1. ⚪ http://example.com") || !strings.Contains(h.out.String(), "Last check: Never") {
		t.Fatalf("list: code=%d out=%q", code, h.out)
	}

	if code := h.run(t, "remove", "example.com"); code != 0 {
		t.Fatalf("remove: code=%d err=%q", code, h.errOut)
	}
	if code := h.run(t, "remove", "example.com"); code != 1 || !strings.Contains(h.errOut.String(), "not found") {
		t.Fatalf("remove absent: code=%d err=%q", code, h.errOut)
	}
	if code := h.run(t, "list"); code != 0 || !strings.Contains(h.out.String(), "No websites in monitoring list") {
		t.Fatalf("empty list: %q", h.out)
	}
}

func TestCheckStatusHistory(t *testing.T) {
	h := newHarness("")
	if code := h.run(t, "check"); code != 0 || !strings.Contains(h.out.String(), "No websites to check") {
		t.Fatalf("empty check: %d %q", code, h.out)
	}

	h.run(t, "add", "https://up.example")
	h.run(t, "add", "https://down.example")

	if code := h.run(t, "check"); code != 0 {
		t.Fatalf("check: code=%d err=%q", code, h.errOut)
	}
	out := h.out.String()
	if !strings.Contains(out, "Checking 2 website(s)...") {
		t.Fatalf("missing header: %q", out)
	}
	if !strings.Contains(out, "Checked 2 website(s) in ") || !strings.Contains(out, "ms\n") {
		t.Fatalf("missing summary with duration: %q", out)
	}
	if !strings.Contains(out, "🔴 https://down.example") || !strings.Contains(out, "OFFLINE - Connection failed") {
		t.Fatalf("missing offline line: %q", out)
	}
	if !strings.Contains(out, "ONLINE (0.123s)") {
		t.Fatalf("missing online line: %q", out)
	}

	if code := h.run(t, "status"); code != 0 {
		t.Fatalf("status: %d", code)
	}
	out = h.out.String()
	if !strings.Contains(out, "Response time: 0.123s") || !strings.Contains(out, "Last error: Connection failed") || !strings.Contains(out, "Response time: N/A") {
		t.Fatalf("status output: %q", out)
	}

	h.run(t, "check")
	if code := h.run(t, "history", "https://down.example", "-limit", "1"); code != 0 {
		t.Fatalf("history: %d %q", code, h.errOut)
	}
	if n := strings.Count(h.out.String(), "OFFLINE"); n != 1 {
		t.Fatalf("want 1 history line, got %d: %q", n, h.out)
	}
	if code := h.run(t, "history", "-limit", "0", "https://down.example"); code != 1 {
		t.Fatalf("bad limit: want exit 1, got %d", code)
	}
}

func TestClear_Confirmation(t *testing.T) {
	h := newHarness("n\n")
	h.run(t, "add", "a.example")
	if code := h.run(t, "clear"); code != 0 || !strings.Contains(h.out.String(), "Aborted.") {
		t.Fatalf("declined clear: %d %q", code, h.out)
	}
	sites, _ := h.app.repo.ListSites(context.Background())
	if len(sites) != 1 {
		t.Fatalf("site removed despite declining")
	}

	h.app.in = strings.NewReader("yes\n")
	if code := h.run(t, "clear"); code != 0 || !strings.Contains(h.out.String(), "✓ Removed 1 website(s)") {
		t.Fatalf("confirmed clear: %d %q", code, h.out)
	}

	h.run(t, "add", "b.example")
	if code := h.run(t, "clear", "-yes"); code != 0 || !strings.Contains(h.out.String(), "✓ Removed 1 website(s)") {
		t.Fatalf("clear -yes: %d %q", code, h.out)
	}
}

func TestStart_RefusesEmptyListAndBadRanges(t *testing.T) {
	h := newHarness("")
	if code := h.run(t, "start"); code != 0 || !strings.Contains(h.out.String(), "No websites to monitor") {
		t.Fatalf("empty start: %d %q", code, h.out)
	}
	if code := h.run(t, "start", "-interval", "4"); code != 1 {
		t.Fatalf("short interval: want exit 1, got %d", code)
	}
	if code := h.run(t, "start", "-timeout", "0"); code != 1 {
		t.Fatalf("zero timeout: want exit 1, got %d", code)
	}
}

func TestStart_RejectsSecondsBeyondDurationRange(t *testing.T) {
	h := newHarness("")
	h.run(t, "add", "https://up.example")

	if code := h.run(t, "start", "-interval", "18446744079"); code != 1 || !strings.Contains(h.errOut.String(), "interval must be between") {
		t.Fatalf("huge interval: code=%d err=%q", code, h.errOut)
	}
	if code := h.run(t, "start", "-timeout", "18446744074"); code != 1 || !strings.Contains(h.errOut.String(), "timeout must be between") {
		t.Fatalf("huge timeout: code=%d err=%q", code, h.errOut)
	}
	hist, _ := h.app.repo.History(context.Background(), "https://up.example", 0)
	if len(hist) != 0 {
		t.Fatalf("no sweep expected, got %d records", len(hist))
	}
}

func TestStart_RunsUntilCanceled(t *testing.T) {
	h := newHarness("")
	h.run(t, "add", "https://up.example")
	h.out.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- h.app.run(ctx, []string{"start", "-interval", "5", "-timeout", "1"}) }()

	deadline := time.After(2 * time.Second)
	for {
		hist, _ := h.app.repo.History(context.Background(), "https://up.example", 0)
		if len(hist) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no sweep recorded")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("start exit code %d: %q", code, h.errOut)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("start did not return after cancel")
	}
}

func TestImport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	yml := "sites:\n  - example.com\n  - https://golang.org\n  - \"not a url!!\"\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	h := newHarness("")
	if code := h.run(t, "import", path); code != 0 || !strings.Contains(h.out.String(), "✓ Imported 2 of 3 site(s)") {
		t.Fatalf("import: %d out=%q err=%q", code, h.out, h.errOut)
	}
	if !strings.Contains(h.errOut.String(), "Skipping invalid URL") {
		t.Fatalf("missing skip warning: %q", h.errOut)
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness("")
	if code := h.run(t, "frobnicate"); code != 2 {
		t.Fatalf("want exit 2, got %d", code)
	}
}
