package cmd

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/runger/capmatch/internal/store"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"junk":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

const seedFixture = `
- item_id: test-runner
  type: skill
  slug: test-runner
  name: Test Runner
  terms: [tests, test, failing, coverage]
  tags: [go]
- item_id: general-helper
  type: agent
  slug: general-helper
  name: General Helper
  terms: [help]
`

// run invokes the root command with args against a temp database and
// returns its stdout.
func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("capmatch %v: %v", args, err)
	}
	return out.String()
}

func TestSeedRecommendFeedbackRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	configPath = filepath.Join(tmp, "config.yaml") // missing, defaults apply
	dbPath = filepath.Join(tmp, "capmatch.db")

	seedFile := filepath.Join(tmp, "catalog.yaml")
	if err := os.WriteFile(seedFile, []byte(seedFixture), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}

	out := run(t, "seed", seedFile)
	if out != "Loaded 2 entries\n" {
		t.Errorf("seed output = %q", out)
	}

	out = run(t, "recommend", "fix the failing tests", "--session", "t1", "--json")
	var recs []store.Recommendation
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("parse recommend output %q: %v", out, err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one recommendation, got %d", len(recs))
	}
	if recs[0].ItemID != "test-runner" || recs[0].ID == "" {
		t.Errorf("unexpected recommendation: %+v", recs[0])
	}

	out = run(t, "feedback", recs[0].ID, "accepted")
	if out == "" {
		t.Error("feedback printed nothing")
	}

	out = run(t, "stats")
	if out == "" {
		t.Error("stats printed nothing")
	}
}

func TestFeedbackRejectsInvalidAction(t *testing.T) {
	rootCmd.SetArgs([]string{"feedback", "some-id", "loved-it"})
	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected an error for an unknown action")
	}
}
