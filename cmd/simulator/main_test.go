package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func simulate(t *testing.T, opts options) string {
	t.Helper()
	if opts.Tick == 0 {
		opts.Tick = time.Second
	}
	var out bytes.Buffer
	if err := run(context.Background(), &out, opts); err != nil {
		t.Fatalf("run(%s): %v", opts.Scenario, err)
	}
	return out.String()
}

func TestMissionScenarioAuthenticates(t *testing.T) {
	out := simulate(t, options{Scenario: "mission"})
	if strings.Count(out, "authentication succeeded") != 1 {
		t.Fatalf("want exactly one success:\n%s", out)
	}
	if !strings.Contains(out, "[t=101]") || !strings.Contains(out, "state=VERIFYING") {
		t.Fatalf("missing verifying frame:\n%s", out)
	}
	if !strings.Contains(out, "guard=true") {
		t.Fatalf("replay guard not armed:\n%s", out)
	}
}

func TestReplayScenarioUnlocksOnce(t *testing.T) {
	out := simulate(t, options{Scenario: "replay"})
	if n := strings.Count(out, "authentication succeeded"); n != 1 {
		t.Fatalf("successes = %d, want 1:\n%s", n, out)
	}
}

func TestUpsetScenarioScrubs(t *testing.T) {
	out := simulate(t, options{Scenario: "upset", UpsetAt: 102})
	if !strings.Contains(out, "single event upset scrubbed") || !strings.Contains(out, "replica=B") {
		t.Fatalf("missing scrub event:\n%s", out)
	}
	if !strings.Contains(out, "health= 66.7") {
		t.Fatalf("missing degraded health frame:\n%s", out)
	}
	if strings.Count(out, "authentication succeeded") != 1 {
		t.Fatalf("repair should not disturb the mission:\n%s", out)
	}
}

func TestStuckScenarioFaults(t *testing.T) {
	out := simulate(t, options{Scenario: "stuck"})
	if strings.Count(out, "stability alert") != 1 {
		t.Fatalf("want one stability alert:\n%s", out)
	}
	if !strings.Contains(out, "Simulation complete: state=FAULTED") {
		t.Fatalf("engine not faulted at end:\n%s", out)
	}
}

func TestOrbitScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iss.tle")
	tle := "ISS (ZARYA)\n" +
		"1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9993\n" +
		"2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257767\n"
	if err := os.WriteFile(path, []byte(tle), 0o644); err != nil {
		t.Fatal(err)
	}
	out := simulate(t, options{Scenario: "orbit", TLEPath: path})
	if strings.Count(out, "authentication succeeded") != 1 {
		t.Fatalf("orbit pass did not authenticate once:\n%s", out)
	}
}

func TestUnknownScenario(t *testing.T) {
	if err := run(context.Background(), &bytes.Buffer{}, options{Scenario: "nope", Tick: time.Second}); err == nil {
		t.Fatalf("run accepted unknown scenario")
	}
}
