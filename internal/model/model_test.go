package model

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusRunning, false},
	}
	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStageOrder(t *testing.T) {
	want := []string{"Static Analysis", "Unit Testing", "Build", "Deployment"}
	if len(StageOrder) != len(want) {
		t.Fatalf("len(StageOrder) = %d, want %d", len(StageOrder), len(want))
	}
	for i, name := range want {
		if StageOrder[i] != name {
			t.Errorf("StageOrder[%d] = %q, want %q", i, StageOrder[i], name)
		}
	}
}

func TestBuildCloneIsDeep(t *testing.T) {
	now := time.Now().UTC()
	b := &Build{
		ID:     NewID(),
		Status: StatusRunning,
		Stages: []Stage{{
			Name:       StageStaticAnalysis,
			Status:     StageCompleted,
			StartedAt:  now,
			FinishedAt: &now,
			Results:    &StageResult{Pass: true, Findings: json.RawMessage(`{"issues":[]}`)},
		}},
	}

	c := b.Clone()
	c.Stages[0].Status = StageFailed
	c.Stages[0].Results.Pass = false
	c.Stages[0].Results.Findings[0] = '['
	*c.Stages[0].FinishedAt = now.Add(time.Hour)
	c.Stages = append(c.Stages, Stage{Name: StageUnitTesting})

	if b.Stages[0].Status != StageCompleted {
		t.Errorf("original stage status mutated: %q", b.Stages[0].Status)
	}
	if !b.Stages[0].Results.Pass {
		t.Error("original stage results mutated")
	}
	if string(b.Stages[0].Results.Findings) != `{"issues":[]}` {
		t.Errorf("original findings mutated: %s", b.Stages[0].Results.Findings)
	}
	if !b.Stages[0].FinishedAt.Equal(now) {
		t.Error("original finished_at mutated")
	}
	if len(b.Stages) != 1 {
		t.Errorf("original stages len = %d, want 1", len(b.Stages))
	}
}

func TestBuildJSONShape(t *testing.T) {
	b := &Build{ID: "01ABC", Status: StatusFailed, Stages: []Stage{}, Error: "boom"}
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"build_id", "status", "stages", "error"} {
		if _, ok := m[key]; !ok {
			t.Errorf("JSON missing key %q: %s", key, data)
		}
	}
}

func TestExecutionResultMessage(t *testing.T) {
	tests := []struct {
		name   string
		result ExecutionResult
		want   string
	}{
		{"success", Success("hi\n"), "hi\n"},
		{"compile", CompileError("main.cpp:1: error", 1), "Compilation Error: main.cpp:1: error"},
		{"runtime", RuntimeError("Traceback", 1), "Runtime Error: Traceback"},
		{"timeout", TimedOut(10), "Execution timed out after 10 seconds"},
		{"missing", ToolMissing("g++"), "Required program 'g++' not found"},
		{"unsupported", UnsupportedLanguage("cobol"), "not supported for language: cobol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.result.Message()
			if !strings.Contains(got, tt.want) {
				t.Errorf("Message() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestExecutionResultOK(t *testing.T) {
	if !Success("").OK() {
		t.Error("Success should be OK")
	}
	for _, r := range []ExecutionResult{CompileError("", 1), RuntimeError("", 1), TimedOut(1), ToolMissing("x"), UnsupportedLanguage("x")} {
		if r.OK() {
			t.Errorf("%s should not be OK", r.Kind)
		}
	}
}
