package trace

import (
	"testing"
	"time"
)

func TestStatusValidity(t *testing.T) {
	for _, s := range []Status{StatusRunning, StatusCompleted, StatusFailed} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("success").Valid() {
		t.Error("unknown status accepted")
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusRunning.Terminal() {
		t.Error("running is not terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Error("completed and failed are terminal")
	}
}

func TestStepTypeValidity(t *testing.T) {
	for _, st := range []StepType{StepTransform, StepRetrieval, StepFilter, StepRank, StepLLM, StepCustom} {
		if !st.Valid() {
			t.Errorf("%s should be valid", st)
		}
	}
	if StepType("embedding").Valid() {
		t.Error("unknown step type accepted")
	}
}

func TestStepDurationMS(t *testing.T) {
	start := time.Now()
	end := start.Add(1500 * time.Millisecond)

	step := Step{StartedAt: start}
	if d := step.DurationMS(); d != 0 {
		t.Errorf("open step has duration %d", d)
	}

	step.EndedAt = &end
	if d := step.DurationMS(); d != 1500 {
		t.Errorf("DurationMS = %d, want 1500", d)
	}
}
