package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func trace(from, to, outcome string, total time.Duration, marks map[Stage]time.Duration) MessageTrace {
	t := MessageTrace{From: from, To: to, Outcome: outcome, Total: total}
	for s, d := range marks {
		t.Mark(s, d)
	}
	return t
}

func TestLatencyWindowGroupsByStageAndTransition(t *testing.T) {
	w := newLatencyWindow(8)
	w.declareOutcomes([]string{"answered", "language_prompt", "query_unavailable"})
	w.add(trace("NEW", "AWAITING_LANGUAGE", "language_prompt", 40*time.Millisecond, map[Stage]time.Duration{StageSend: 10 * time.Millisecond}))
	w.add(trace("REGISTERED", "REGISTERED", "answered", 900*time.Millisecond, map[Stage]time.Duration{StageAdvisor: 700 * time.Millisecond}))
	w.add(trace("REGISTERED", "REGISTERED", "answered", 1100*time.Millisecond, map[Stage]time.Duration{StageAdvisor: 900 * time.Millisecond}))
	w.add(trace("", "", "malformed", time.Millisecond, nil))

	snap := w.snapshot()
	if snap.Capacity != 8 || snap.Messages != 4 {
		t.Fatalf("Capacity=%d Messages=%d, want 8 and 4", snap.Capacity, snap.Messages)
	}

	if len(snap.Stages) != 2 || snap.Stages[0].Stage != "advisor" || snap.Stages[1].Stage != "send" {
		t.Fatalf("Stages = %+v, want advisor then send", snap.Stages)
	}
	advisor := snap.Stages[0]
	if advisor.Samples != 2 || advisor.P50MS != 700 || advisor.P95MS != 900 || advisor.AvgMS != 800 {
		t.Fatalf("advisor stats = %+v", advisor)
	}
	if advisor.BudgetP95MS != 8000 || advisor.OverBudget {
		t.Fatalf("advisor budget = %+v", advisor)
	}

	want := map[string]int{"-": 1, "NEW->AWAITING_LANGUAGE": 1, "REGISTERED->REGISTERED": 2}
	if len(snap.Transitions) != len(want) {
		t.Fatalf("Transitions = %+v", snap.Transitions)
	}
	for _, tr := range snap.Transitions {
		if want[tr.Transition] != tr.Messages {
			t.Fatalf("transition %q messages = %d, want %d", tr.Transition, tr.Messages, want[tr.Transition])
		}
		if tr.Transition == "REGISTERED->REGISTERED" && tr.MaxMS != 1100 {
			t.Fatalf("REGISTERED->REGISTERED MaxMS = %.2f, want 1100", tr.MaxMS)
		}
	}

	counts := map[string]int{}
	for _, o := range snap.Outcomes {
		counts[o.Outcome] = o.Count
	}
	if counts["answered"] != 2 || counts["language_prompt"] != 1 || counts["other"] != 1 {
		t.Fatalf("Outcomes = %+v", snap.Outcomes)
	}
	if c, ok := counts["query_unavailable"]; !ok || c != 0 {
		t.Fatalf("declared outcome query_unavailable missing or non-zero: %+v", snap.Outcomes)
	}
}

func TestLatencyWindowKeepsMostRecent(t *testing.T) {
	w := newLatencyWindow(2)
	for _, ms := range []int{10, 20, 30} {
		w.add(trace("REGISTERED", "REGISTERED", "answered", time.Duration(ms)*time.Millisecond,
			map[Stage]time.Duration{StageSend: time.Duration(ms) * time.Millisecond}))
	}
	snap := w.snapshot()
	if snap.Messages != 2 {
		t.Fatalf("Messages = %d, want 2", snap.Messages)
	}
	if got := snap.Stages[0].AvgMS; got != 25 {
		t.Fatalf("send AvgMS = %.2f, want 25", got)
	}

	w.reset()
	if got := w.snapshot(); got.Messages != 0 || len(got.Stages) != 0 {
		t.Fatalf("after reset snapshot = %+v", got)
	}
}

func TestMessageTraceMarks(t *testing.T) {
	var tr MessageTrace
	tr.Mark(StageTranslateIn, 5*time.Millisecond)
	tr.Mark(StageTranslateIn, 7*time.Millisecond)
	tr.Mark(StageCompose, -time.Millisecond)

	if d, ok := tr.Stage(StageTranslateIn); !ok || d != 12*time.Millisecond {
		t.Fatalf("Stage(translate_in) = %s, %v; want 12ms, true", d, ok)
	}
	if _, ok := tr.Stage(StageCompose); ok {
		t.Fatalf("negative duration should not mark a stage")
	}
	var nilTrace *MessageTrace
	nilTrace.Mark(StageSend, time.Millisecond)
	if StageAdvisor.String() != "advisor" || Stage(99).String() != "unknown" {
		t.Fatalf("unexpected stage names")
	}
}

func TestOverBudgetStage(t *testing.T) {
	w := newLatencyWindow(4)
	w.add(trace("REGISTERED", "REGISTERED", "answered", 2*time.Second, map[Stage]time.Duration{StageSessionLoad: 400 * time.Millisecond}))
	s := w.snapshot().Stages[0]
	if s.Stage != "session_load" || !s.OverBudget {
		t.Fatalf("session_load = %+v, want over budget", s)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveInbound("ws", "text")
	m.DeclareOutcomes("answered")
	m.ObserveMessage(MessageTrace{Outcome: "answered"})
	m.ResetLatency()
	if got := m.LatencySnapshot(); got.Messages != 0 || len(got.Stages) != 0 {
		t.Fatalf("LatencySnapshot() = %+v, want empty", got)
	}
}

func TestObserveMessageFeedsPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("agriloop_test", reg)
	m.ObserveMessage(MessageTrace{From: "NEW", To: "AWAITING_LANGUAGE", Outcome: "language_prompt"})
	m.ObserveMessage(MessageTrace{From: "NEW", To: "AWAITING_LANGUAGE", Outcome: "language_prompt"})
	m.ObserveMessage(MessageTrace{From: "REGISTERED", To: "REGISTERED", Outcome: "answered"})
	m.ObserveMessage(MessageTrace{})

	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("NEW", "AWAITING_LANGUAGE")); got != 2 {
		t.Fatalf("transitions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("REGISTERED", "REGISTERED")); got != 0 {
		t.Fatalf("self transitions = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.Outcomes.WithLabelValues("answered")); got != 1 {
		t.Fatalf("answered outcomes = %v, want 1", got)
	}
	if got := m.LatencySnapshot().Messages; got != 3 {
		t.Fatalf("window messages = %d, want 3", got)
	}
}
