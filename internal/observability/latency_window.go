package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Stage is one step of handling an inbound message.
type Stage int

const (
	StageLockWait Stage = iota
	StageSessionLoad
	StageTranslateIn
	StageAdvisor
	StageSessionSave
	StageCompose
	StageSend
	numStages
)

var stageNames = [numStages]string{
	StageLockWait:    "lock_wait",
	StageSessionLoad: "session_load",
	StageTranslateIn: "translate_in",
	StageAdvisor:     "advisor",
	StageSessionSave: "session_save",
	StageCompose:     "compose",
	StageSend:        "send",
}

// p95 budgets in milliseconds, zero when untracked
var stageBudgetMS = [numStages]float64{
	StageLockWait:    250,
	StageSessionLoad: 50,
	StageTranslateIn: 1500,
	StageAdvisor:     8000,
	StageSessionSave: 50,
	StageCompose:     1500,
	StageSend:        1200,
}

func (s Stage) String() string {
	if s < 0 || s >= numStages {
		return "unknown"
	}
	return stageNames[s]
}

// MessageTrace collects the timings of one handled message. The zero value
// is ready to use and a nil trace ignores marks.
type MessageTrace struct {
	From    string
	To      string
	Outcome string
	Total   time.Duration

	stages [numStages]time.Duration
	seen   uint16
}

// Mark adds d to stage. A stage may be marked more than once per message.
func (t *MessageTrace) Mark(stage Stage, d time.Duration) {
	if t == nil || stage < 0 || stage >= numStages || d < 0 {
		return
	}
	t.stages[stage] += d
	t.seen |= 1 << stage
}

// Stage returns the time spent in stage and whether it ran at all.
func (t *MessageTrace) Stage(stage Stage) (time.Duration, bool) {
	if t == nil || stage < 0 || stage >= numStages {
		return 0, false
	}
	return t.stages[stage], t.seen&(1<<stage) != 0
}

// transitionKey labels a trace by the state change it caused. Messages
// dropped before a session was read have no states.
func (t *MessageTrace) transitionKey() string {
	if t.From == "" && t.To == "" {
		return "-"
	}
	return t.From + "->" + t.To
}

type StageLatency struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	BudgetP95MS float64 `json:"budget_p95_ms,omitempty"`
	OverBudget  bool    `json:"over_budget,omitempty"`
}

// TransitionLatency is end-to-end message latency grouped by state change.
type TransitionLatency struct {
	Transition string  `json:"transition"`
	Messages   int     `json:"messages"`
	P50MS      float64 `json:"p50_ms"`
	P95MS      float64 `json:"p95_ms"`
	MaxMS      float64 `json:"max_ms"`
}

type OutcomeCount struct {
	Outcome string `json:"outcome"`
	Count   int    `json:"count"`
}

// LatencySnapshot summarizes the most recent messages.
type LatencySnapshot struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Capacity    int                 `json:"capacity"`
	Messages    int                 `json:"messages"`
	Stages      []StageLatency      `json:"stages"`
	Transitions []TransitionLatency `json:"transitions"`
	Outcomes    []OutcomeCount      `json:"outcomes"`
}

// otherOutcome buckets outcomes nobody declared.
const otherOutcome = "other"

// latencyWindow is a ring of the last N message traces. Aggregation happens
// at snapshot time so stages, transitions and outcomes always describe the
// same set of messages.
type latencyWindow struct {
	mu       sync.Mutex
	traces   []MessageTrace
	next     int
	full     bool
	outcomes map[string]struct{}
}

func newLatencyWindow(capacity int) *latencyWindow {
	if capacity <= 0 {
		capacity = 512
	}
	return &latencyWindow{
		traces:   make([]MessageTrace, capacity),
		outcomes: make(map[string]struct{}),
	}
}

func (w *latencyWindow) declareOutcomes(names []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			w.outcomes[n] = struct{}{}
		}
	}
}

// normalizeOutcome maps an undeclared outcome to "other" once any outcome
// set has been declared.
func (w *latencyWindow) normalizeOutcome(name string) string {
	if len(w.outcomes) == 0 {
		return name
	}
	if _, ok := w.outcomes[name]; ok {
		return name
	}
	return otherOutcome
}

func (w *latencyWindow) add(t MessageTrace) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t.Outcome = w.normalizeOutcome(t.Outcome)
	w.traces[w.next] = t
	w.next = (w.next + 1) % len(w.traces)
	if w.next == 0 {
		w.full = true
	}
}

func (w *latencyWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.traces)
	w.next, w.full = 0, false
}

func (w *latencyWindow) snapshot() LatencySnapshot {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.traces)
	}
	traces := make([]MessageTrace, n)
	copy(traces, w.traces[:n])
	declared := make([]string, 0, len(w.outcomes))
	for name := range w.outcomes {
		declared = append(declared, name)
	}
	capacity := len(w.traces)
	w.mu.Unlock()

	snap := LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		Capacity:    capacity,
		Messages:    n,
		Stages:      []StageLatency{},
		Transitions: []TransitionLatency{},
		Outcomes:    []OutcomeCount{},
	}

	var perStage [numStages][]float64
	perTransition := make(map[string][]float64)
	counts := make(map[string]int, len(declared))
	for _, name := range declared {
		counts[name] = 0
	}
	for i := range traces {
		tr := &traces[i]
		for s := Stage(0); s < numStages; s++ {
			if d, ok := tr.Stage(s); ok {
				perStage[s] = append(perStage[s], millis(d))
			}
		}
		key := tr.transitionKey()
		perTransition[key] = append(perTransition[key], millis(tr.Total))
		counts[tr.Outcome]++
	}

	for s := Stage(0); s < numStages; s++ {
		values := perStage[s]
		if len(values) == 0 {
			continue
		}
		sort.Float64s(values)
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		p95 := nearestRank(values, 0.95)
		snap.Stages = append(snap.Stages, StageLatency{
			Stage:       s.String(),
			Samples:     len(values),
			AvgMS:       roundMS(sum / float64(len(values))),
			P50MS:       nearestRank(values, 0.50),
			P95MS:       p95,
			P99MS:       nearestRank(values, 0.99),
			BudgetP95MS: stageBudgetMS[s],
			OverBudget:  stageBudgetMS[s] > 0 && p95 > stageBudgetMS[s],
		})
	}

	keys := make([]string, 0, len(perTransition))
	for k := range perTransition {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values := perTransition[k]
		sort.Float64s(values)
		snap.Transitions = append(snap.Transitions, TransitionLatency{
			Transition: k,
			Messages:   len(values),
			P50MS:      nearestRank(values, 0.50),
			P95MS:      nearestRank(values, 0.95),
			MaxMS:      roundMS(values[len(values)-1]),
		})
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snap.Outcomes = append(snap.Outcomes, OutcomeCount{Outcome: name, Count: counts[name]})
	}
	return snap
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// nearestRank reads the q-quantile of an ascending slice.
func nearestRank(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q*float64(len(sorted))+0.5) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return roundMS(sorted[idx])
}

func roundMS(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
