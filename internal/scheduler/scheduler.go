// Package scheduler implements admission control for batch session spawns:
// priority plus arrival-order fairness over a ready set, bounded by a
// concurrency cap. It is independent of the lifecycle manager's polling loop
// (the core's task graph is degenerate — one task per session — so this
// scheduler only orders and admits, it never resolves dependencies).
package scheduler

import "sort"

// SkipReasonCode enumerates why a candidate was not admitted.
type SkipReasonCode string

const (
	SkipReasonConcurrency SkipReasonCode = "concurrency"
	SkipReasonActive      SkipReasonCode = "already-running"
)

// SkipReason explains why a candidate was excluded from the admitted batch.
type SkipReason struct {
	Reason SkipReasonCode
	Detail string
}

// Candidate is one session waiting for admission.
type Candidate struct {
	ID string
	// Priority orders candidates within a batch; higher values are admitted
	// first. Candidates with equal priority are admitted in the order they
	// appear in Request.Candidates (arrival-order fairness).
	Priority int
	// Slots is how many concurrency-cap units this candidate consumes once
	// admitted. Defaults to 1 when <= 0.
	Slots int
	// Exclusive candidates must run alone: no other candidate, and nothing
	// already running, may share a tick with them.
	Exclusive bool
}

// Running describes a candidate already admitted on a prior tick.
type Running struct {
	ID        string
	Slots     int
	Exclusive bool
}

// Request captures the ready set and the running state the scheduler must
// respect when producing a batch.
type Request struct {
	Candidates []Candidate
	// MaxParallel caps total slots in use, including Running. Values <= 0
	// disable the cap.
	MaxParallel int
	// BatchSize caps how many new candidates are admitted in one call.
	// Values <= 0 disable the limit.
	BatchSize int
	Running   []Running
}

// Batch is the scheduler's decision for one call to Admit.
type Batch struct {
	Admitted []string
	Skipped  map[string]SkipReason
}

func (b *Batch) addSkip(id string, reason SkipReason) {
	if id == "" {
		return
	}
	if b.Skipped == nil {
		b.Skipped = make(map[string]SkipReason)
	}
	b.Skipped[id] = reason
}

// Admit orders candidates by priority (ties broken by arrival order) and
// admits as many as fit under MaxParallel/BatchSize, honoring exclusivity.
func Admit(req Request) Batch {
	result := Batch{}

	runningSlots, runningExclusive := 0, false
	for _, r := range req.Running {
		runningSlots += slotsOrDefault(r.Slots)
		if r.Exclusive {
			runningExclusive = true
		}
	}
	if runningExclusive {
		for _, c := range req.Candidates {
			result.addSkip(c.ID, SkipReason{Reason: SkipReasonConcurrency, Detail: "an exclusive session is running"})
		}
		return result
	}
	if req.MaxParallel > 0 && runningSlots >= req.MaxParallel {
		for _, c := range req.Candidates {
			result.addSkip(c.ID, SkipReason{Reason: SkipReasonConcurrency, Detail: "max parallel reached"})
		}
		return result
	}

	ordered := stableSortByPriority(req.Candidates)
	runningSet := make(map[string]struct{}, len(req.Running))
	for _, r := range req.Running {
		runningSet[r.ID] = struct{}{}
	}

	slotsUsed := runningSlots
	admittedCount := 0
	for _, c := range ordered {
		if _, already := runningSet[c.ID]; already {
			result.addSkip(c.ID, SkipReason{Reason: SkipReasonActive, Detail: "session already running"})
			continue
		}
		if req.BatchSize > 0 && admittedCount >= req.BatchSize {
			result.addSkip(c.ID, SkipReason{Reason: SkipReasonConcurrency, Detail: "batch size reached"})
			continue
		}
		cost := slotsOrDefault(c.Slots)
		if c.Exclusive && (slotsUsed > 0 || admittedCount > 0) {
			result.addSkip(c.ID, SkipReason{Reason: SkipReasonConcurrency, Detail: "requires exclusive execution"})
			continue
		}
		if req.MaxParallel > 0 && slotsUsed+cost > req.MaxParallel {
			result.addSkip(c.ID, SkipReason{Reason: SkipReasonConcurrency, Detail: "max parallel reached"})
			continue
		}
		result.Admitted = append(result.Admitted, c.ID)
		slotsUsed += cost
		admittedCount++
		if c.Exclusive {
			break
		}
	}
	return result
}

func slotsOrDefault(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

func stableSortByPriority(candidates []Candidate) []Candidate {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	return ordered
}
