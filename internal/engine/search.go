package engine

import (
	"context"
	"math/rand"
	"sort"

	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
)

// InfeasiblePolicy decides what happens once a section is out of candidates.
type InfeasiblePolicy string

const (
	// PolicyContinue leaves the section unassigned and keeps placing the rest greedily.
	PolicyContinue InfeasiblePolicy = "continue"
	// PolicyHalt stops at the first failed section and reports the partial assignment.
	PolicyHalt InfeasiblePolicy = "halt"
)

const (
	defaultCheckInterval  = 64
	defaultCandidateLimit = 256
)

// Options tunes one search run.
type Options struct {
	Seed            int64
	BacktrackBudget int
	CheckInterval   int
	CandidateLimit  int
	Policy          InfeasiblePolicy
}

func (o Options) normalized() Options {
	if o.BacktrackBudget < 0 {
		o.BacktrackBudget = 0
	}
	if o.CheckInterval <= 0 {
		o.CheckInterval = defaultCheckInterval
	}
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = defaultCandidateLimit
	}
	if o.Policy != PolicyHalt {
		o.Policy = PolicyContinue
	}
	return o
}

// SectionState is the lifecycle of one section during a run.
type SectionState string

const (
	StateUnassigned SectionState = "UNASSIGNED"
	StateTentative  SectionState = "TENTATIVE"
	StateCommitted  SectionState = "COMMITTED"
	StateFailed     SectionState = "FAILED"
)

type scored struct {
	cand Candidate
	eval Evaluation
}

// decision is one entry of the explicit backtracking stack.
type decision struct {
	section int
	options []scored
	next    int
}

type deadEnd struct {
	section int
	placed  map[int]scored
}

type search struct {
	p        *Problem
	opts     Options
	partial  *Partial
	states   []SectionState
	evals    []Evaluation
	causes   map[int]UnassignedCause
	priority []int
	stack    []decision
	best     *deadEnd
	stats    Stats
}

// Solve runs the backtracking search over p. It performs no I/O and returns the same
// result for the same problem and seed. The context is checked every CheckInterval
// iterations; a cancelled run returns ErrCancelled and no result.
func Solve(ctx context.Context, p *Problem, opts Options) (*Result, error) {
	if p == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "problem is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	opts = opts.normalized()
	n := len(p.sections)

	s := &search{
		p:        p,
		opts:     opts,
		partial:  NewPartial(p),
		states:   make([]SectionState, n),
		evals:    make([]Evaluation, n),
		causes:   make(map[int]UnassignedCause),
		priority: make([]int, n),
	}
	for i := range s.states {
		s.states[i] = StateUnassigned
	}
	for rank, section := range rand.New(rand.NewSource(opts.Seed)).Perm(n) {
		s.priority[section] = rank
	}

	if err := s.run(ctx); err != nil {
		return nil, err
	}
	return s.result(), nil
}

func (s *search) run(ctx context.Context) error {
	for {
		if s.stats.Iterations%s.opts.CheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return appErrors.Wrap(err, appErrors.ErrCancelled.Code, appErrors.ErrCancelled.Status, appErrors.ErrCancelled.Message)
			}
		}
		s.stats.Iterations++

		section, count := s.selectSection()
		if section < 0 {
			break
		}
		if count > 0 {
			s.push(section)
			continue
		}

		s.stats.DeadEnds++
		s.remember(section)
		if s.stats.Backtracks < s.opts.BacktrackBudget && s.backtrack() {
			continue
		}
		if s.hasAlternatives() {
			s.stats.BudgetExhausted = true
		}
		failed := s.restore()
		s.states[failed] = StateFailed
		if s.stats.BudgetExhausted {
			s.causes[failed] = CauseBudgetExhausted
		} else {
			s.causes[failed] = CauseNoCandidates
		}
		if s.opts.Policy == PolicyHalt {
			for idx, state := range s.states {
				if state == StateUnassigned {
					s.causes[idx] = CauseSearchHalted
				}
			}
			break
		}
	}

	for idx, state := range s.states {
		if state == StateTentative {
			s.states[idx] = StateCommitted
		}
	}
	return nil
}

// selectSection picks the unassigned section with the fewest admissible triples. Ties go to
// the lower seeded priority. It returns -1 when nothing is left to place.
func (s *search) selectSection() (int, int) {
	best, bestCount := -1, 0
	for idx, state := range s.states {
		if state != StateUnassigned {
			continue
		}
		count := s.admissibleCount(idx)
		if best < 0 || count < bestCount || (count == bestCount && s.priority[idx] < s.priority[best]) {
			best, bestCount = idx, count
		}
		if bestCount == 0 && s.priority[best] == 0 {
			break
		}
	}
	return best, bestCount
}

// admissibleCount counts admissible triples for section. Hard constraints split into slot,
// room and instructor parts, so the count is a sum of per-slot products.
func (s *search) admissibleCount(section int) int {
	info := &s.p.sections[section]
	total := 0
	for _, slot := range info.slots {
		rooms := 0
		for _, room := range info.rooms {
			if s.partial.roomFree(room, slot) {
				rooms++
			}
		}
		if rooms == 0 {
			continue
		}
		instructors := 0
		for _, instructor := range info.instructors {
			if s.partial.instructorFree(instructor, slot) {
				instructors++
			}
		}
		total += rooms * instructors
	}
	return total
}

// candidates lists admissible triples for section in ascending tie-break order, capped at
// CandidateLimit.
func (s *search) candidates(section int) []scored {
	info := &s.p.sections[section]
	var out []scored
	for _, slot := range info.slots {
		for _, room := range info.rooms {
			if !s.partial.roomFree(room, slot) {
				continue
			}
			for _, instructor := range info.instructors {
				if !s.partial.instructorFree(instructor, slot) {
					continue
				}
				c := Candidate{Slot: slot, Room: room, Instructor: instructor}
				eval := Evaluate(s.partial, section, c)
				if eval.Admissible() {
					out = append(out, scored{cand: c, eval: eval})
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return candidateLess(out[i].cand, out[j].cand, out[i].eval.Penalty, out[j].eval.Penalty)
	})
	if len(out) > s.opts.CandidateLimit {
		out = out[:s.opts.CandidateLimit]
	}
	return out
}

func (s *search) push(section int) {
	options := s.candidates(section)
	s.stack = append(s.stack, decision{section: section, options: options, next: 1})
	s.place(section, options[0])
}

func (s *search) place(section int, option scored) {
	s.partial.Place(section, option.cand)
	s.evals[section] = option.eval
	s.states[section] = StateTentative
	s.stats.Placements++
}

func (s *search) unplace(section int) {
	s.partial.Remove(section)
	s.evals[section] = Evaluation{}
	s.states[section] = StateUnassigned
}

func (s *search) hasAlternatives() bool {
	for _, d := range s.stack {
		if d.next < len(d.options) {
			return true
		}
	}
	return false
}

// backtrack unwinds to the most recent decision with an untried alternative and applies it.
func (s *search) backtrack() bool {
	if !s.hasAlternatives() {
		return false
	}
	s.stats.Backtracks++
	for len(s.stack) > 0 {
		top := &s.stack[len(s.stack)-1]
		s.unplace(top.section)
		if top.next < len(top.options) {
			option := top.options[top.next]
			top.next++
			s.place(top.section, option)
			return true
		}
		s.stack = s.stack[:len(s.stack)-1]
	}
	return false
}

// remember keeps the dead end with the most placed sections. The first one wins on ties.
func (s *search) remember(section int) {
	if s.best != nil && len(s.best.placed) >= s.partial.Len() {
		return
	}
	placed := make(map[int]scored, s.partial.Len())
	for idx := range s.states {
		if c, ok := s.partial.Assigned(idx); ok {
			placed[idx] = scored{cand: c, eval: s.evals[idx]}
		}
	}
	s.best = &deadEnd{section: section, placed: placed}
}

// restore rewinds to the remembered dead end, commits its placements and clears the stack.
// It returns the section that was stuck there.
func (s *search) restore() int {
	for idx, state := range s.states {
		if state == StateTentative {
			s.unplace(idx)
		}
	}
	idxs := make([]int, 0, len(s.best.placed))
	for idx := range s.best.placed {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	for _, idx := range idxs {
		if s.states[idx] == StateCommitted {
			continue
		}
		option := s.best.placed[idx]
		s.partial.Place(idx, option.cand)
		s.evals[idx] = option.eval
		s.states[idx] = StateCommitted
	}
	failed := s.best.section
	s.best = nil
	s.stack = s.stack[:0]
	return failed
}
