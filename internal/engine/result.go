package engine

import (
	"sort"

	"github.com/noah-isme/course-scheduler/internal/models"
)

// UnassignedCause explains why a section was left out of the result.
type UnassignedCause string

const (
	CauseNoCandidates    UnassignedCause = "NO_CANDIDATES"
	CauseBudgetExhausted UnassignedCause = "BACKTRACK_BUDGET_EXHAUSTED"
	CauseSearchHalted    UnassignedCause = "SEARCH_HALTED"
)

// Audit-only kinds.
const (
	ConstraintDuplicateAssignment ConstraintKind = "DUPLICATE_ASSIGNMENT"
	ConstraintUnknownReference    ConstraintKind = "UNKNOWN_REFERENCE"
)

// Assignment is the chosen (timeslot, room, instructor) for one section.
type Assignment struct {
	SectionID      string           `json:"sectionId"`
	TimeSlotID     string           `json:"timeslotId"`
	RoomID         string           `json:"roomId"`
	InstructorID   string           `json:"instructorId"`
	Penalty        int              `json:"penalty"`
	SoftViolations []ConstraintKind `json:"softViolations,omitempty"`
}

// ReasonCount is how many candidate triples a hard constraint ruled out.
type ReasonCount struct {
	Kind  ConstraintKind `json:"kind"`
	Count int            `json:"count"`
}

// UnassignedSection lists a section missing from a partial result with its diagnosis.
type UnassignedSection struct {
	SectionID string          `json:"sectionId"`
	State     SectionState    `json:"state"`
	Cause     UnassignedCause `json:"cause"`
	Reasons   []ReasonCount   `json:"reasons,omitempty"`
}

// Stats are the search counters of one run.
type Stats struct {
	Iterations      int  `json:"iterations"`
	Placements      int  `json:"placements"`
	Backtracks      int  `json:"backtracks"`
	DeadEnds        int  `json:"deadEnds"`
	BudgetExhausted bool `json:"budgetExhausted"`
}

// Result is the outcome of Solve. Assignments and Unassigned are sorted by section id.
type Result struct {
	Status       models.ScheduleStatus   `json:"status"`
	Seed         int64                   `json:"seed"`
	Assignments  []Assignment            `json:"assignments"`
	Unassigned   []UnassignedSection     `json:"unassignedSections"`
	States       map[string]SectionState `json:"states"`
	TotalPenalty int                     `json:"totalPenalty"`
	Stats        Stats                   `json:"stats"`
	Notices      []RuleNotice            `json:"notices,omitempty"`
}

// Complete reports whether every section was assigned.
func (r *Result) Complete() bool { return r.Status == models.ScheduleStatusComplete }

func (s *search) result() *Result {
	p := s.p
	res := &Result{
		Status:      models.ScheduleStatusComplete,
		Seed:        s.opts.Seed,
		Assignments: make([]Assignment, 0, s.partial.Len()),
		States:      make(map[string]SectionState, len(p.sections)),
		Stats:       s.stats,
		Notices:     p.rules.Notices,
	}
	for idx, info := range p.sections {
		res.States[info.ID] = s.states[idx]
		c, ok := s.partial.Assigned(idx)
		if !ok {
			res.Status = models.ScheduleStatusPartial
			cause, found := s.causes[idx]
			if !found {
				cause = CauseNoCandidates
			}
			res.Unassigned = append(res.Unassigned, UnassignedSection{
				SectionID: info.ID,
				State:     s.states[idx],
				Cause:     cause,
				Reasons:   diagnose(s.partial, idx),
			})
			continue
		}
		eval := s.evals[idx]
		res.Assignments = append(res.Assignments, Assignment{
			SectionID:      info.ID,
			TimeSlotID:     p.slots[c.Slot].ID,
			RoomID:         p.rooms[c.Room].ID,
			InstructorID:   p.instructors[c.Instructor].ID,
			Penalty:        eval.Penalty,
			SoftViolations: eval.Soft,
		})
		res.TotalPenalty += eval.Penalty
	}
	return res
}

// diagnose tallies the hard constraints blocking every triple for section against the final
// partial assignment. Ties rank kinds intrinsic to the section ahead of conflicts with other
// placements.
func diagnose(partial *Partial, section int) []ReasonCount {
	p := partial.p
	counts := make(map[ConstraintKind]int)
	for slot := range p.slots {
		for room := range p.rooms {
			for instructor := range p.instructors {
				for _, kind := range Evaluate(partial, section, Candidate{Slot: slot, Room: room, Instructor: instructor}).Hard {
					counts[kind]++
				}
			}
		}
	}
	reasons := make([]ReasonCount, 0, len(counts))
	for kind, count := range counts {
		reasons = append(reasons, ReasonCount{Kind: kind, Count: count})
	}
	sort.Slice(reasons, func(i, j int) bool {
		if reasons[i].Count != reasons[j].Count {
			return reasons[i].Count > reasons[j].Count
		}
		if pi, pj := reasons[i].Kind.pairwise(), reasons[j].Kind.pairwise(); pi != pj {
			return !pi
		}
		return reasons[i].Kind < reasons[j].Kind
	})
	return reasons
}

// AuditViolation is a hard constraint broken by a finished assignment set.
type AuditViolation struct {
	SectionID string           `json:"sectionId"`
	Kinds     []ConstraintKind `json:"kinds"`
}

// Audit re-checks every hard constraint of assignments against p. Pairwise conflicts are
// reported on the later assignment in section id order. An empty result means the set is valid.
func Audit(p *Problem, assignments []Assignment) []AuditViolation {
	sorted := append([]Assignment(nil), assignments...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SectionID < sorted[j].SectionID })

	partial := NewPartial(p)
	var out []AuditViolation
	for _, a := range sorted {
		section, okSection := p.sectionIndex[a.SectionID]
		slot, okSlot := p.slotIndex[a.TimeSlotID]
		room, okRoom := p.roomIndex[a.RoomID]
		instructor, okInstructor := p.instructorIndex[a.InstructorID]
		if !okSection || !okSlot || !okRoom || !okInstructor {
			out = append(out, AuditViolation{SectionID: a.SectionID, Kinds: []ConstraintKind{ConstraintUnknownReference}})
			continue
		}
		if _, placed := partial.Assigned(section); placed {
			out = append(out, AuditViolation{SectionID: a.SectionID, Kinds: []ConstraintKind{ConstraintDuplicateAssignment}})
			continue
		}
		c := Candidate{Slot: slot, Room: room, Instructor: instructor}
		if eval := Evaluate(partial, section, c); !eval.Admissible() {
			out = append(out, AuditViolation{SectionID: a.SectionID, Kinds: eval.Hard})
		}
		partial.Place(section, c)
	}
	return out
}
