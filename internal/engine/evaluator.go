package engine

// ConstraintKind names one hard or soft constraint.
type ConstraintKind string

// Hard constraints make a candidate inadmissible.
const (
	ConstraintRoomDoubleBooked       ConstraintKind = "ROOM_DOUBLE_BOOKED"
	ConstraintInstructorDoubleBooked ConstraintKind = "INSTRUCTOR_DOUBLE_BOOKED"
	ConstraintRoomCapacity           ConstraintKind = "ROOM_CAPACITY"
	ConstraintRoomType               ConstraintKind = "ROOM_TYPE_MISMATCH"
	ConstraintBreakSlot              ConstraintKind = "BREAK_SLOT"
	ConstraintMidtermSlot            ConstraintKind = "MIDTERM_SLOT"
	ConstraintInstructorUnavailable  ConstraintKind = "INSTRUCTOR_UNAVAILABLE"
	ConstraintInstructorUnqualified  ConstraintKind = "INSTRUCTOR_UNQUALIFIED"
	ConstraintInstructorOverload     ConstraintKind = "INSTRUCTOR_OVERLOAD"
)

// Soft constraints only contribute to the penalty.
const (
	ConstraintLoadImbalance ConstraintKind = "LOAD_IMBALANCE"
	ConstraintSessionGap    ConstraintKind = "SESSION_GAP"
	ConstraintCrossLevel    ConstraintKind = "CROSS_LEVEL_ROOM"
	ConstraintElectiveClash ConstraintKind = "ELECTIVE_CLASH"
)

// pairwise reports whether k depends on other placements rather than on the candidate alone.
func (k ConstraintKind) pairwise() bool {
	switch k {
	case ConstraintRoomDoubleBooked, ConstraintInstructorDoubleBooked, ConstraintInstructorOverload:
		return true
	}
	return false
}

// gapUnitMinutes is the granularity of the session gap penalty.
const gapUnitMinutes = 30

// Candidate is one (timeslot, room, instructor) triple, as indexes into the Problem.
type Candidate struct {
	Slot       int
	Room       int
	Instructor int
}

// Evaluation is the outcome of checking one candidate against a partial assignment.
type Evaluation struct {
	Hard    []ConstraintKind
	Soft    []ConstraintKind
	Penalty int
}

// Admissible reports whether no hard constraint is violated.
func (e Evaluation) Admissible() bool { return len(e.Hard) == 0 }

// Partial is a mutable partial assignment indexed by room-day, instructor-day and level-day
// buckets, so checking a candidate only touches sections that share one of its buckets.
type Partial struct {
	p        *Problem
	placed   []Candidate
	has      []bool
	roomDay  [][]int
	instrDay [][]int
	levelDay [][]int
	load     []int
	count    int
}

// NewPartial returns an empty partial assignment for p.
func NewPartial(p *Problem) *Partial {
	return &Partial{
		p:        p,
		placed:   make([]Candidate, len(p.sections)),
		has:      make([]bool, len(p.sections)),
		roomDay:  make([][]int, len(p.rooms)*daysPerWeek),
		instrDay: make([][]int, len(p.instructors)*daysPerWeek),
		levelDay: make([][]int, len(p.levels)*daysPerWeek),
		load:     make([]int, len(p.instructors)),
	}
}

// Len returns the number of placed sections.
func (s *Partial) Len() int { return s.count }

// Assigned returns the candidate placed for section, if any.
func (s *Partial) Assigned(section int) (Candidate, bool) {
	return s.placed[section], s.has[section]
}

// Place records c for section. The section must not already be placed.
func (s *Partial) Place(section int, c Candidate) {
	if s.has[section] {
		s.Remove(section)
	}
	day := s.p.slots[c.Slot].DayOfWeek
	s.placed[section] = c
	s.has[section] = true
	s.roomDay[c.Room*daysPerWeek+day] = append(s.roomDay[c.Room*daysPerWeek+day], section)
	s.instrDay[c.Instructor*daysPerWeek+day] = append(s.instrDay[c.Instructor*daysPerWeek+day], section)
	level := s.p.sections[section].level
	s.levelDay[level*daysPerWeek+day] = append(s.levelDay[level*daysPerWeek+day], section)
	s.load[c.Instructor]++
	s.count++
}

// Remove undoes the placement of section.
func (s *Partial) Remove(section int) {
	if !s.has[section] {
		return
	}
	c := s.placed[section]
	day := s.p.slots[c.Slot].DayOfWeek
	level := s.p.sections[section].level
	s.roomDay[c.Room*daysPerWeek+day] = without(s.roomDay[c.Room*daysPerWeek+day], section)
	s.instrDay[c.Instructor*daysPerWeek+day] = without(s.instrDay[c.Instructor*daysPerWeek+day], section)
	s.levelDay[level*daysPerWeek+day] = without(s.levelDay[level*daysPerWeek+day], section)
	s.load[c.Instructor]--
	s.has[section] = false
	s.placed[section] = Candidate{}
	s.count--
}

func without(list []int, v int) []int {
	for i, item := range list {
		if item == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// roomFree reports whether room has no placed section overlapping slot.
func (s *Partial) roomFree(room, slot int) bool {
	target := s.p.slots[slot]
	for _, other := range s.roomDay[room*daysPerWeek+target.DayOfWeek] {
		if s.p.slots[s.placed[other].Slot].Overlaps(target) {
			return false
		}
	}
	return true
}

// instructorFree reports whether instructor has spare load and no overlapping session at slot.
func (s *Partial) instructorFree(instructor, slot int) bool {
	if s.p.unavailable[instructor][slot] {
		return false
	}
	if max := s.p.instructors[instructor].MaxWeeklyLoad; max > 0 && s.load[instructor] >= max {
		return false
	}
	target := s.p.slots[slot]
	for _, other := range s.instrDay[instructor*daysPerWeek+target.DayOfWeek] {
		if s.p.slots[s.placed[other].Slot].Overlaps(target) {
			return false
		}
	}
	return true
}

// unaryKinds returns the hard constraints violated by c regardless of other placements.
func (p *Problem) unaryKinds(section int, c Candidate) []ConstraintKind {
	info := &p.sections[section]
	kinds := append([]ConstraintKind(nil), p.slotBlocked[c.Slot]...)
	kinds = append(kinds, p.roomKinds(info, c.Room)...)
	if !p.qualified(c.Instructor, info.CourseID) {
		kinds = append(kinds, ConstraintInstructorUnqualified)
	}
	if p.unavailable[c.Instructor][c.Slot] {
		kinds = append(kinds, ConstraintInstructorUnavailable)
	}
	return kinds
}

// Evaluate checks candidate c for section against the sections already in s. The section
// itself must not be placed in s.
func Evaluate(s *Partial, section int, c Candidate) Evaluation {
	p := s.p
	info := &p.sections[section]
	target := p.slots[c.Slot]
	weights := p.rules.Weights

	eval := Evaluation{Hard: p.unaryKinds(section, c)}

	crossLevel := 0
	roomClash := false
	for _, other := range s.roomDay[c.Room*daysPerWeek+target.DayOfWeek] {
		if p.slots[s.placed[other].Slot].Overlaps(target) {
			roomClash = true
		}
		if p.sections[other].level != info.level {
			crossLevel++
		}
	}
	if roomClash {
		eval.Hard = append(eval.Hard, ConstraintRoomDoubleBooked)
	}

	instructorClash := false
	minGap := -1
	for _, other := range s.instrDay[c.Instructor*daysPerWeek+target.DayOfWeek] {
		slot := p.slots[s.placed[other].Slot]
		if slot.Overlaps(target) {
			instructorClash = true
			continue
		}
		gap := slot.StartMinute - target.EndMinute
		if target.StartMinute >= slot.EndMinute {
			gap = target.StartMinute - slot.EndMinute
		}
		if minGap < 0 || gap < minGap {
			minGap = gap
		}
	}
	if instructorClash {
		eval.Hard = append(eval.Hard, ConstraintInstructorDoubleBooked)
	}
	if max := p.instructors[c.Instructor].MaxWeeklyLoad; max > 0 && s.load[c.Instructor]+1 > max {
		eval.Hard = append(eval.Hard, ConstraintInstructorOverload)
	}

	electiveClash := 0
	for _, other := range s.levelDay[info.level*daysPerWeek+target.DayOfWeek] {
		if p.sections[other].elective != info.elective && p.slots[s.placed[other].Slot].Overlaps(target) {
			electiveClash++
		}
	}

	if weights.LoadImbalance > 0 {
		lightest := s.load[c.Instructor]
		for _, instructor := range info.instructors {
			if s.load[instructor] < lightest {
				lightest = s.load[instructor]
			}
		}
		if excess := s.load[c.Instructor] - lightest; excess > 0 {
			eval.Soft = append(eval.Soft, ConstraintLoadImbalance)
			eval.Penalty += weights.LoadImbalance * excess
		}
	}
	if weights.SessionGap > 0 && minGap >= gapUnitMinutes {
		eval.Soft = append(eval.Soft, ConstraintSessionGap)
		eval.Penalty += weights.SessionGap * (minGap / gapUnitMinutes)
	}
	if weights.CrossLevel > 0 && crossLevel > 0 {
		eval.Soft = append(eval.Soft, ConstraintCrossLevel)
		eval.Penalty += weights.CrossLevel * crossLevel
	}
	if weights.ElectiveClash > 0 && electiveClash > 0 {
		eval.Soft = append(eval.Soft, ConstraintElectiveClash)
		eval.Penalty += weights.ElectiveClash * electiveClash
	}
	return eval
}

// candidateLess orders candidates by penalty, then room rank, then timeslot rank, then
// instructor rank. Ranks are canonical indexes, so the order is total and deterministic.
func candidateLess(a, b Candidate, penaltyA, penaltyB int) bool {
	if penaltyA != penaltyB {
		return penaltyA < penaltyB
	}
	if a.Room != b.Room {
		return a.Room < b.Room
	}
	if a.Slot != b.Slot {
		return a.Slot < b.Slot
	}
	return a.Instructor < b.Instructor
}
