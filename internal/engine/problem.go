package engine

import (
	"fmt"
	"sort"

	"github.com/noah-isme/course-scheduler/internal/models"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
)

const daysPerWeek = 7

// ReferenceViolation is attached to DataUnavailable errors raised for unresolved references.
type ReferenceViolation struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
	Field  string `json:"field"`
	Ref    string `json:"ref"`
}

type sectionInfo struct {
	models.Section
	level       int
	course      int
	elective    bool
	estimate    int
	slots       []int
	rooms       []int
	instructors []int
}

// Problem is an indexed, immutable view over one planning snapshot. Every slice is in
// canonical order (by identifier, timeslots by day/start/end/id) so index order doubles as
// the deterministic rank used for tie-breaking.
type Problem struct {
	rules       *RuleSet
	sections    []sectionInfo
	slots       []models.TimeSlot
	rooms       []models.Room
	instructors []models.Instructor
	levels      []models.Level
	courses     []models.Course

	sectionIndex    map[string]int
	slotIndex       map[string]int
	roomIndex       map[string]int
	instructorIndex map[string]int
	levelIndex      map[string]int
	courseIndex     map[string]int

	slotsByDay  [daysPerWeek][]int
	slotBlocked [][]ConstraintKind
	unavailable [][]bool
}

// NewProblem validates the snapshot and builds the derived lookups used by the evaluator.
func NewProblem(in *models.PlanningInputs, rules *RuleSet) (*Problem, error) {
	if in == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "planning inputs are required")
	}
	if rules == nil {
		rules = &RuleSet{MidtermExclusive: true, Weights: DefaultWeights()}
	}
	p := &Problem{
		rules:       rules,
		slots:       append([]models.TimeSlot(nil), in.TimeSlots...),
		rooms:       append([]models.Room(nil), in.Rooms...),
		instructors: append([]models.Instructor(nil), in.Instructors...),
		levels:      append([]models.Level(nil), in.Levels...),
		courses:     append([]models.Course(nil), in.Courses...),
	}

	sort.Slice(p.slots, func(i, j int) bool {
		a, b := p.slots[i], p.slots[j]
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		if a.StartMinute != b.StartMinute {
			return a.StartMinute < b.StartMinute
		}
		if a.EndMinute != b.EndMinute {
			return a.EndMinute < b.EndMinute
		}
		return a.ID < b.ID
	})
	sort.Slice(p.rooms, func(i, j int) bool { return p.rooms[i].ID < p.rooms[j].ID })
	sort.Slice(p.instructors, func(i, j int) bool { return p.instructors[i].ID < p.instructors[j].ID })
	sort.Slice(p.levels, func(i, j int) bool { return p.levels[i].ID < p.levels[j].ID })
	sort.Slice(p.courses, func(i, j int) bool { return p.courses[i].ID < p.courses[j].ID })

	var err error
	if p.slotIndex, err = indexEntities("timeslot", len(p.slots), func(i int) (string, error) { return p.slots[i].ID, p.slots[i].Validate() }); err != nil {
		return nil, err
	}
	if p.roomIndex, err = indexEntities("room", len(p.rooms), func(i int) (string, error) { return p.rooms[i].ID, p.rooms[i].Validate() }); err != nil {
		return nil, err
	}
	if p.instructorIndex, err = indexEntities("instructor", len(p.instructors), func(i int) (string, error) {
		return p.instructors[i].ID, p.instructors[i].Validate()
	}); err != nil {
		return nil, err
	}
	if p.levelIndex, err = indexEntities("level", len(p.levels), func(i int) (string, error) { return p.levels[i].ID, p.levels[i].Validate() }); err != nil {
		return nil, err
	}
	if p.courseIndex, err = indexEntities("course", len(p.courses), func(i int) (string, error) { return p.courses[i].ID, p.courses[i].Validate() }); err != nil {
		return nil, err
	}

	for _, course := range p.courses {
		if _, ok := p.levelIndex[course.LevelID]; !ok {
			return nil, dataUnavailable("course", course.ID, "level_id", course.LevelID)
		}
	}

	sections := append([]models.Section(nil), in.Sections...)
	sort.Slice(sections, func(i, j int) bool { return sections[i].ID < sections[j].ID })
	if p.sectionIndex, err = indexEntities("section", len(sections), func(i int) (string, error) { return sections[i].ID, sections[i].Validate() }); err != nil {
		return nil, err
	}

	for idx, slot := range p.slots {
		p.slotsByDay[slot.DayOfWeek] = append(p.slotsByDay[slot.DayOfWeek], idx)
	}
	p.slotBlocked = make([][]ConstraintKind, len(p.slots))
	for idx, slot := range p.slots {
		if slot.IsBreak || rules.blocksBreak(slot) {
			p.slotBlocked[idx] = append(p.slotBlocked[idx], ConstraintBreakSlot)
		}
		if slot.IsMidterm && rules.MidtermExclusive {
			p.slotBlocked[idx] = append(p.slotBlocked[idx], ConstraintMidtermSlot)
		}
	}

	p.unavailable = make([][]bool, len(p.instructors))
	for idx, instructor := range p.instructors {
		blocked := make([]bool, len(p.slots))
		for _, slotID := range instructor.Unavailable {
			ref, ok := p.slotIndex[slotID]
			if !ok {
				return nil, dataUnavailable("instructor", instructor.ID, "unavailable", slotID)
			}
			for other := range p.slots {
				if p.slots[other].Overlaps(p.slots[ref]) {
					blocked[other] = true
				}
			}
		}
		p.unavailable[idx] = blocked
	}

	if err := p.buildSections(sections); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Problem) buildSections(sections []models.Section) error {
	perCourse := make(map[[2]int]int)
	p.sections = make([]sectionInfo, len(sections))
	for idx, section := range sections {
		level, ok := p.levelIndex[section.LevelID]
		if !ok {
			return dataUnavailable("section", section.ID, "level_id", section.LevelID)
		}
		course, ok := p.courseIndex[section.CourseID]
		if !ok {
			return dataUnavailable("section", section.ID, "course_id", section.CourseID)
		}
		p.sections[idx] = sectionInfo{
			Section:  section,
			level:    level,
			course:   course,
			elective: p.courses[course].Elective,
		}
		perCourse[[2]int{level, course}]++
	}

	for idx := range p.sections {
		info := &p.sections[idx]
		info.estimate = info.Capacity
		if target := p.levels[info.level].TargetStudents; target > 0 {
			share := ceilDiv(target, perCourse[[2]int{info.level, info.course}])
			if share < info.estimate {
				info.estimate = share
			}
		}
		for slot := range p.slots {
			if len(p.slotBlocked[slot]) == 0 {
				info.slots = append(info.slots, slot)
			}
		}
		for room := range p.rooms {
			if len(p.roomKinds(info, room)) == 0 {
				info.rooms = append(info.rooms, room)
			}
		}
		for instructor := range p.instructors {
			if p.qualified(instructor, info.CourseID) {
				info.instructors = append(info.instructors, instructor)
			}
		}
	}
	return nil
}

func (p *Problem) roomKinds(info *sectionInfo, room int) []ConstraintKind {
	var kinds []ConstraintKind
	r := p.rooms[room]
	if r.Capacity*(100+p.rules.OverflowPercent) < info.estimate*100 {
		kinds = append(kinds, ConstraintRoomCapacity)
	}
	if info.RoomType != "" && r.Type != info.RoomType {
		kinds = append(kinds, ConstraintRoomType)
	}
	return kinds
}

func (p *Problem) qualified(instructor int, courseID string) bool {
	courses := p.instructors[instructor].CourseIDs
	if len(courses) == 0 {
		return true
	}
	for _, id := range courses {
		if id == courseID {
			return true
		}
	}
	return false
}

// SectionCount returns the number of in-scope sections.
func (p *Problem) SectionCount() int { return len(p.sections) }

// Rules exposes the compiled rule set the problem was built with.
func (p *Problem) Rules() *RuleSet { return p.rules }

// SectionIDs returns section identifiers in canonical order.
func (p *Problem) SectionIDs() []string {
	ids := make([]string, len(p.sections))
	for i, info := range p.sections {
		ids[i] = info.ID
	}
	return ids
}

// EnrollmentEstimate returns the expected head count used for room capacity checks.
func (p *Problem) EnrollmentEstimate(sectionID string) (int, bool) {
	idx, ok := p.sectionIndex[sectionID]
	if !ok {
		return 0, false
	}
	return p.sections[idx].estimate, true
}

func indexEntities(entity string, n int, at func(i int) (string, error)) (map[string]int, error) {
	index := make(map[string]int, n)
	for i := 0; i < n; i++ {
		id, err := at(i)
		if err != nil {
			return nil, err
		}
		if _, dup := index[id]; dup {
			return nil, appErrors.WithDetails(
				appErrors.Clone(appErrors.ErrInvalidEntity, fmt.Sprintf("%s %q: id is duplicated", entity, id)),
				models.EntityViolation{Entity: entity, ID: id, Field: "id"},
			)
		}
		index[id] = i
	}
	return index, nil
}

func dataUnavailable(entity, id, field, ref string) error {
	return appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrDataUnavailable, fmt.Sprintf("%s %q references unknown %s %q", entity, id, field, ref)),
		ReferenceViolation{Entity: entity, ID: id, Field: field, Ref: ref},
	)
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
