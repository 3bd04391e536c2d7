package csvio

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/course-scheduler/internal/models"
	"github.com/noah-isme/course-scheduler/internal/service"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
)

// Store serves planning snapshots from a Dataset and keeps generated sets in memory.
type Store struct {
	data *Dataset

	mu       sync.Mutex
	versions map[string]int
	last     *service.ScheduleSet
}

// NewStore wraps ds.
func NewStore(ds *Dataset) *Store {
	return &Store{data: ds, versions: make(map[string]int)}
}

// LoadPlanningInputs returns the slice of the dataset in scope. Rooms, timeslots and
// instructors are shared across levels.
func (s *Store) LoadPlanningInputs(ctx context.Context, levelFilter string, ruleSetVersion int) (*models.PlanningInputs, error) {
	scope := levelFilter
	if scope == "" {
		scope = models.ScheduleScopeAll
	}

	in := &models.PlanningInputs{
		Scope:          scope,
		Rooms:          append([]models.Room(nil), s.data.Rooms...),
		TimeSlots:      append([]models.TimeSlot(nil), s.data.TimeSlots...),
		Instructors:    append([]models.Instructor(nil), s.data.Instructors...),
		RuleSetVersion: ruleSetVersion,
		LoadedAt:       time.Now().UTC(),
	}
	for _, level := range s.data.Levels {
		if levelFilter == "" || level.ID == levelFilter {
			in.Levels = append(in.Levels, level)
		}
	}
	if levelFilter != "" && len(in.Levels) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "unknown level "+levelFilter)
	}
	for _, course := range s.data.Courses {
		if levelFilter == "" || course.LevelID == levelFilter {
			in.Courses = append(in.Courses, course)
		}
	}
	for _, section := range s.data.Sections {
		if levelFilter == "" || section.LevelID == levelFilter {
			in.Sections = append(in.Sections, section)
		}
	}
	for _, rule := range s.data.Rules {
		if rule.RuleSetVersion == ruleSetVersion {
			in.Rules = append(in.Rules, rule)
		}
	}

	s.mu.Lock()
	in.CurrentVersion = s.versions[scope]
	s.mu.Unlock()
	return in, nil
}

// PersistSchedule records set as the latest version of its scope.
func (s *Store) PersistSchedule(ctx context.Context, set service.ScheduleSet, version int) (*models.ScheduleRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version <= s.versions[set.Scope] {
		return nil, appErrors.Clone(appErrors.ErrConflict, "schedule version already exists")
	}
	s.versions[set.Scope] = version
	stored := set
	stored.Assignments = append(stored.Assignments[:0:0], set.Assignments...)
	s.last = &stored
	return &models.ScheduleRef{ID: uuid.NewString(), Version: version}, nil
}

// LatestVersion returns the highest version recorded for scope.
func (s *Store) LatestVersion(ctx context.Context, scope string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[scope], nil
}

// Last returns the most recently persisted set.
func (s *Store) Last() (*service.ScheduleSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, false
	}
	return s.last, true
}

// RuleVersions answers rule set lookups for a Dataset. A dataset without rules exposes an
// empty rule set with version 1.
type RuleVersions struct {
	versions []int
}

// NewRuleVersions indexes the rule set versions present in ds.
func NewRuleVersions(ds *Dataset) *RuleVersions {
	seen := make(map[int]bool)
	var versions []int
	for _, rule := range ds.Rules {
		if !seen[rule.RuleSetVersion] {
			seen[rule.RuleSetVersion] = true
			versions = append(versions, rule.RuleSetVersion)
		}
	}
	if len(versions) == 0 {
		versions = []int{1}
	}
	sort.Ints(versions)
	return &RuleVersions{versions: versions}
}

// VersionExists reports whether version is defined.
func (r *RuleVersions) VersionExists(ctx context.Context, version int) (bool, error) {
	idx := sort.SearchInts(r.versions, version)
	return idx < len(r.versions) && r.versions[idx] == version, nil
}

// LatestVersion returns the highest rule set version.
func (r *RuleVersions) LatestVersion(ctx context.Context) (int, error) {
	return r.versions[len(r.versions)-1], nil
}
