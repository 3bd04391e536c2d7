// Package csvio loads planning reference data from a directory of CSV files so the engine
// can run without a database.
package csvio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/noah-isme/course-scheduler/internal/models"
)

// File names read by Load. rules.csv is optional.
const (
	LevelsFile      = "levels.csv"
	CoursesFile     = "courses.csv"
	SectionsFile    = "sections.csv"
	RoomsFile       = "rooms.csv"
	TimeSlotsFile   = "timeslots.csv"
	InstructorsFile = "instructors.csv"
	RulesFile       = "rules.csv"
)

// Dataset is the full reference data of one catalogue directory.
type Dataset struct {
	Levels      []models.Level
	Courses     []models.Course
	Sections    []models.Section
	Rooms       []models.Room
	TimeSlots   []models.TimeSlot
	Instructors []models.Instructor
	Rules       []models.Rule
}

// Load reads every catalogue file under dir.
func Load(dir string) (*Dataset, error) {
	var (
		levels      []levelRow
		courses     []courseRow
		sections    []sectionRow
		rooms       []roomRow
		timeslots   []timeSlotRow
		instructors []instructorRow
		rules       []ruleRow
	)
	required := []struct {
		name string
		dest interface{}
	}{
		{LevelsFile, &levels},
		{CoursesFile, &courses},
		{SectionsFile, &sections},
		{RoomsFile, &rooms},
		{TimeSlotsFile, &timeslots},
		{InstructorsFile, &instructors},
	}
	for _, file := range required {
		if err := readFile(filepath.Join(dir, file.name), file.dest); err != nil {
			return nil, err
		}
	}
	if err := readFile(filepath.Join(dir, RulesFile), &rules); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	ds := &Dataset{
		Levels:      make([]models.Level, 0, len(levels)),
		Courses:     make([]models.Course, 0, len(courses)),
		Sections:    make([]models.Section, 0, len(sections)),
		Rooms:       make([]models.Room, 0, len(rooms)),
		TimeSlots:   make([]models.TimeSlot, 0, len(timeslots)),
		Instructors: make([]models.Instructor, 0, len(instructors)),
		Rules:       make([]models.Rule, 0, len(rules)),
	}
	for _, row := range levels {
		ds.Levels = append(ds.Levels, row.model())
	}
	for _, row := range courses {
		ds.Courses = append(ds.Courses, row.model())
	}
	for _, row := range sections {
		ds.Sections = append(ds.Sections, row.model())
	}
	for _, row := range rooms {
		ds.Rooms = append(ds.Rooms, row.model())
	}
	for _, row := range timeslots {
		slot, err := row.model()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", TimeSlotsFile, err)
		}
		ds.TimeSlots = append(ds.TimeSlots, slot)
	}
	for _, row := range instructors {
		ds.Instructors = append(ds.Instructors, row.model())
	}
	for i, row := range rules {
		if row.ID == "" {
			row.ID = fmt.Sprintf("rule-%d", i+1)
		}
		rule, err := row.model()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", RulesFile, err)
		}
		ds.Rules = append(ds.Rules, rule)
	}
	return ds, nil
}

func readFile(path string, dest interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if err := gocsv.UnmarshalFile(f, dest); err != nil && !errors.Is(err, gocsv.ErrEmptyCSVFile) {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
