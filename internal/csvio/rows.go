package csvio

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/noah-isme/course-scheduler/internal/models"
)

// List columns hold ids separated by semicolons.
const listSeparator = ";"

type levelRow struct {
	ID             string `csv:"id"`
	Name           string `csv:"name"`
	TargetStudents int    `csv:"target_students"`
}

func (r levelRow) model() models.Level {
	return models.Level{ID: r.ID, Name: r.Name, TargetStudents: r.TargetStudents}
}

type courseRow struct {
	ID            string `csv:"id"`
	Code          string `csv:"code"`
	Credits       int    `csv:"credits"`
	Elective      bool   `csv:"elective"`
	Prerequisites string `csv:"prerequisites"`
	LevelID       string `csv:"level_id"`
}

func (r courseRow) model() models.Course {
	return models.Course{
		ID:            r.ID,
		Code:          r.Code,
		Credits:       r.Credits,
		Elective:      r.Elective,
		Prerequisites: splitList(r.Prerequisites),
		LevelID:       r.LevelID,
	}
}

type sectionRow struct {
	ID       string `csv:"id"`
	CourseID string `csv:"course_id"`
	Number   int    `csv:"section_number"`
	Capacity int    `csv:"capacity"`
	LevelID  string `csv:"level_id"`
	RoomType string `csv:"room_type"`
}

func (r sectionRow) model() models.Section {
	return models.Section{
		ID:       r.ID,
		CourseID: r.CourseID,
		Number:   r.Number,
		Capacity: r.Capacity,
		LevelID:  r.LevelID,
		RoomType: models.RoomType(strings.ToUpper(r.RoomType)),
	}
}

type roomRow struct {
	ID       string `csv:"id"`
	Name     string `csv:"name"`
	Capacity int    `csv:"capacity"`
	Type     string `csv:"room_type"`
}

func (r roomRow) model() models.Room {
	return models.Room{ID: r.ID, Name: r.Name, Capacity: r.Capacity, Type: models.RoomType(strings.ToUpper(r.Type))}
}

type timeSlotRow struct {
	ID        string `csv:"id"`
	DayOfWeek int    `csv:"day_of_week"`
	Start     string `csv:"start"`
	End       string `csv:"end"`
	IsMidterm bool   `csv:"is_midterm"`
	IsBreak   bool   `csv:"is_break"`
}

func (r timeSlotRow) model() (models.TimeSlot, error) {
	start, err := parseClock(r.Start)
	if err != nil {
		return models.TimeSlot{}, fmt.Errorf("timeslot %s start: %w", r.ID, err)
	}
	end, err := parseClock(r.End)
	if err != nil {
		return models.TimeSlot{}, fmt.Errorf("timeslot %s end: %w", r.ID, err)
	}
	return models.TimeSlot{
		ID:          r.ID,
		DayOfWeek:   r.DayOfWeek,
		StartMinute: start,
		EndMinute:   end,
		IsMidterm:   r.IsMidterm,
		IsBreak:     r.IsBreak,
	}, nil
}

type instructorRow struct {
	ID            string `csv:"id"`
	Name          string `csv:"name"`
	Unavailable   string `csv:"unavailable"`
	CourseIDs     string `csv:"course_ids"`
	MaxWeeklyLoad int    `csv:"max_weekly_load"`
}

func (r instructorRow) model() models.Instructor {
	return models.Instructor{
		ID:            r.ID,
		Name:          r.Name,
		Unavailable:   splitList(r.Unavailable),
		CourseIDs:     splitList(r.CourseIDs),
		MaxWeeklyLoad: r.MaxWeeklyLoad,
	}
}

type ruleRow struct {
	ID             string `csv:"id"`
	RuleSetVersion int    `csv:"rule_set_version"`
	Key            string `csv:"key"`
	Value          string `csv:"value"`
	Active         bool   `csv:"active"`
}

func (r ruleRow) model() (models.Rule, error) {
	value := strings.TrimSpace(r.Value)
	if value == "" {
		value = "{}"
	}
	if !json.Valid([]byte(value)) {
		return models.Rule{}, fmt.Errorf("rule %s: value is not valid JSON", r.ID)
	}
	return models.Rule{
		ID:             r.ID,
		RuleSetVersion: r.RuleSetVersion,
		Key:            r.Key,
		Value:          types.JSONText(value),
		Active:         r.Active,
	}, nil
}

func splitList(raw string) pq.StringArray {
	out := pq.StringArray{}
	for _, part := range strings.Split(raw, listSeparator) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseClock accepts HH:MM and returns minutes since midnight. 24:00 closes the day.
func parseClock(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}
