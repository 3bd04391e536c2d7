package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
)

func TestSectionValidateRejectsNonPositiveCapacity(t *testing.T) {
	err := Section{ID: "sec-1", CourseID: "c1", LevelID: "l1", Capacity: 0}.Validate()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidEntity.Code, appErr.Code)
	violation, ok := appErr.Details.(EntityViolation)
	require.True(t, ok)
	assert.Equal(t, "capacity", violation.Field)
	assert.Equal(t, "sec-1", violation.ID)
}

func TestTimeSlotValidateRejectsEndBeforeStart(t *testing.T) {
	err := TimeSlot{ID: "ts-1", DayOfWeek: 1, StartMinute: 600, EndMinute: 600}.Validate()
	require.Error(t, err)
	violation := appErrors.FromError(err).Details.(EntityViolation)
	assert.Equal(t, "end_minute", violation.Field)

	err = TimeSlot{ID: "ts-2", DayOfWeek: 7, StartMinute: 480, EndMinute: 540}.Validate()
	require.Error(t, err)
	assert.Equal(t, "day_of_week", appErrors.FromError(err).Details.(EntityViolation).Field)
}

func TestRoomValidate(t *testing.T) {
	assert.NoError(t, Room{ID: "r1", Capacity: 30, Type: RoomTypeLab}.Validate())

	err := Room{ID: "r2", Capacity: -1, Type: RoomTypeLecture}.Validate()
	require.Error(t, err)
	assert.Equal(t, "capacity", appErrors.FromError(err).Details.(EntityViolation).Field)

	err = Room{ID: "r3", Capacity: 10, Type: "GYM"}.Validate()
	require.Error(t, err)
	assert.Equal(t, "room_type", appErrors.FromError(err).Details.(EntityViolation).Field)
}

func TestTimeSlotOverlaps(t *testing.T) {
	a := TimeSlot{ID: "a", DayOfWeek: 1, StartMinute: 480, EndMinute: 570}
	b := TimeSlot{ID: "b", DayOfWeek: 1, StartMinute: 540, EndMinute: 630}
	c := TimeSlot{ID: "c", DayOfWeek: 1, StartMinute: 570, EndMinute: 660}
	d := TimeSlot{ID: "d", DayOfWeek: 2, StartMinute: 480, EndMinute: 570}

	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c), "back-to-back slots do not overlap")
	assert.False(t, a.Overlaps(d))
}

func TestCourseValidateRejectsSelfPrerequisite(t *testing.T) {
	err := Course{ID: "cs101", Prerequisites: []string{"cs101"}}.Validate()
	require.Error(t, err)
	assert.Equal(t, "prerequisites", appErrors.FromError(err).Details.(EntityViolation).Field)
}
