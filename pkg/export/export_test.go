package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRows() []Row {
	return []Row{
		{SectionID: "s1", Day: "MON", Start: "08:00", End: "09:00", TimeSlotID: "t1", RoomID: "r1", InstructorID: "i1"},
		{SectionID: "s2", Day: "MON", Start: "10:00", End: "11:00", TimeSlotID: "t2", RoomID: "r1", InstructorID: "i2", Penalty: 2, SoftViolations: "SESSION_GAP"},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleRows())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(Headers, ","), lines[0])
	assert.Equal(t, "s2,MON,10:00,11:00,t2,r1,i2,2,SESSION_GAP", lines[2])
}

func TestCSVExporterRenderEmpty(t *testing.T) {
	out, err := NewCSVExporter().Render(nil)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(Headers, ","), strings.TrimSpace(string(out)))
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleRows(), "Schedule v3")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestPDFExporterSpansPages(t *testing.T) {
	rows := make([]Row, 0, 80)
	for i := 0; i < 80; i++ {
		rows = append(rows, sampleRows()[i%2])
	}
	short, err := NewPDFExporter().Render(sampleRows(), "")
	require.NoError(t, err)
	long, err := NewPDFExporter().Render(rows, "")
	require.NoError(t, err)

	assert.Equal(t, 1, bytes.Count(short, []byte("/Type /Page\n")))
	assert.Greater(t, bytes.Count(long, []byte("/Type /Page\n")), 1)
}

func TestNewPDFExporterFillsPageWidth(t *testing.T) {
	e := NewPDFExporter()
	require.Len(t, e.widths, len(Headers))
	total := 0.0
	for _, w := range e.widths {
		total += w
	}
	assert.InDelta(t, pageWidth, total, 0.001)
}

func TestSummarize(t *testing.T) {
	penalty, flagged := summarize(sampleRows())
	assert.Equal(t, 2, penalty)
	assert.Equal(t, 1, flagged)
}
