package export

import (
	"fmt"

	"github.com/gocarina/gocsv"
)

// Row is one exported assignment line. Tags drive the CSV header.
type Row struct {
	SectionID      string `csv:"section_id"`
	Day            string `csv:"day"`
	Start          string `csv:"start"`
	End            string `csv:"end"`
	TimeSlotID     string `csv:"timeslot_id"`
	RoomID         string `csv:"room_id"`
	InstructorID   string `csv:"instructor_id"`
	Penalty        int    `csv:"penalty"`
	SoftViolations string `csv:"soft_violations"`
}

// Headers lists the column titles in CSV order.
var Headers = []string{"section_id", "day", "start", "end", "timeslot_id", "room_id", "instructor_id", "penalty", "soft_violations"}

func (r Row) values() []string {
	return []string{r.SectionID, r.Day, r.Start, r.End, r.TimeSlotID, r.RoomID, r.InstructorID, fmt.Sprintf("%d", r.Penalty), r.SoftViolations}
}

// CSVExporter renders assignment rows into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for rows. An empty set still yields the header line.
func (e *CSVExporter) Render(rows []Row) ([]byte, error) {
	if rows == nil {
		rows = []Row{}
	}
	out, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("marshal csv: %w", err)
	}
	return out, nil
}
