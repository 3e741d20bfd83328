package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
)

func renderRun(w io.Writer, resp *dto.TimetableRunResponse) {
	run := resp.Run
	fmt.Fprintf(w, "term %s: %s after %d generations, fitness %.4f (%dms)\n",
		run.TermID, run.State, run.Generations, run.Fitness, run.DurationMillis)
	if run.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", run.Error)
	}
	if resp.Grid != nil {
		renderGrid(w, *resp.Grid)
	}
	if resp.Report != nil {
		renderReport(w, *resp.Report)
	}
	fmt.Fprintln(w)
}

// renderGrid prints one row per slot; a cell's lines are joined with " / ".
func renderGrid(w io.Writer, grid scheduler.Grid) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "\t%s\n", strings.Join(grid.Days, "\t"))
	for slot, label := range grid.Slots {
		cells := make([]string, len(grid.Days))
		for day := range grid.Days {
			entries := grid.Cells[slot][day]
			parts := make([]string, 0, len(entries))
			for _, entry := range entries {
				parts = append(parts, strings.ReplaceAll(entry, "\n", " / "))
			}
			cells[day] = strings.Join(parts, " | ")
			if cells[day] == "" {
				cells[day] = "-"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\n", label, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

func renderReport(w io.Writer, report scheduler.ConflictReport) {
	if report.Clean() {
		fmt.Fprintln(w, "no conflicts")
		return
	}
	s := report.Summary
	fmt.Fprintf(w, "conflicts: teacher %d, classroom %d, term %d, availability %d, external %d, real-time %d\n",
		s.Teacher, s.Classroom, s.Term, s.Availability, s.External, s.RealTime)
}

func renderTerms(w io.Writer, years []models.AcademicYear) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, year := range years {
		fmt.Fprintf(tw, "%s\t%s\n", year.ID, year.Name)
	}
	_ = tw.Flush()
}

func renderAudit(w io.Writer, audit *dto.CommitmentAuditResponse) {
	if audit.Total == 0 {
		fmt.Fprintln(w, "no teacher double-bookings across stored timetables")
		return
	}
	fmt.Fprintf(w, "%d teacher double-bookings across stored timetables\n", audit.Total)
	for _, c := range audit.Conflicts {
		teacher := c.TeacherName
		if teacher == "" {
			teacher = c.TeacherID
		}
		fmt.Fprintf(w, "%s, %s %s\n", teacher, c.DayName, c.Time)
		for _, e := range c.Entries {
			fmt.Fprintf(w, "  term %s  %s (%s)  %s\n", e.TermID, e.ScheduleName, e.ScheduleID, e.CourseName)
		}
	}
}
