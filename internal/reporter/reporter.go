// Package reporter renders terminal and JSON views of a schedule: the
// task table with floats and progress, the critical path, milestones,
// and baseline variance.
package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joshharrison/planloom/internal/engine"
	"github.com/joshharrison/planloom/internal/model"
	"github.com/joshharrison/planloom/internal/ui"
	"github.com/joshharrison/planloom/internal/wbs"
)

// Reporter reads committed schedule state through the engine.
type Reporter struct {
	eng *engine.Engine
}

// New creates a Reporter.
func New(e *engine.Engine) *Reporter {
	return &Reporter{eng: e}
}

// PrintSchedule writes the full terminal report for one schedule.
func (r *Reporter) PrintSchedule(ctx context.Context, w io.Writer, scheduleID string) error {
	sched, err := r.eng.Schedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	tasks, err := r.eng.Tasks(ctx, scheduleID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n📅 %s %s\n", ui.BoldCyan(sched.Name), ui.DerivedBadge(sched.Derived))
	if !sched.PlannedStart.IsZero() {
		fmt.Fprintf(w, "   %s — %s\n",
			model.FormatDate(sched.PlannedStart), model.FormatDate(sched.PlannedEnd))
	}
	fmt.Fprintln(w)

	for _, t := range tasks {
		r.printTask(w, t)
	}
	fmt.Fprintln(w)

	milestones, err := r.eng.Milestones(ctx, scheduleID)
	if err != nil {
		return err
	}
	if len(milestones) > 0 {
		fmt.Fprintf(w, "  %s\n", ui.BoldWhite("Milestones"))
		for _, m := range milestones {
			target := ""
			if !m.TargetDate.IsZero() {
				target = model.FormatDate(m.TargetDate)
			}
			fmt.Fprintf(w, "    ◆ %-30s %-10s %s\n", truncate(m.Name, 30), target, ui.MilestoneBadge(m.Status))
		}
		fmt.Fprintln(w)
	}

	return r.printVariance(ctx, w, sched)
}

func (r *Reporter) printTask(w io.Writer, t model.Task) {
	level := wbs.Level(t.WBSCode)
	if level > 0 {
		level--
	}
	indent := strings.Repeat("  ", level)
	name := truncate(t.Name, 36-len(indent))
	fmt.Fprintf(w, "  %-8s %s%s %-*s %s %s %3d%%  %s float %d\n",
		ui.BoldMagenta(t.WBSCode),
		indent,
		ui.StatusIcon(t.Status),
		38-len(indent), name,
		ui.CriticalMark(t.IsCritical),
		ui.ProgressBar(t.Progress, 10),
		t.Progress,
		ui.Dim(fmt.Sprintf("ES %d EF %d", t.EarlyStart, t.EarlyFinish)),
		t.TotalFloat,
	)
}

// PrintCriticalPath writes the critical chain with day offsets.
func (r *Reporter) PrintCriticalPath(ctx context.Context, w io.Writer, scheduleID string) error {
	path, err := r.eng.CriticalPath(ctx, scheduleID)
	if err != nil {
		return err
	}
	if len(path) == 0 {
		fmt.Fprintf(w, "%s\n", ui.Dim("no critical tasks"))
		return nil
	}

	fmt.Fprintf(w, "\n%s %s\n", ui.BoldYellow("⚡"), ui.BoldWhite("Critical path"))
	var names []string
	for _, t := range path {
		fmt.Fprintf(w, "  %s %-38s %s\n",
			ui.BoldMagenta(t.WBSCode), truncate(t.Name, 38),
			ui.Dim(fmt.Sprintf("days %d–%d", t.EarlyStart, t.EarlyFinish)))
		names = append(names, t.Name)
	}
	fmt.Fprintf(w, "\n  %s\n", ui.BoldYellow(strings.Join(names, " → ")))
	return nil
}

func (r *Reporter) printVariance(ctx context.Context, w io.Writer, sched model.Schedule) error {
	b, err := r.eng.LatestBaseline(ctx, sched.ID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	slip := ui.Green(fmt.Sprintf("%+d days", sched.VarianceDays))
	if sched.VarianceDays > 0 {
		slip = ui.Red(fmt.Sprintf("+%d days", sched.VarianceDays))
	}
	fmt.Fprintf(w, "  %s %s  slip %s  SPI %s\n",
		ui.BoldWhite("Baseline"), truncate(b.Name, 24), slip,
		ui.Bold(fmt.Sprintf("%.2f", sched.PerformanceIndex)))
	return nil
}

// JSON returns a machine-readable schedule report.
func (r *Reporter) JSON(ctx context.Context, scheduleID string) ([]byte, error) {
	type taskOut struct {
		ID          string `json:"id"`
		WBS         string `json:"wbs"`
		Name        string `json:"name"`
		Status      string `json:"status"`
		Progress    int    `json:"progress"`
		EarlyStart  int    `json:"early_start"`
		EarlyFinish int    `json:"early_finish"`
		TotalFloat  int    `json:"total_float"`
		FreeFloat   int    `json:"free_float"`
		IsCritical  bool   `json:"is_critical"`
	}
	type output struct {
		ScheduleID       string    `json:"schedule_id"`
		Name             string    `json:"name"`
		Derived          string    `json:"derived_state"`
		VarianceDays     int       `json:"variance_days"`
		PerformanceIndex float64   `json:"performance_index"`
		CriticalPath     []string  `json:"critical_path"`
		Tasks            []taskOut `json:"tasks"`
	}

	sched, err := r.eng.Schedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	tasks, err := r.eng.Tasks(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	o := output{
		ScheduleID:       sched.ID,
		Name:             sched.Name,
		Derived:          string(sched.Derived),
		VarianceDays:     sched.VarianceDays,
		PerformanceIndex: sched.PerformanceIndex,
	}
	for _, t := range tasks {
		if t.IsCritical {
			o.CriticalPath = append(o.CriticalPath, t.ID)
		}
		o.Tasks = append(o.Tasks, taskOut{
			ID: t.ID, WBS: t.WBSCode, Name: t.Name, Status: string(t.Status),
			Progress: t.Progress, EarlyStart: t.EarlyStart, EarlyFinish: t.EarlyFinish,
			TotalFloat: t.TotalFloat, FreeFloat: t.FreeFloat, IsCritical: t.IsCritical,
		})
	}
	return json.MarshalIndent(o, "", "  ")
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
