package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/joshharrison/planloom/internal/engine"
	"github.com/joshharrison/planloom/internal/importer"
	"github.com/joshharrison/planloom/internal/model"
	"github.com/joshharrison/planloom/internal/refresher"
	"github.com/joshharrison/planloom/internal/reporter"
	"github.com/joshharrison/planloom/internal/store"
	"github.com/joshharrison/planloom/internal/ui"
)

var (
	flagDB       string
	flagLogLevel string
	flagJSON     bool

	flagName     string
	flagProject  string
	flagStart    string
	flagEnd      string
	flagSchedule string
	flagParent   string
	flagDuration int
	flagEffort   float64
	flagDepType  string
	flagLag      int
	flagPercent  int
	flagTarget   string
	flagTask     string

	flagMilestoneSpec string
	flagVarianceSpec  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "planloom",
		Short: "Project scheduling with critical path analysis",
		Long: `Planloom maintains project schedules as dependency networks: it validates
edges against cycles, computes critical paths and floats, rolls progress up
the work breakdown structure, and tracks slip against frozen baselines.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "planloom.db", "Schedule database path")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(schedulesCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(recomputeCmd())
	rootCmd.AddCommand(criticalPathCmd())
	rootCmd.AddCommand(rollupCmd())
	rootCmd.AddCommand(wbsCmd())
	rootCmd.AddCommand(baselineCmd())
	rootCmd.AddCommand(milestoneCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(flagLogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()
}

// openEngine opens the store and wires the engine; the store is closed by
// the returned func.
func openEngine() (*engine.Engine, *store.Store, func(), error) {
	log := newLogger()
	s, err := store.Open(flagDB, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", flagDB, err)
	}
	e := engine.New(s, log)
	return e, s, func() { _ = s.Close() }, nil
}

func parseDateFlag(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	d, err := model.ParseDate(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			start, err := parseDateFlag("start", flagStart)
			if err != nil {
				return err
			}
			end, err := parseDateFlag("end", flagEnd)
			if err != nil {
				return err
			}
			id, err := e.CreateSchedule(cmd.Context(), model.Schedule{
				Name:         flagName,
				ProjectRef:   flagProject,
				PlannedStart: start,
				PlannedEnd:   end,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Green("created"), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagName, "name", "", "Schedule name")
	cmd.Flags().StringVar(&flagProject, "project", "", "External project reference")
	cmd.Flags().StringVar(&flagStart, "start", "", "Planned start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&flagEnd, "end", "", "Planned end (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func schedulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedules",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			schedules, err := e.Schedules(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range schedules {
				fmt.Printf("%s  %-30s %s\n", s.ID, s.Name, ui.DerivedBadge(s.Derived))
			}
			return nil
		},
	}
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Add a task to a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			start, err := parseDateFlag("start", flagStart)
			if err != nil {
				return err
			}
			end, err := parseDateFlag("end", flagEnd)
			if err != nil {
				return err
			}
			id, err := e.AddTask(cmd.Context(), model.Task{
				ScheduleID:         flagSchedule,
				ParentID:           flagParent,
				Name:               flagName,
				PlannedStart:       start,
				PlannedEnd:         end,
				DurationDays:       flagDuration,
				PlannedEffortHours: flagEffort,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Green("added"), id)
			return nil
		},
	}
	add.Flags().StringVar(&flagSchedule, "schedule", "", "Schedule id")
	add.Flags().StringVar(&flagName, "name", "", "Task name")
	add.Flags().StringVar(&flagParent, "parent", "", "Parent task id")
	add.Flags().StringVar(&flagStart, "start", "", "Planned start (YYYY-MM-DD)")
	add.Flags().StringVar(&flagEnd, "end", "", "Planned end (YYYY-MM-DD)")
	add.Flags().IntVar(&flagDuration, "duration", 0, "Duration in days (used when dates are absent)")
	add.Flags().Float64Var(&flagEffort, "effort", 0, "Planned effort hours (rollup weight)")
	_ = add.MarkFlagRequired("schedule")
	_ = add.MarkFlagRequired("name")

	progress := &cobra.Command{
		Use:   "progress TASK PERCENT",
		Short: "Set a leaf task's progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			pct, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("percent: %w", err)
			}
			return e.UpdateTaskProgress(cmd.Context(), args[0], pct, -1)
		},
	}

	dates := &cobra.Command{
		Use:   "dates TASK",
		Short: "Update a task's planned dates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			start, err := parseDateFlag("start", flagStart)
			if err != nil {
				return err
			}
			end, err := parseDateFlag("end", flagEnd)
			if err != nil {
				return err
			}
			return e.UpdateTaskDates(cmd.Context(), args[0], start, end, flagDuration)
		},
	}
	dates.Flags().StringVar(&flagStart, "start", "", "Planned start (YYYY-MM-DD)")
	dates.Flags().StringVar(&flagEnd, "end", "", "Planned end (YYYY-MM-DD)")
	dates.Flags().IntVar(&flagDuration, "duration", 0, "Duration in days")

	rm := &cobra.Command{
		Use:   "rm TASK",
		Short: "Delete a task and its subtree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()
			return e.DeleteTask(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(add, progress, dates, rm)
	return cmd
}

func depCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dep",
		Short: "Manage dependency edges",
	}

	add := &cobra.Command{
		Use:   "add PREDECESSOR SUCCESSOR",
		Short: "Add a dependency edge (rejected if it would create a cycle)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			err = e.AddDependency(cmd.Context(), model.Dependency{
				PredecessorID: args[0],
				SuccessorID:   args[1],
				Type:          model.DependencyType(flagDepType),
				LagDays:       flagLag,
			})
			if err != nil {
				return err
			}
			fmt.Println(ui.Green("linked"))
			return nil
		},
	}
	add.Flags().StringVar(&flagDepType, "type", string(model.FinishToStart), "Dependency type (finish_to_start, start_to_start, finish_to_finish, start_to_finish)")
	add.Flags().IntVar(&flagLag, "lag", 0, "Lag in days (negative for lead)")

	rm := &cobra.Command{
		Use:   "rm PREDECESSOR SUCCESSOR",
		Short: "Remove a dependency edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()
			return e.RemoveDependency(cmd.Context(), args[0], args[1])
		},
	}

	cmd.AddCommand(add, rm)
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import a schedule definition (YAML or JSON)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, s, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			im := importer.New(s, e, newLogger(), importer.WithProgress(func(p importer.Progress) {
				if p.Phase == importer.PhasePersist && p.Total > 0 {
					fmt.Fprintf(os.Stderr, "\r  %s %d/%d tasks", ui.Dim("persisting"), p.Done, p.Total)
				}
			}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := im.Run(ctx, data)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}
			fmt.Printf("%s schedule %s: %d tasks, %d dependencies, %d milestones [%s]\n",
				ui.Green("imported"), res.ScheduleID, res.Tasks, res.Dependencies, res.Milestones,
				res.Took.Truncate(time.Millisecond))
			return nil
		},
	}
}

func recomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute SCHEDULE",
		Short: "Recompute CPM fields and progress rollup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := e.Recompute(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println(ui.Green("recomputed"))
			return nil
		},
	}
}

func criticalPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "critical-path SCHEDULE",
		Short: "Show the schedule's critical path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()
			return reporter.New(e).PrintCriticalPath(cmd.Context(), os.Stdout, args[0])
		},
	}
}

func rollupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollup TASK",
		Short: "Show a task's rolled-up progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			p, err := e.Rollup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s %d%%\n", ui.ProgressBar(p, 20), p)
			return nil
		},
	}
}

func wbsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wbs",
		Short: "Work breakdown structure tools",
	}
	next := &cobra.Command{
		Use:   "next SCHEDULE [PARENT_CODE]",
		Short: "Show the next WBS code that would be issued",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			parent := ""
			if len(args) == 2 {
				parent = args[1]
			}
			code, err := e.NextWBSCode(cmd.Context(), args[0], parent)
			if err != nil {
				return err
			}
			fmt.Println(code)
			return nil
		},
	}
	cmd.AddCommand(next)
	return cmd
}

func baselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage schedule baselines",
	}

	create := &cobra.Command{
		Use:   "create SCHEDULE",
		Short: "Capture an immutable baseline snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			id, err := e.CreateBaseline(cmd.Context(), args[0], flagName)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Green("captured"), id)
			return nil
		},
	}
	create.Flags().StringVar(&flagName, "name", "", "Baseline name")

	variance := &cobra.Command{
		Use:   "variance SCHEDULE [BASELINE]",
		Short: "Compare the current schedule against a baseline (latest by default)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			baselineID := ""
			if len(args) == 2 {
				baselineID = args[1]
			} else {
				b, err := e.LatestBaseline(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				baselineID = b.ID
			}

			v, err := e.Variance(cmd.Context(), args[0], baselineID)
			if err != nil {
				return err
			}
			slip := ui.Green(fmt.Sprintf("%+d days", v.VarianceDays))
			if v.VarianceDays > 0 {
				slip = ui.Red(fmt.Sprintf("+%d days", v.VarianceDays))
			}
			fmt.Printf("baseline end %s  current end %s  slip %s  SPI %.2f\n",
				model.FormatDate(v.BaselineEnd), model.FormatDate(v.CurrentEnd), slip, v.PerformanceIndex)
			return nil
		},
	}

	cmd.AddCommand(create, variance)
	return cmd
}

func milestoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "milestones",
		Short: "Manage milestones",
	}

	add := &cobra.Command{
		Use:   "add SCHEDULE",
		Short: "Add a milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			target, err := parseDateFlag("target", flagTarget)
			if err != nil {
				return err
			}
			id, err := e.AddMilestone(cmd.Context(), model.Milestone{
				ScheduleID: args[0],
				Name:       flagName,
				TargetDate: target,
				TaskID:     flagTask,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.Green("added"), id)
			return nil
		},
	}
	add.Flags().StringVar(&flagName, "name", "", "Milestone name")
	add.Flags().StringVar(&flagTarget, "target", "", "Target date (YYYY-MM-DD)")
	add.Flags().StringVar(&flagTask, "task", "", "Linked task id")
	_ = add.MarkFlagRequired("name")

	refresh := &cobra.Command{
		Use:   "refresh SCHEDULE",
		Short: "Re-derive milestone statuses from today's date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := e.RefreshMilestones(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%d milestone(s) updated\n", n)
			return nil
		},
	}

	cmd.AddCommand(add, refresh)
	return cmd
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report SCHEDULE",
		Short: "Print the full schedule report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			r := reporter.New(e)
			if flagJSON {
				data, err := r.JSON(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			return r.PrintSchedule(cmd.Context(), os.Stdout, args[0])
		},
	}
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the periodic milestone and variance refresher until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, closeFn, err := openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := refresher.New(e, newLogger(), refresher.Config{
				MilestoneSpec: flagMilestoneSpec,
				VarianceSpec:  flagVarianceSpec,
			})
			if err := svc.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s watching (ctrl-c to stop)\n", ui.Cyan("●"))
			<-ctx.Done()
			svc.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&flagMilestoneSpec, "milestone-spec", "@hourly", "Cron spec for the milestone sweep")
	cmd.Flags().StringVar(&flagVarianceSpec, "variance-spec", "@daily", "Cron spec for the variance refresh")
	return cmd
}
