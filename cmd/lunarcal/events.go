package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"lunarcal/internal/calendar"
	"lunarcal/internal/grid"
	"lunarcal/internal/ics"
	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
)

// Mutations from the CLI only touch the store; a running server re-arms
// their reminders on its reconcile schedule.
const offlineNote = "A running `lunarcal serve` picks up reminder changes made here on its next reconcile pass (config: reconcile)."

func gridCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grid [YEAR MONTH]",
		Short: "Print a month grid with lunar labels",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ym := model.YearMonthOf(time.Now())
			switch len(args) {
			case 1:
				return errors.New("need both YEAR and MONTH")
			case 2:
				y, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("year: %w", err)
				}
				m, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("month: %w", err)
				}
				ym = model.YearMonth{Year: y, Month: time.Month(m)}
			}

			cells, err := grid.NewBuilder(nil, nil).Build(ym.Year, ym.Month)
			if err != nil {
				return err
			}
			return printGrid(os.Stdout, ym, cells)
		},
	}
}

func dayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "day DATE",
		Short: "List events starting on DATE (YYYY-MM-DD)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDate(args[0])
			if err != nil {
				return err
			}
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.svc.Day(cmd.Context(), date)
			if err != nil {
				return err
			}
			return printEvents(os.Stdout, events)
		},
	}
}

type eventFlags struct {
	title, desc        string
	start, end, remind string
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "Event title")
	cmd.Flags().StringVarP(&f.desc, "description", "d", "", "Event description")
	cmd.Flags().StringVarP(&f.start, "start", "s", "", `Start time ("2006-01-02 15:04" or RFC 3339)`)
	cmd.Flags().StringVarP(&f.end, "end", "e", "", "End time (defaults to start + 1h)")
	cmd.Flags().StringVarP(&f.remind, "remind", "r", "", "Reminder time (defaults to start)")
}

// apply overlays the flags that were set onto ev.
func (f *eventFlags) apply(cmd *cobra.Command, ev *model.Event) error {
	changed := cmd.Flags().Changed
	if changed("title") {
		ev.Title = f.title
	}
	if changed("description") {
		ev.Description = f.desc
	}
	for _, tf := range []struct {
		name string
		val  string
		dst  *time.Time
	}{
		{"start", f.start, &ev.StartTime},
		{"end", f.end, &ev.EndTime},
		{"remind", f.remind, &ev.RemindTime},
	} {
		if !changed(tf.name) {
			continue
		}
		t, err := parseDateTime(tf.val)
		if err != nil {
			return fmt.Errorf("--%s: %w", tf.name, err)
		}
		*tf.dst = t
	}
	return nil
}

func addCmd() *cobra.Command {
	var f eventFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an event",
		Long:  "Add an event.\n\n" + offlineNote,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var ev model.Event
			if err := f.apply(cmd, &ev); err != nil {
				return err
			}
			if ev.EndTime.IsZero() && !ev.StartTime.IsZero() {
				ev.EndTime = ev.StartTime.Add(time.Hour)
			}

			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			saved, err := a.svc.Create(cmd.Context(), ev)
			if err != nil && !(errors.Is(err, calendar.ErrAlarmSync) && saved.Persisted()) {
				return err
			}
			fmt.Fprintf(os.Stdout, "created event %d\n", saved.ID)
			return printEvents(os.Stdout, []model.Event{saved})
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func editCmd() *cobra.Command {
	var f eventFlags
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change fields of an event",
		Long:  "Change fields of an event. Only the flags given are changed.\n\n" + offlineNote,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("id: %w", err)
			}
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ev, err := a.svc.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, &ev); err != nil {
				return err
			}
			saved, err := a.svc.Update(cmd.Context(), ev)
			if err != nil && !errors.Is(err, calendar.ErrAlarmSync) {
				return err
			}
			return printEvents(os.Stdout, []model.Event{saved})
		},
	}
	f.register(cmd)
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("id: %w", err)
			}
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.svc.Delete(cmd.Context(), id)
			if err != nil && !removed {
				return err
			}
			if !removed {
				return fmt.Errorf("event %d not found", id)
			}
			fmt.Fprintf(os.Stdout, "deleted event %d\n", id)
			return nil
		},
	}
}

func lunarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lunar [DATE]",
		Short: "Show the lunar date of DATE (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := time.Now()
			if len(args) == 1 {
				d, err := parseDate(args[0])
				if err != nil {
					return err
				}
				date = d
			}
			ld, err := lunar.FromTime(lunar.Default, date)
			if err != nil {
				return err
			}
			long, err := lunar.LongString(ld)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s  %s (%s年)\n", date.Format(time.DateOnly), long, lunar.Zodiac(ld.Year))
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var from, to, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write events in [--from, --to) as iCalendar",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := parseDate(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := parseDate(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.svc.Range(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			body, err := ics.Export(events, time.Now())
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = os.Stdout.WriteString(body)
				return err
			}
			return os.WriteFile(out, []byte(body), 0o600)
		},
	}
	first := model.YearMonthOf(time.Now()).Date(1)
	cmd.Flags().StringVar(&from, "from", first.Format(time.DateOnly), "First day (inclusive)")
	cmd.Flags().StringVar(&to, "to", first.AddDate(1, 0, 0).Format(time.DateOnly), "Last day (exclusive)")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file")
	return cmd
}

func importCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Create events from an iCalendar file",
		Long: "Create events from an iCalendar file. Recurring events are skipped unless " +
			"--from and --to are given, in which case each occurrence in the window becomes " +
			"its own event.\n\n" + offlineNote,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var im ics.Importer
			if from != "" || to != "" {
				if im.From, err = parseDate(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				if im.To, err = parseDate(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}
			events, err := im.Parse(body)
			if err != nil {
				return err
			}

			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n := 0
			for _, ev := range events {
				saved, err := a.svc.Create(cmd.Context(), ev)
				if err != nil && !saved.Persisted() {
					return fmt.Errorf("after %d imported: %w", n, err)
				}
				n++
			}
			fmt.Fprintf(os.Stdout, "imported %d events\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Occurrence window start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Occurrence window end, exclusive (YYYY-MM-DD)")
	return cmd
}
