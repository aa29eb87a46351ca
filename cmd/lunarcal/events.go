package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lunarcal/internal/agenda"
	"lunarcal/internal/calview"
	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
)

func newAddCmd(a *app) *cobra.Command {
	var (
		date     string
		desc     string
		category string
		remind   string
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add an event",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev := model.Event{
				Title:       strings.Join(args, " "),
				Description: desc,
				Category:    model.CategoryOther,
			}
			d, err := a.dateArg(date)
			if err != nil {
				return err
			}
			ev.Date = d
			if category != "" {
				if ev.Category, err = model.ParseCategory(category); err != nil {
					return fmt.Errorf("category %q: %w", category, err)
				}
			}
			if remind != "" {
				at, err := a.parseRemind(remind)
				if err != nil {
					return err
				}
				ev.RemindAt = &at
			}

			return a.withService(cmd, func(ctx context.Context, svc *agenda.Service) error {
				stored, err := svc.Add(ctx, ev)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), "added ")
				printEvents(cmd.OutOrStdout(), []model.Event{stored})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Event date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&desc, "desc", "", "Description")
	cmd.Flags().StringVar(&category, "category", "", "work, study, life, reminder or other")
	cmd.Flags().StringVar(&remind, "remind", "", `Reminder time, "YYYY-MM-DD HH:MM" or RFC 3339`)
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all events, or those of one day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *agenda.Service) error {
				var (
					events []model.Event
					err    error
				)
				if date != "" {
					d, perr := model.ParseDate(date, a.loc)
					if perr != nil {
						return fmt.Errorf("invalid date %q: %w", date, perr)
					}
					events, err = svc.ByDate(ctx, d)
				} else {
					events, err = svc.All(ctx)
				}
				if err != nil {
					return err
				}
				if len(events) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no events")
					return nil
				}
				printEvents(cmd.OutOrStdout(), events)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Only events of this day (YYYY-MM-DD)")
	return cmd
}

func newDayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "day [date]",
		Short: "Show one day with its lunar date and events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.dateArg(optionalArg(args))
			if err != nil {
				return err
			}
			return a.withService(cmd, func(ctx context.Context, svc *agenda.Service) error {
				day, err := svc.Day(ctx, d)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s  %s  %s\n", day.Title, day.Day.Lunar, day.Day.Zodiac)
				if len(day.Events) == 0 {
					fmt.Fprintln(w, "no events")
					return nil
				}
				printEvents(w, day.Events)
				return nil
			})
		},
	}
}

func newWeekCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "week [date]",
		Short: "Show the week containing date",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.dateArg(optionalArg(args))
			if err != nil {
				return err
			}
			return a.withService(cmd, func(ctx context.Context, svc *agenda.Service) error {
				week, err := svc.Week(ctx, d)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, week.Title)
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				for _, day := range week.Days {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", dayMarker(day), day.Weekday, calview.Key(day.Date), day.Lunar)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				if len(week.Events) > 0 {
					fmt.Fprintln(w)
					printEvents(w, week.Events)
				}
				return nil
			})
		},
	}
}

func newMonthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "month [yyyy-mm]",
		Short: "Show a month grid with lunar dates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, month := a.now().In(a.loc).Year(), a.now().In(a.loc).Month()
			if len(args) == 1 {
				t, err := time.Parse("2006-01", args[0])
				if err != nil {
					return fmt.Errorf("invalid month %q, want YYYY-MM", args[0])
				}
				year, month = t.Year(), t.Month()
			}
			return a.withService(cmd, func(ctx context.Context, svc *agenda.Service) error {
				m, err := svc.Month(ctx, year, month)
				if err != nil {
					return err
				}
				printMonth(cmd.OutOrStdout(), m)
				return nil
			})
		},
	}
}

func newDoneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Toggle the finished flag of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withService(cmd, func(ctx context.Context, svc *agenda.Service) error {
				ev, err := svc.ToggleFinished(ctx, id)
				if err != nil {
					return err
				}
				printEvents(cmd.OutOrStdout(), []model.Event{ev})
				return nil
			})
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete an event",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withService(cmd, func(ctx context.Context, svc *agenda.Service) error {
				if err := svc.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted #%d\n", id)
				return nil
			})
		},
	}
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// dateArg parses YYYY-MM-DD in the configured zone; empty means today.
func (a *app) dateArg(s string) (time.Time, error) {
	if s == "" {
		return model.Midnight(a.now().In(a.loc)), nil
	}
	d, err := model.ParseDate(s, a.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

func (a *app) parseRemind(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, a.loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reminder time %q", s)
	}
	return t, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid event id %q", s)
	}
	return id, nil
}

func printEvents(w io.Writer, events []model.Event) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, ev := range events {
		status := "[ ]"
		if ev.Finished {
			status = "[x]"
		}
		label := ""
		if ld, err := lunar.FromTime(ev.Date); err == nil {
			label = ld.Label()
		}
		remind := ""
		if ev.HasReminder() {
			remind = "⏰ " + ev.RemindAt.In(ev.Date.Location()).Format("01-02 15:04")
		}
		fmt.Fprintf(tw, "#%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.ID, status, calview.Key(ev.Date), label, ev.Category.Name(), ev.Title, remind)
	}
	_ = tw.Flush()
}

func dayMarker(d calview.Day) string {
	switch {
	case d.Today && d.HasEvents:
		return ">*"
	case d.Today:
		return "> "
	case d.HasEvents:
		return " *"
	}
	return "  "
}

// printMonth renders the grid one week per line. Each cell shows the day of
// month and its lunar day; the first lunar day of a month shows the month
// name instead. Days with events carry a "*".
func printMonth(w io.Writer, m agenda.RangeAgenda) {
	fmt.Fprintln(w, m.Title)
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	for i := 0; i < 7 && i < len(m.Days); i++ {
		fmt.Fprintf(tw, "%s\t", m.Days[i].Weekday)
	}
	fmt.Fprintln(tw)
	for i, d := range m.Days {
		cell := "  "
		if d.InMonth {
			cell = fmt.Sprintf("%2d", d.Date.Day())
		}
		mark := " "
		if d.HasEvents {
			mark = "*"
		}
		sub := ""
		if d.InMonth && d.LunarDate != nil {
			sub = d.LunarDate.DayName()
			if d.LunarDate.Day == 1 {
				sub = d.Lunar[:len(d.Lunar)-len(d.LunarDate.DayName())]
			}
		}
		fmt.Fprintf(tw, "%s%s %s\t", cell, mark, sub)
		if i%7 == 6 {
			fmt.Fprintln(tw)
		}
	}
	_ = tw.Flush()
}
