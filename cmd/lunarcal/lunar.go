package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lunarcal/internal/calview"
	"lunarcal/internal/lunar"
)

func newLunarCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lunar [date]",
		Short: "Convert a Gregorian date (default today) to the lunar calendar",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.dateArg(optionalArg(args))
			if err != nil {
				return err
			}
			ld, err := lunar.FromTime(d)
			if err != nil {
				return err
			}
			day := calview.Decorate([]time.Time{d}, 0, nil, a.now().In(a.loc))[0]
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s %s  %s\n",
				calview.Key(d), day.Weekday, ld.YearName(), ld.Label(), day.Zodiac)
			return nil
		},
	}
}

func newSolarCmd(a *app) *cobra.Command {
	var leap bool
	cmd := &cobra.Command{
		Use:   "solar <yyyy-mm-dd>",
		Short: "Convert a lunar date to the Gregorian calendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parts := strings.Split(args[0], "-")
			if len(parts) != 3 {
				return fmt.Errorf("invalid lunar date %q, want YYYY-MM-DD", args[0])
			}
			var nums [3]int
			for i, p := range parts {
				n, err := strconv.Atoi(p)
				if err != nil {
					return fmt.Errorf("invalid lunar date %q, want YYYY-MM-DD", args[0])
				}
				nums[i] = n
			}
			ld := lunar.Date{Year: nums[0], Month: nums[1], Day: nums[2], Leap: leap}
			t, err := lunar.ToSolar(ld, a.loc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s -> %s\n", ld.YearName(), ld.Label(), calview.Key(t))
			return nil
		},
	}
	cmd.Flags().BoolVar(&leap, "leap", false, "The date is in the leap month")
	return cmd
}

func newYearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "year <yyyy>",
		Short: "Show the month structure of a lunar year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid year %q", args[0])
			}
			y, err := lunar.YearOf(year)
			if err != nil {
				return err
			}
			first, err := lunar.NewYear(year, a.loc)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s  正月初一 %s  %d days\n",
				lunar.Date{Year: year, Month: 1, Day: 1}.YearName(), calview.Key(first), y.Days)
			for m := 1; m <= 12; m++ {
				name := lunar.Date{Month: m, Day: 1}.MonthName()
				fmt.Fprintf(w, "  %s %d\n", name, y.MonthDays[m-1])
				if m == y.LeapMonth {
					fmt.Fprintf(w, "  闰%s %d\n", name, y.LeapDays)
				}
			}
			return nil
		},
	}
}
