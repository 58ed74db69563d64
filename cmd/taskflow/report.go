package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"taskflow/domain"
)

func newBoardsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "boards",
		Short: "List boards with their open task count",
		RunE: func(cmd *cobra.Command, _ []string) error {
			open := make(map[string]int)
			for _, task := range a.ws.Tasks() {
				if !task.Completed {
					open[task.BoardID]++
				}
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{text.FgGreen.Sprint("ID"), text.FgGreen.Sprint("Name"), text.FgGreen.Sprint("Open")})
			for _, b := range a.boards {
				t.AppendRow(table.Row{b.ID, b.Name, open[b.ID]})
			}
			t.Render()
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show progress over all tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := domain.Summarize(a.ws.Tasks(), a.ws.Today())
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendRows([]table.Row{
				{"Total", s.Total},
				{"Completed", s.Completed},
				{"Open", s.Open},
				{"Overdue", s.Overdue},
			})
			t.AppendFooter(table.Row{"Done", fmt.Sprintf("%d%%", s.Percent)})
			t.Render()
			return nil
		},
	}
}

func newCalendarCmd(a *app) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show a month grid with the number of open tasks due per day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			today := a.ws.Today()
			if month == "" {
				month = today[:7]
			}
			first, err := time.Parse("2006-01", month)
			if err != nil {
				return fmt.Errorf("invalid month %q, want YYYY-MM", month)
			}
			cm := domain.Calendar(a.ws.Tasks(), first.Year(), first.Month(), today)

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.SetTitle(fmt.Sprintf("%s %d", cm.Month, cm.Year))
			t.AppendHeader(table.Row{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"})
			row := make(table.Row, 0, 7)
			for i := 0; i < cm.Offset; i++ {
				row = append(row, "")
			}
			for _, d := range cm.Days {
				row = append(row, calendarCell(d))
				if len(row) == 7 {
					t.AppendRow(row)
					row = make(table.Row, 0, 7)
				}
			}
			if len(row) > 0 {
				for len(row) < 7 {
					row = append(row, "")
				}
				t.AppendRow(row)
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM, default current")
	return cmd
}

func calendarCell(d domain.CalendarDay) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(d.Day))
	if d.Due > 0 {
		fmt.Fprintf(&b, " (%d)", d.Due)
	}
	if d.Today {
		return text.Bold.Sprint(text.FgHiCyan.Sprint(b.String()))
	}
	return b.String()
}
