package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"taskflow/domain"
)

func newAddCmd(a *app) *cobra.Command {
	var due, dueTime, priority, board, desc string
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParsePriority(priority)
			if err != nil {
				return err
			}
			if err := a.checkBoard(board); err != nil {
				return err
			}
			task, added, err := a.ws.AddTask(cmd.Context(), domain.NewTask{
				Title:       strings.Join(args, " "),
				DueDate:     due,
				DueTime:     dueTime,
				Priority:    p,
				BoardID:     board,
				Description: desc,
			})
			if err != nil {
				return err
			}
			if !added {
				return errors.New("title is empty")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Added %s %q (due %s)\n", task.ID, task.Title, task.DueDate)
			return nil
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD), default today")
	cmd.Flags().StringVar(&dueTime, "time", "", "due time (HH:MM)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "High, Medium or Low")
	cmd.Flags().StringVarP(&board, "board", "b", "", "board id")
	cmd.Flags().StringVarP(&desc, "description", "d", "", "description")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var view, board, query, sortBy string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the tasks of a view",
		RunE: func(cmd *cobra.Command, _ []string) error {
			arg := board
			if strings.EqualFold(view, "search") {
				arg = query
			}
			v, err := domain.ParseView(view, arg)
			if err != nil {
				return err
			}
			mode, err := domain.ParseSortMode(sortBy)
			if err != nil {
				return err
			}
			today := a.ws.Today()
			tasks := a.ws.Visible(domain.Criteria{
				View:        v,
				ActiveBoard: board,
				Search:      query,
				Sort:        mode,
				Today:       today,
			})
			if len(tasks) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No tasks in %s.\n", v)
				return nil
			}
			renderTasks(cmd, a, tasks, today)
			return nil
		},
	}
	cmd.Flags().StringVar(&view, "view", "today", "today, inbox, upcoming, board or search")
	cmd.Flags().StringVarP(&board, "board", "b", "", "board id for the board view")
	cmd.Flags().StringVarP(&query, "search", "q", "", "filter by title or description")
	cmd.Flags().StringVar(&sortBy, "sort", "date", "date or priority")
	return cmd
}

func renderTasks(cmd *cobra.Command, a *app, tasks []domain.Task, today string) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgGreen.Sprint("ID"), text.FgGreen.Sprint(" "),
		text.FgGreen.Sprint(text.Bold.Sprint("Title")),
		text.FgGreen.Sprint("Due"), text.FgGreen.Sprint("Priority"), text.FgGreen.Sprint("Board"),
	})
	for _, task := range tasks {
		mark := " "
		if task.Completed {
			mark = "✔"
		}
		due := task.DueDate
		if task.DueTime != "" {
			due += " " + task.DueTime
		}
		if task.IsOverdue(today) {
			due = text.FgHiRed.Sprint(due)
		}
		t.AppendRow(table.Row{task.ID, mark, task.Title, due, priorityColor(task.Priority), a.boardName(task.BoardID)})
	}
	t.Render()
}

func priorityColor(p domain.Priority) string {
	switch p {
	case domain.PriorityHigh:
		return text.FgHiRed.Sprint(string(p))
	case domain.PriorityLow:
		return text.FgHiBlack.Sprint(string(p))
	default:
		return string(p)
	}
}

func newToggleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "toggle [id]",
		Aliases: []string{"done"},
		Short:   "Flip the completion state of a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, found, err := a.ws.ToggleTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("task %s not found", args[0])
			}
			state := "open"
			if task.Completed {
				state = "completed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %q is now %s\n", task.Title, state)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete [id]",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := a.ws.DeleteTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("task %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🗑️ Deleted %s\n", args[0])
			return nil
		},
	}
}
