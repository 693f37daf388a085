package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"livetodo/internal/contract"
	"livetodo/todo-cli/tui"
)

func newLsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List todos, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			todos, err := a.client().GetAllTodos(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(todos) == 0 {
				fmt.Fprintln(out, "no todos")
				return nil
			}
			for i, t := range todos {
				fmt.Fprintf(out, "%2d. %s\n", i+1, tui.RenderRow(t.Text, t.Completed))
			}
			return nil
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <text...>",
		Short: "Create a todo",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return fmt.Errorf("text cannot be empty")
			}
			id, err := a.client().CreateTodo(cmd.Context(), text)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okLine("created "+id))
			return nil
		},
	}
}

func newMarkCmd(a *app, use string, completed bool) *cobra.Command {
	short := "Mark a todo as done"
	if !completed {
		short = "Mark a todo as not done"
	}
	return &cobra.Command{
		Use:   use + " <n>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client()
			t, err := resolve(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}
			if err := c.MarkTodo(cmd.Context(), t.ID, completed); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okLine(use+": "+t.Text))
			return nil
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <n>",
		Aliases: []string{"delete"},
		Short:   "Delete a todo",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client()
			t, err := resolve(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}
			if err := c.DeleteTodo(cmd.Context(), t.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okLine("deleted: "+t.Text))
			return nil
		},
	}
}

func newEditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <n> <text...>",
		Short: "Replace the text of a todo",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args[1:], " "))
			if text == "" {
				return fmt.Errorf("text cannot be empty")
			}
			c := a.client()
			t, err := resolve(cmd.Context(), c, args[0])
			if err != nil {
				return err
			}
			if err := c.UpdateTodo(cmd.Context(), t.ID, text); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okLine("updated: "+text))
			return nil
		},
	}
}

type lister interface {
	GetAllTodos(ctx context.Context) ([]contract.Todo, error)
}

// resolve maps a 1-based position in the ls output to a record.
func resolve(ctx context.Context, c lister, arg string) (contract.Todo, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return contract.Todo{}, fmt.Errorf("invalid todo number %q", arg)
	}
	todos, err := c.GetAllTodos(ctx)
	if err != nil {
		return contract.Todo{}, err
	}
	if n > len(todos) {
		return contract.Todo{}, fmt.Errorf("no todo #%d (%d todos)", n, len(todos))
	}
	return todos[n-1], nil
}
