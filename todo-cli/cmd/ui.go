package cmd

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"livetodo/internal/contract"
	"livetodo/todo-cli/client"
	"livetodo/todo-cli/session"
	"livetodo/todo-cli/tui"
)

func newUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the interactive list (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUI(cmd.Context())
		},
	}
}

func (a *app) runUI(ctx context.Context) error {
	policy, err := a.policy()
	if err != nil {
		return err
	}
	cfg := session.DefaultConfig()
	cfg.Policy = policy
	cfg.Timeout = a.v.GetDuration("timeout")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var p *tea.Program
	c := a.client(client.WithOnDisconnect(func(err error) {
		p.Send(tui.StreamErrMsg{Err: err})
	}))
	sess := session.New(c, cfg, a.logger)
	p = tea.NewProgram(tui.New(sess), tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		_ = c.Subscribe(ctx, func(todos []contract.Todo) {
			p.Send(tui.SnapshotMsg(todos))
		})
	}()

	a.logger.WithField("policy", policy).Info("ui started")
	_, err = p.Run()
	cancel()
	sess.Close()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
