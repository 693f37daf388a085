// Command collect-otel-events reads service logs on stdin and writes a JSON
// summary of the todos.request observability events found in them.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

const maxLine = 1 << 20

func main() {
	var (
		out    string
		name   string
		domain string
	)
	cmd := &cobra.Command{
		Use:           "collect-otel-events",
		Short:         "Summarise todos.request events from service logs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newCollector(name, domain)
			sc := bufio.NewScanner(cmd.InOrStdin())
			sc.Buffer(make([]byte, 0, 64<<10), maxLine)
			for sc.Scan() {
				c.ingest(sc.Text())
			}
			if err := sc.Err(); err != nil {
				return fmt.Errorf("read logs: %w", err)
			}
			r := c.report()
			data, err := sonic.ConfigStd.MarshalIndent(r, "", "  ")
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "path to write the JSON summary")
	cmd.Flags().StringVar(&name, "event-name", todosEventName, "event name to collect")
	cmd.Flags().StringVar(&domain, "event-domain", todosEventDomain, "event domain to match, empty for any")
	_ = cmd.MarkFlagRequired("out")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
