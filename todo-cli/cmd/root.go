// Package cmd is the todo command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"livetodo/internal/config"
	"livetodo/todo-cli/client"
	"livetodo/todo-cli/mirror"
)

type app struct {
	v       *viper.Viper
	logger  *log.Logger
	logFile *lumberjack.Logger
}

// newRootCmd builds the command tree. Running it without a subcommand opens
// the interactive list. The returned app must be closed once the command ran.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:           "todo",
		Short:         "A live todo list",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUI(cmd.Context())
		},
	}

	f := root.PersistentFlags()
	f.String("config", "", "config file (default $HOME/.livetodo.yaml)")
	f.String("api-url", "http://localhost:8080", "todo-api base URL")
	f.String("stream-url", "http://localhost:9000", "stream-service base URL")
	f.String("policy", "reset", "optimistic values on push: reset or retain")
	f.String("log-file", defaultLogFile(), "log file")
	f.Duration("timeout", 10*time.Second, "timeout of a single request")
	f.Bool("debug", false, "debug logging")
	_ = a.v.BindPFlags(f)
	a.v.SetEnvPrefix("LIVETODO")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		newUICmd(a),
		newLsCmd(a),
		newAddCmd(a),
		newMarkCmd(a, "done", true),
		newMarkCmd(a, "undone", false),
		newRmCmd(a),
		newEditCmd(a),
	)
	return root, a
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	root, a := newRootCmd()
	if err := execute(context.Background(), root, a); err != nil {
		fmt.Fprintln(os.Stderr, errorLine(err))
		return 1
	}
	return 0
}

// execute runs root and closes the log file whether or not the command
// failed; cobra skips post-run hooks after an error.
func execute(ctx context.Context, root *cobra.Command, a *app) error {
	defer a.close()
	cmd, err := root.ExecuteContextC(ctx)
	if err != nil && a.logger != nil && cmd != nil {
		a.logger.WithError(err).WithField("command", cmd.Name()).Error("command failed")
	}
	return err
}

func defaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "livetodo", "todo.log")
}

func (a *app) setup() error {
	if err := a.readConfig(); err != nil {
		return err
	}
	a.logger = log.New()
	config.SetupLogging(a.logger)
	if a.v.GetBool("debug") {
		a.logger.SetLevel(log.DebugLevel)
	}
	// stdout belongs to the TUI
	a.logFile = &lumberjack.Logger{
		Filename:   a.v.GetString("log-file"),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
	a.logger.SetOutput(a.logFile)
	if _, err := a.policy(); err != nil {
		return err
	}
	return nil
}

func (a *app) readConfig() error {
	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		a.v.AddConfigPath(home)
		a.v.SetConfigName(".livetodo")
		a.v.SetConfigType("yaml")
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func (a *app) close() {
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}

func (a *app) policy() (mirror.Policy, error) {
	return mirror.ParsePolicy(a.v.GetString("policy"))
}

func (a *app) client(opts ...client.Option) *client.Client {
	base := []client.Option{
		client.WithLogger(a.logger),
		client.WithHTTPClient(&http.Client{Timeout: a.v.GetDuration("timeout")}),
	}
	return client.New(a.v.GetString("api-url"), a.v.GetString("stream-url"), append(base, opts...)...)
}
