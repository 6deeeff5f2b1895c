package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/erazemk/darilo/internal/config"
)

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. INFO/WARN go to stdout, ERROR goes
// to stderr. If logPath is non-empty, all levels are also written to that file.
// Returns a cleanup function that closes the log file (if opened).
func setupLogger(logPath string) (func(), error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	cleanup := func() {}

	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

// app carries the resolved configuration from the root command to its
// subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	closeFn func()
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "darilo",
		Short: "Coordinate food donations between donors, volunteers and shelters",
		Long: `darilo tracks surplus food from donors, the volunteers who pick it up
and the shelters it is delivered to.

Settings come from flags, DARILO_* environment variables and an optional
darilo.yaml (in the working directory or /etc/darilo), in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			closeLog, err := setupLogger(cfg.Log)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.closeFn = closeLog
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.closeFn != nil {
				a.closeFn()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (default: darilo.yaml if present)")
	pf.StringP("db", "d", "darilo.sqlite3", "SQLite database path")
	pf.StringP("log", "l", "", "log file path (default: no file, stdout/stderr only)")
	_ = a.v.BindPFlag("db", pf.Lookup("db"))
	pf.StringP("user", "u", "Admin", "admin username created with a new database")
	_ = a.v.BindPFlag("log", pf.Lookup("log"))
	_ = a.v.BindPFlag("admin_user", pf.Lookup("user"))

	root.AddCommand(newServeCmd(a), newInitCmd(a), newReconcileCmd(a))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
