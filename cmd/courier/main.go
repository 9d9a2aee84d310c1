package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/torosent/courier/internal/config"
	"github.com/torosent/courier/internal/httpclient"
	"github.com/torosent/courier/internal/logging"
	"github.com/torosent/courier/internal/metrics"
	"github.com/torosent/courier/internal/mock"
	"github.com/torosent/courier/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "courier",
		Short:         "Send configured HTTP requests, live or from recorded fixtures",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newSendCommand(), newFixtureCommand())
	return root
}

type sendFlags struct {
	fixture string
	path    string
	output  string
	verbose bool
}

func newSendCommand() *cobra.Command {
	var flags sendFlags
	cmd := &cobra.Command{
		Use:   "send <request-name>",
		Short: "Send a request defined in the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().LoadFlags(cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runSend(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, args[0], flags)
		},
	}
	config.RegisterFlags(cmd)
	fs := cmd.Flags()
	fs.StringVar(&flags.fixture, "fixture", "", "Answer from this recorded fixture instead of the network")
	fs.StringVar(&flags.path, "path", "", "Print only this gjson path of the response body")
	fs.StringVarP(&flags.output, "output", "o", "text", "Output format: text, json or yaml")
	fs.BoolVarP(&flags.verbose, "verbose", "v", false, "Include status line, headers and timing")
	return cmd
}

func runSend(ctx context.Context, stdout, stderr io.Writer, cfg *config.Config, name string, flags sendFlags) error {
	format, err := parseOutputFormat(flags.output)
	if err != nil {
		return err
	}

	reqCfg, ok := cfg.Request(name)
	if !ok {
		return fmt.Errorf("unknown request %q (configured: %s)", name, strings.Join(cfg.RequestNames(), ", "))
	}

	logger, err := logging.New(logging.Options{
		Debug:  cfg.Logging.Debug,
		Format: logging.Format(cfg.Logging.Format),
		File:   cfg.Logging.File,
		Output: stderr,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector()
	conn, err := newConnector(cfg, logger, provider, collector)
	if err != nil {
		return err
	}

	var opts []httpclient.SendOption
	if flags.fixture != "" {
		mc := mock.NewClient(
			mock.WithFixtureStore(mock.NewFixtureStore(cfg.Fixtures.Dir)),
			mock.WithRecording(cfg.Fixtures.Record),
			mock.WithLogger(logger),
		).Push(mock.Fixture(flags.fixture))
		opts = append(opts, httpclient.WithMockClient(mc))
	}

	start := time.Now()
	resp, err := httpclient.Send(ctx, conn, newRequest(reqCfg), opts...)
	if err != nil {
		if errors.Is(err, mock.ErrFixtureMissing) {
			return fmt.Errorf("%w (pass --record to save a live response)", err)
		}
		return err
	}
	elapsed := time.Since(start)

	stats := collector.Stats(elapsed)
	logger.Debug("send finished",
		zap.String("request", name),
		zap.Int("status", resp.Status()),
		zap.Bool("mocked", resp.IsMocked()),
		zap.Int64("sends", stats.Total),
		zap.Duration("max_latency", stats.MaxLatency),
	)

	if err := printResponse(stdout, resp, printOptions{
		format:  format,
		path:    flags.path,
		verbose: flags.verbose,
		elapsed: elapsed,
	}); err != nil {
		return err
	}
	return resp.Throw()
}

func newFixtureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Inspect recorded fixtures",
	}

	var dir string
	show := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a fixture in its normalized form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showFixture(cmd.OutOrStdout(), dir, args[0])
		},
	}
	show.Flags().StringVar(&dir, "dir", config.DefaultFixtureDir, "Directory holding recorded fixtures")
	cmd.AddCommand(show)
	return cmd
}

func showFixture(w io.Writer, dir, name string) error {
	recorded, err := mock.NewFixtureStore(dir).Load(name)
	if err != nil {
		return err
	}
	data, err := recorded.ToFile()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		_, err = fmt.Fprintln(w)
	}
	return err
}
