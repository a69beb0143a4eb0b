// Command uwbnode runs a DW1000 two-way ranging anchor or tag, a
// simulated network of them, or a monitor for their range records.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"uwbnode.dev/internal/config"
	"uwbnode.dev/internal/tlog"
	"uwbnode.dev/ranging"
)

// Version is set by the Go linker with -ldflags='-X main.Version=...'.
var Version string

const logTag = "uwbnode"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "uwbnode: %v\n", err)
		os.Exit(2)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

type options struct {
	stderr io.Writer

	config   string
	logLevel string
	address  string
	jsonLog  bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	o := &options{stderr: stderr}
	ver := Version
	if ver == "" {
		ver = "devel"
	}
	root := &cobra.Command{
		Use:   "uwbnode",
		Short: "DW1000 two-way ranging node",
		Long: `uwbnode runs the two-way ranging protocol on a DW1000 transceiver.

Anchors answer the Blinks of tags, tags range against every anchor they
discover. Range records go to the log and optionally to a serial link,
websocket clients and a NATS server, as configured.

The configuration file is YAML; UWB_* environment variables and flags
override it.`,
		Version:       ver,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	pf := root.PersistentFlags()
	pf.StringVarP(&o.config, "config", "c", "", "YAML configuration file")
	pf.StringVar(&o.logLevel, "log-level", "", "Log level (vrb, dbg, inf, war, err)")
	pf.StringVarP(&o.address, "address", "a", "", "Short address, such as 7D:00")
	pf.BoolVar(&o.jsonLog, "json", false, "Log JSON records instead of text")

	root.AddCommand(
		newNodeCmd(o, ranging.Anchor),
		newNodeCmd(o, ranging.Tag),
		newSimCmd(o),
		newMonitorCmd(o),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), ver)
			},
		},
	)
	return root
}

// load reads the configuration and applies the flags to it. A
// non-empty role overrides the configured one.
func (o *options) load(role string) (*config.Config, *tlog.Logger, error) {
	cfg, err := config.Load(o.config)
	if err != nil {
		return nil, nil, err
	}
	if role != "" {
		cfg.Role = role
	}
	if o.address != "" {
		cfg.Address = o.address
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	var log *tlog.Logger
	if o.jsonLog {
		log = tlog.New(o.stderr)
	} else {
		log = tlog.New(zerolog.ConsoleWriter{Out: o.stderr, TimeFormat: "15:04:05.000"})
	}
	if err := cfg.ConfigureLogger(log); err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// loop ticks e every period until ctx is done.
func loop(ctx context.Context, e *ranging.Engine, period time.Duration) {
	if period <= 0 {
		period = time.Millisecond
	}
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.Tick()
		}
	}
}
