package main

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"uwbnode.dev/internal/tlog"
	"uwbnode.dev/telemetry"
)

func newMonitorCmd(o *options) *cobra.Command {
	var serialDev, natsURL string
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print the range records of other nodes",
		Long: `Print range records received from a serial link, a NATS server, or
both. Without flags the configured telemetry sources are used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := o.load("")
			if err != nil {
				return err
			}
			if serialDev == "" {
				serialDev = cfg.Telemetry.Serial
			}
			if natsURL == "" {
				natsURL = cfg.Telemetry.NATS
			}
			if serialDev == "" && natsURL == "" {
				return errors.New("monitor: no serial device or NATS server")
			}
			var mu sync.Mutex
			show := func(r telemetry.Record) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			ctx := cmd.Context()
			if natsURL != "" {
				nc, err := telemetry.DialNATS(natsURL, cfg.Telemetry.Subject, "uwbnode monitor", log)
				if err != nil {
					return err
				}
				defer nc.Close()
				if _, err := nc.Subscribe(show); err != nil {
					return err
				}
				log.Infof(logTag, "listening on %s.>", cfg.Telemetry.Subject)
			}
			if serialDev != "" {
				rw, err := telemetry.OpenSerial(serialDev, cfg.Telemetry.Baud)
				if err != nil {
					return err
				}
				go func() {
					<-ctx.Done()
					rw.Close()
				}()
				err = readLink(telemetry.NewLink(rw), show, log)
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&serialDev, "serial", "", "Serial device carrying records")
	fl.StringVar(&natsURL, "nats", "", "NATS server URL")
	return cmd
}

// readLink passes the records of l to fn until the link fails.
// Corrupt frames are logged and skipped.
func readLink(l *telemetry.Link, fn func(telemetry.Record), log *tlog.Logger) error {
	for {
		r, err := l.Next()
		switch {
		case err == nil:
			fn(r)
		case errors.Is(err, telemetry.ErrChecksum):
			log.Warnf(logTag, "serial: %v", err)
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return err
		}
	}
}
