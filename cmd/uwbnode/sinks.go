package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"uwbnode.dev/internal/config"
	"uwbnode.dev/internal/tlog"
	"uwbnode.dev/telemetry"
)

// outputs are the record sinks named by a telemetry configuration.
type outputs struct {
	sinks   []telemetry.Sink
	closers []func() error
}

func openSinks(ctx context.Context, cfg config.Telemetry, name string, log *tlog.Logger) (*outputs, error) {
	o := new(outputs)
	if cfg.Serial != "" {
		rw, err := telemetry.OpenSerial(cfg.Serial, cfg.Baud)
		if err != nil {
			return nil, err
		}
		o.add(telemetry.NewLink(rw), rw.Close)
		log.Infof(logTag, "records to serial %s", cfg.Serial)
	}
	if cfg.Websocket != "" {
		hub := telemetry.NewHub(log)
		mux := http.NewServeMux()
		mux.Handle("/records", hub)
		srv := &http.Server{Addr: cfg.Websocket, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf(logTag, "websocket server: %v", err)
			}
		}()
		o.add(hub, func() error {
			hub.Close()
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
		log.Infof(logTag, "records to ws://%s/records", cfg.Websocket)
	}
	if cfg.NATS != "" {
		nc, err := telemetry.DialNATS(cfg.NATS, cfg.Subject, "uwbnode "+name, log)
		if err != nil {
			o.Close()
			return nil, err
		}
		o.add(nc, nc.Close)
		log.Infof(logTag, "records to nats %s on %s.>", cfg.NATS, cfg.Subject)
	}
	return o, nil
}

func (o *outputs) add(s telemetry.Sink, close func() error) {
	o.sinks = append(o.sinks, s)
	o.closers = append(o.closers, close)
}

// Close closes every sink, returning the first error.
func (o *outputs) Close() error {
	var first error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	o.closers = nil
	return first
}
