package telemetry

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"uwbnode.dev/internal/tlog"
)

// NATSSink publishes CBOR records on subjects of the form
// <prefix>.<node>.<kind>.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
}

// DialNATS connects to the NATS server at url.
func DialNATS(url, prefix, name string, log *tlog.Logger) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf(logTag, "nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof(logTag, "nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: nats: %w", err)
	}
	return &NATSSink{nc: nc, prefix: prefix}, nil
}

func subject(prefix string, r Record) string {
	return fmt.Sprintf("%s.%04X.%s", prefix, r.Node, r.Kind)
}

func (s *NATSSink) Publish(r Record) error {
	b, err := r.Marshal()
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if err := s.nc.Publish(subject(s.prefix, r), b); err != nil {
		return fmt.Errorf("telemetry: nats: %w", err)
	}
	return nil
}

// Subscribe delivers the records of every node to fn until the
// returned subscription is drained.
func (s *NATSSink) Subscribe(fn func(Record)) (*nats.Subscription, error) {
	sub, err := s.nc.Subscribe(s.prefix+".>", func(m *nats.Msg) {
		var r Record
		if err := r.Unmarshal(m.Data); err != nil {
			return
		}
		fn(r)
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: nats: %w", err)
	}
	return sub, nil
}

// Close flushes pending records and closes the connection.
func (s *NATSSink) Close() error {
	return s.nc.Drain()
}
