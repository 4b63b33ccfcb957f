// Package natsbus mirrors realtime frames onto NATS subjects so other
// services (audit, analytics, other gateway nodes) can follow the stream.
package natsbus

import (
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/groupchat/internal/app"
	"github.com/dkeye/groupchat/internal/core"
)

type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
	ReconnectWait time.Duration
}

// Mirror implements app.Mirror with core NATS publishes (no persistence).
type Mirror struct {
	nc     *nats.Conn
	prefix string
}

func Connect(cfg Config) (*Mirror, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Name == "" {
		cfg.Name = "groupchat"
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("module", "natsbus").Msg("disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("module", "natsbus").Str("url", c.ConnectedUrl()).Msg("reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "natsbus").Str("url", cfg.URL).Msg("connected")
	return &Mirror{nc: nc, prefix: strings.TrimSuffix(cfg.SubjectPrefix, ".")}, nil
}

// Subject maps a topic to "<prefix>.<kind>[.<key>]". Dots in keys are
// replaced so a key can never add subject tokens.
func Subject(prefix string, t app.Topic) string {
	parts := make([]string, 0, 3)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, string(t.Kind))
	if t.Key != "" {
		parts = append(parts, strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(t.Key))
	}
	return strings.Join(parts, ".")
}

// Publish is buffered by the NATS client and does not wait for the server.
func (m *Mirror) Publish(t app.Topic, f core.Frame) error {
	return m.nc.Publish(Subject(m.prefix, t), f)
}

// Close flushes pending publishes.
func (m *Mirror) Close() {
	if err := m.nc.Drain(); err != nil {
		log.Warn().Err(err).Str("module", "natsbus").Msg("drain")
	}
}
