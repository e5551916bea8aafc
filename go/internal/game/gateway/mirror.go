package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/turingroom/go/internal/game/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep messages
	MaxMsgs         int64         // Max number of messages to keep
	Replicas        int           // Number of replicas for the stream
	DuplicateWindow time.Duration // Window for duplicate detection
	QueueSize       int
	PublishTimeout  time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "ROOM_EVENTS",
		SubjectPrefix:   "rooms.events",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         -1, // No limit
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		QueueSize:       4096,
		PublishTimeout:  5 * time.Second,
	}
}

// JetStreamMirror copies room events onto a JetStream stream, one subject per room.
// Publishing happens on its own goroutine; a full queue drops events with a warning.
type JetStreamMirror struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
	queue  chan events.Event
}

func NewJetStreamMirror(ctx context.Context, cfg JetStreamConfig) (*JetStreamMirror, error) {
	opts := []nats.Option{
		nats.Name("turingroom-mirror"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultJetStreamConfig().QueueSize
	}
	m := &JetStreamMirror{
		nc:     nc,
		js:     js,
		config: cfg,
		queue:  make(chan events.Event, cfg.QueueSize),
	}
	if err := m.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return m, nil
}

func (m *JetStreamMirror) ensureStream(ctx context.Context) error {
	sc := m.streamConfig()

	stream, err := m.js.Stream(ctx, sc.Name)
	if err != nil {
		if _, err = m.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", sc.Name).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = m.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", sc.Name).Msg("updated JetStream stream")
	}
	return nil
}

func (m *JetStreamMirror) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        m.config.StreamName,
		Description: "Room events mirrored from the game hub",
		Subjects:    []string{m.config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      m.config.MaxAge,
		MaxMsgs:     m.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    m.config.Replicas,
		Duplicates:  m.config.DuplicateWindow,
	}
}

// Enqueue queues ev for publishing without blocking the caller.
func (m *JetStreamMirror) Enqueue(ev events.Event) {
	select {
	case m.queue <- ev:
	default:
		log.Warn().
			Str("room_code", ev.RoomCode).
			Str("event_id", ev.ID).
			Msg("mirror queue full, dropping event")
	}
}

// Run publishes queued events until ctx is done.
func (m *JetStreamMirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-m.queue:
			pubCtx, cancel := context.WithTimeout(ctx, m.config.PublishTimeout)
			err := m.publish(pubCtx, ev)
			cancel()
			if err != nil {
				log.Error().
					Err(err).
					Str("room_code", ev.RoomCode).
					Str("event_id", ev.ID).
					Msg("failed to mirror event")
			}
		}
	}
}

func (m *JetStreamMirror) publish(ctx context.Context, ev events.Event) error {
	msg, err := mirrorMsg(m.config.SubjectPrefix, ev)
	if err != nil {
		return err
	}
	ack, err := m.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(ev.ID),
		jetstream.WithExpectStream(m.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", ev.ID).
		Uint64("sequence", ack.Sequence).
		Msg("mirrored event to JetStream")
	return nil
}

// mirrorMsg builds the NATS message for ev on <prefix>.<room code>.
func mirrorMsg(prefix string, ev events.Event) (*nats.Msg, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &nats.Msg{
		Subject: fmt.Sprintf("%s.%s", prefix, strings.ToUpper(ev.RoomCode)),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(ev.Type)},
			"Room-Code":  []string{ev.RoomCode},
			"Event-ID":   []string{ev.ID},
		},
	}, nil
}

func (m *JetStreamMirror) Close() error {
	if m.nc != nil {
		m.nc.Close()
	}
	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
