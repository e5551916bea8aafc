package main

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/turingroom/go/internal/game/delay"
	"github.com/mcdev12/turingroom/go/internal/game/gateway"
	"github.com/mcdev12/turingroom/go/internal/game/room"
	"github.com/mcdev12/turingroom/go/internal/game/store"
	"github.com/mcdev12/turingroom/go/internal/generator"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Registry    *room.Registry
	Hub         *gateway.Hub
	Writer      *store.Writer
	Connections *gateway.ConnectionManager
	// Mirror is nil unless NATS_URL is set.
	Mirror   *gateway.JetStreamMirror
	Profiles []string
}

func setupServices(ctx context.Context, config *Config, st store.Store) (*Services, error) {
	// Store → writer; hub → registry; registry feeds snapshots back into the hub.
	clock := clockwork.NewRealClock()
	writer := store.NewWriter(st, store.DefaultWriterConfig())
	hub := gateway.NewHub(gateway.HubConfig{QueueSize: config.Stream.QueueSize}, clock)

	var (
		gen      generator.Generator
		profiles []string
	)
	if len(config.Generator.Profiles) > 0 {
		chat := generator.NewChatGenerator(config.Generator.Profiles, config.Generator.DefaultProfile)
		gen, profiles = chat, chat.Profiles()
	} else {
		log.Warn().Msg("no generator profiles configured, delegated answers use the fallback")
		gen = generator.Static{Err: generator.ErrUnavailable}
	}

	seed := config.Rooms.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	registry := room.NewRegistry(config.roomConfig(), room.Deps{
		Clock:     clock,
		Delay:     delay.NewScheduler(config.delayConfig(), seed),
		Generator: gen,
		Publisher: hub,
		Recorder:  writer,
	})
	hub.Attach(registry)

	s := &Services{
		Registry:    registry,
		Hub:         hub,
		Writer:      writer,
		Connections: gateway.NewConnectionManager(hub, registry, gateway.DefaultConnectionConfig()),
		Profiles:    profiles,
	}

	if natsURL := getEnv("NATS_URL", ""); natsURL != "" {
		jsCfg := gateway.DefaultJetStreamConfig()
		jsCfg.URL = natsURL
		mirror, err := gateway.NewJetStreamMirror(ctx, jsCfg)
		if err != nil {
			return nil, err
		}
		hub.SetMirror(mirror)
		s.Mirror = mirror
	}
	return s, nil
}

// Start runs the background workers until ctx is done.
func (s *Services) Start(ctx context.Context) error {
	// The writer outlives ctx so Stop can flush it.
	if err := s.Writer.Start(context.Background()); err != nil {
		return err
	}
	go func() {
		if err := s.Registry.Run(ctx); err != nil {
			log.Error().Err(err).Msg("room janitor stopped")
		}
	}()
	if s.Mirror != nil {
		go func() {
			if err := s.Mirror.Run(ctx); err != nil {
				log.Error().Err(err).Msg("event mirror stopped")
			}
		}()
	}
	return nil
}

// Stop flushes pending writes and closes outbound connections.
func (s *Services) Stop() {
	if err := s.Writer.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop store writer")
	}
	if s.Mirror != nil {
		s.Mirror.Close()
	}
}
