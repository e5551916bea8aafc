package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/turingroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

type WriterConfig struct {
	QueueSize    int
	MaxRetries   int
	RetryDelay   time.Duration
	WriteTimeout time.Duration
}

func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		QueueSize:    1024,
		MaxRetries:   3,
		RetryDelay:   200 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}

type writeOp struct {
	kind  string
	key   string
	apply func(ctx context.Context, s Store) error
}

// Writer applies snapshot writes to a Store in the order they were recorded, off the
// caller's goroutine. Failed writes are retried with linear backoff and then logged.
type Writer struct {
	store  Store
	config WriterConfig
	clock  clockwork.Clock
	queue  chan writeOp

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWriter(s Store, cfg WriterConfig) *Writer {
	return &Writer{
		store:    s,
		config:   cfg,
		clock:    clockwork.NewRealClock(),
		queue:    make(chan writeOp, cfg.QueueSize),
		stopChan: make(chan struct{}),
	}
}

func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("store writer already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().Int("queue_size", w.config.QueueSize).Msg("store writer started")
	return nil
}

// Stop flushes queued writes and waits for the writer to exit.
func (w *Writer) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("store writer not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	log.Info().Msg("store writer stopped")
	return nil
}

func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			w.drain(ctx)
			return
		case op := <-w.queue:
			w.apply(ctx, op)
		}
	}
}

func (w *Writer) drain(ctx context.Context) {
	for {
		select {
		case op := <-w.queue:
			w.apply(ctx, op)
		default:
			return
		}
	}
}

func (w *Writer) apply(ctx context.Context, op writeOp) {
	if err := w.writeWithRetry(ctx, op); err != nil {
		log.Error().
			Err(err).
			Str("kind", op.kind).
			Str("key", op.key).
			Msg("dropping snapshot write")
	}
}

func (w *Writer) writeWithRetry(ctx context.Context, op writeOp) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.clock.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		writeCtx, cancel := context.WithTimeout(ctx, w.config.WriteTimeout)
		err := op.apply(writeCtx, w.store)
		cancel()
		if err == nil {
			return nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Str("kind", op.kind).
			Str("key", op.key).
			Int("attempt", attempt+1).
			Msg("snapshot write failed, retrying")
	}

	return errors.Join(models.ErrTransientIO, fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr))
}

func (w *Writer) enqueue(op writeOp) {
	select {
	case w.queue <- op:
	default:
		log.Warn().Str("kind", op.kind).Str("key", op.key).Msg("store writer queue full, dropping write")
	}
}

func (w *Writer) RecordRoom(room models.Room) {
	room = room.Clone()
	w.enqueue(writeOp{kind: "room", key: room.Code, apply: func(ctx context.Context, s Store) error {
		return s.UpsertRoom(ctx, room)
	}})
}

func (w *Writer) ForgetRoom(code string) {
	w.enqueue(writeOp{kind: "room_delete", key: code, apply: func(ctx context.Context, s Store) error {
		return s.DeleteRoom(ctx, code)
	}})
}

func (w *Writer) RecordPlayer(player models.Player) {
	w.enqueue(writeOp{kind: "player", key: player.RoomCode + "/" + player.ID, apply: func(ctx context.Context, s Store) error {
		return s.UpsertPlayer(ctx, player)
	}})
}

func (w *Writer) ForgetPlayer(roomCode, playerID string) {
	w.enqueue(writeOp{kind: "player_delete", key: roomCode + "/" + playerID, apply: func(ctx context.Context, s Store) error {
		return s.DeletePlayer(ctx, roomCode, playerID)
	}})
}

func (w *Writer) RecordRound(round models.Round) {
	round = round.Clone()
	w.enqueue(writeOp{kind: "round", key: fmt.Sprintf("%s/%d", round.RoomCode, round.Number), apply: func(ctx context.Context, s Store) error {
		return s.UpsertRound(ctx, round)
	}})
}

func (w *Writer) RecordVote(vote models.Vote) {
	vote = vote.Clone()
	w.enqueue(writeOp{kind: "vote", key: fmt.Sprintf("%s/%d/%s", vote.RoomCode, vote.RoundNumber, vote.VoterID), apply: func(ctx context.Context, s Store) error {
		return s.UpsertVote(ctx, vote)
	}})
}
