// Package delay decides when a submitted answer becomes visible to the jury.
package delay

import (
	"math/rand"
	"sync"
	"time"

	"github.com/mcdev12/turingroom/go/internal/models"
)

// Config holds the display-delay bounds.
type Config struct {
	GeneratedMin time.Duration
	GeneratedMax time.Duration
	// SelfFloor is the earliest a self answer may appear after the question was asked.
	SelfFloor time.Duration
	JitterMax time.Duration
}

// DefaultConfig returns the stock delay bounds.
func DefaultConfig() Config {
	return Config{
		GeneratedMin: 5 * time.Second,
		GeneratedMax: 15 * time.Second,
		SelfFloor:    5 * time.Second,
		JitterMax:    3 * time.Second,
	}
}

// Scheduler computes display timestamps. It is safe for concurrent use; a fixed seed
// yields a fixed sequence of draws.
type Scheduler struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// NewScheduler creates a scheduler seeded with seed.
func NewScheduler(cfg Config, seed int64) *Scheduler {
	return &Scheduler{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// ComputeDisplayTime returns submittedAt plus a base delay and jitter. Generated answers
// get a uniform base in [GeneratedMin, GeneratedMax]; self answers are held until at least
// SelfFloor after askedAt. The result is never before submittedAt.
func (s *Scheduler) ComputeDisplayTime(origin models.AnswerOrigin, askedAt, submittedAt time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	var base time.Duration
	switch origin {
	case models.OriginGenerated:
		base = s.cfg.GeneratedMin + s.uniform(s.cfg.GeneratedMax-s.cfg.GeneratedMin)
	default:
		elapsed := max(submittedAt.Sub(askedAt), 0)
		base = max(s.cfg.SelfFloor-elapsed, 0)
	}

	return submittedAt.Add(base + s.uniform(s.cfg.JitterMax))
}

// uniform draws from [0, limit].
func (s *Scheduler) uniform(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(s.rng.Int63n(int64(limit) + 1))
}
