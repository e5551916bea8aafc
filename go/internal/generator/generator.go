// Package generator produces stand-in answers for subjects who delegate to their responder.
package generator

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no generator profile can serve a request.
var ErrUnavailable = errors.New("generator unavailable")

// Exchange is an earlier question the subject answered in their own words.
type Exchange struct {
	Question string
	Answer   string
}

// Conversation is the context handed to a generator alongside the subject's instruction.
type Conversation struct {
	RoomCode  string
	Nickname  string
	ProfileID string
	Question  string
	History   []Exchange
}

// Generator returns answer text for a question or fails.
type Generator interface {
	Generate(ctx context.Context, instruction string, convo Conversation) (string, error)
}

// Func adapts a plain function to Generator.
type Func func(ctx context.Context, instruction string, convo Conversation) (string, error)

func (f Func) Generate(ctx context.Context, instruction string, convo Conversation) (string, error) {
	return f(ctx, instruction, convo)
}

// Static always returns Text, or Err when set.
type Static struct {
	Text string
	Err  error
}

func (s Static) Generate(ctx context.Context, _ string, _ Conversation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Err != nil {
		return "", s.Err
	}
	return s.Text, nil
}
