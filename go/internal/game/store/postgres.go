package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/mcdev12/turingroom/go/internal/models"
	"github.com/sqlc-dev/pqtype"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
    code          TEXT PRIMARY KEY,
    secret        TEXT NOT NULL DEFAULT '',
    owner_id      TEXT NOT NULL,
    status        TEXT NOT NULL,
    member_ids    TEXT[] NOT NULL DEFAULT '{}',
    current_round INT NOT NULL DEFAULT 0,
    total_rounds  INT NOT NULL DEFAULT 0,
    config        JSONB NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    started_at    TIMESTAMPTZ,
    finished_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS players (
    room_code             TEXT NOT NULL REFERENCES rooms(code) ON DELETE CASCADE,
    id                    TEXT NOT NULL,
    nickname              TEXT NOT NULL,
    ready                 BOOLEAN NOT NULL DEFAULT FALSE,
    online                BOOLEAN NOT NULL DEFAULT FALSE,
    responder             JSONB,
    score                 INT NOT NULL DEFAULT 0,
    times_as_interrogator INT NOT NULL DEFAULT 0,
    times_as_subject      INT NOT NULL DEFAULT 0,
    generator_uses        INT NOT NULL DEFAULT 0,
    consecutive_correct   INT NOT NULL DEFAULT 0,
    joined_at             TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (room_code, id)
);

CREATE TABLE IF NOT EXISTS rounds (
    room_code       TEXT NOT NULL REFERENCES rooms(code) ON DELETE CASCADE,
    round_number    INT NOT NULL,
    interrogator_id TEXT NOT NULL,
    subject_id      TEXT NOT NULL,
    phase           TEXT NOT NULL,
    question        TEXT NOT NULL DEFAULT '',
    answer          TEXT NOT NULL DEFAULT '',
    origin          TEXT NOT NULL DEFAULT '',
    abandoned       BOOLEAN NOT NULL DEFAULT FALSE,
    started_at      TIMESTAMPTZ NOT NULL,
    asked_at        TIMESTAMPTZ,
    submitted_at    TIMESTAMPTZ,
    display_at      TIMESTAMPTZ,
    revealed_at     TIMESTAMPTZ,
    PRIMARY KEY (room_code, round_number),
    CHECK (interrogator_id <> subject_id)
);

CREATE TABLE IF NOT EXISTS votes (
    room_code    TEXT NOT NULL,
    round_number INT NOT NULL,
    voter_id     TEXT NOT NULL,
    choice       TEXT NOT NULL,
    correct      BOOLEAN,
    cast_at      TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (room_code, round_number, voter_id),
    FOREIGN KEY (room_code, round_number) REFERENCES rounds(room_code, round_number) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS rooms_finished_at_idx ON rooms (finished_at) WHERE finished_at IS NOT NULL;
`

// Postgres is a Store over database/sql with the lib/pq driver.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the tables when they are missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) UpsertRoom(ctx context.Context, room models.Room) error {
	config, err := json.Marshal(room.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal room config: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO rooms (
		  code, secret, owner_id, status, member_ids, current_round,
		  total_rounds, config, created_at, started_at, finished_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (code) DO UPDATE SET
		  owner_id = EXCLUDED.owner_id,
		  status = EXCLUDED.status,
		  member_ids = EXCLUDED.member_ids,
		  current_round = EXCLUDED.current_round,
		  total_rounds = EXCLUDED.total_rounds,
		  config = EXCLUDED.config,
		  started_at = EXCLUDED.started_at,
		  finished_at = EXCLUDED.finished_at
	`,
		room.Code, room.Secret, room.OwnerID, string(room.Status), pq.Array(room.MemberIDs),
		room.CurrentRound, room.TotalRounds, config, room.CreatedAt, room.StartedAt, room.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert room %s: %w", room.Code, err)
	}
	return nil
}

func (p *Postgres) DeleteRoom(ctx context.Context, code string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM rooms WHERE code = $1`, code); err != nil {
		return fmt.Errorf("failed to delete room %s: %w", code, err)
	}
	return nil
}

func (p *Postgres) UpsertPlayer(ctx context.Context, player models.Player) error {
	responder, err := responderColumn(player.Responder)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO players (
		  room_code, id, nickname, ready, online, responder, score,
		  times_as_interrogator, times_as_subject, generator_uses, consecutive_correct, joined_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (room_code, id) DO UPDATE SET
		  nickname = EXCLUDED.nickname,
		  ready = EXCLUDED.ready,
		  online = EXCLUDED.online,
		  responder = EXCLUDED.responder,
		  score = EXCLUDED.score,
		  times_as_interrogator = EXCLUDED.times_as_interrogator,
		  times_as_subject = EXCLUDED.times_as_subject,
		  generator_uses = EXCLUDED.generator_uses,
		  consecutive_correct = EXCLUDED.consecutive_correct
	`,
		player.RoomCode, player.ID, player.Nickname, player.Ready, player.Online, responder, player.Score,
		player.TimesAsInterrogator, player.TimesAsSubject, player.GeneratorUses, player.ConsecutiveCorrect, player.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert player %s: %w", player.ID, err)
	}
	return nil
}

func (p *Postgres) DeletePlayer(ctx context.Context, roomCode, playerID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM players WHERE room_code = $1 AND id = $2`, roomCode, playerID)
	if err != nil {
		return fmt.Errorf("failed to delete player %s: %w", playerID, err)
	}
	return nil
}

func (p *Postgres) UpsertRound(ctx context.Context, round models.Round) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rounds (
		  room_code, round_number, interrogator_id, subject_id, phase, question, answer,
		  origin, abandoned, started_at, asked_at, submitted_at, display_at, revealed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (room_code, round_number) DO UPDATE SET
		  phase = EXCLUDED.phase,
		  question = EXCLUDED.question,
		  answer = EXCLUDED.answer,
		  origin = EXCLUDED.origin,
		  abandoned = EXCLUDED.abandoned,
		  asked_at = EXCLUDED.asked_at,
		  submitted_at = EXCLUDED.submitted_at,
		  display_at = EXCLUDED.display_at,
		  revealed_at = EXCLUDED.revealed_at
		WHERE rounds.phase <> 'revealed'
	`,
		round.RoomCode, round.Number, round.InterrogatorID, round.SubjectID, string(round.Phase),
		round.Question, round.Answer, string(round.Origin), round.Abandoned, round.StartedAt,
		round.AskedAt, round.SubmittedAt, round.DisplayAt, round.RevealedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert round %s/%d: %w", round.RoomCode, round.Number, err)
	}
	return nil
}

func (p *Postgres) UpsertVote(ctx context.Context, vote models.Vote) error {
	var correct sql.NullBool
	if vote.Correct != nil {
		correct = sql.NullBool{Bool: *vote.Correct, Valid: true}
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO votes (room_code, round_number, voter_id, choice, correct, cast_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (room_code, round_number, voter_id) DO UPDATE SET
		  choice = EXCLUDED.choice,
		  correct = EXCLUDED.correct,
		  cast_at = EXCLUDED.cast_at
	`,
		vote.RoomCode, vote.RoundNumber, vote.VoterID, string(vote.Choice), correct, vote.CastAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vote %s/%d/%s: %w", vote.RoomCode, vote.RoundNumber, vote.VoterID, err)
	}
	return nil
}

// responderColumn stores an unconfigured responder as NULL.
func responderColumn(cfg models.ResponderConfig) (pqtype.NullRawMessage, error) {
	if cfg == (models.ResponderConfig{}) {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to marshal responder config: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}
