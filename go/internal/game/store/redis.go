package store

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/turingroom/go/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key the Redis store writes.
const DefaultRedisPrefix = "turingroom"

// Redis keeps one JSON document per room plus a hash each for players,
// rounds and votes:
//
//	<prefix>:room:<code>          string
//	<prefix>:room:<code>:players  hash  player id -> json
//	<prefix>:room:<code>:rounds   hash  round number -> json
//	<prefix>:room:<code>:votes    hash  "<round>:<voter>" -> json
//
// Once a room is written as finished all four keys expire after finishedTTL
// (zero keeps them forever).
type Redis struct {
	client      redis.UniversalClient
	prefix      string
	finishedTTL time.Duration
}

func NewRedis(client redis.UniversalClient, prefix string, finishedTTL time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix, finishedTTL: finishedTTL}
}

// redisRoom carries the join secret, which the public room encoding omits.
type redisRoom struct {
	models.Room
	Secret string `json:"secret,omitempty"`
}

type roomKeys struct {
	room, players, rounds, votes string
}

func (r *Redis) keys(code string) roomKeys {
	base := r.prefix + ":room:" + code
	return roomKeys{
		room:    base,
		players: base + ":players",
		rounds:  base + ":rounds",
		votes:   base + ":votes",
	}
}

func (k roomKeys) all() []string {
	return []string{k.room, k.players, k.rounds, k.votes}
}

func (r *Redis) UpsertRoom(ctx context.Context, room models.Room) error {
	data, err := json.Marshal(redisRoom{Room: room, Secret: room.Secret})
	if err != nil {
		return fmt.Errorf("encode room %s: %w", room.Code, err)
	}
	k := r.keys(room.Code)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, k.room, data, 0)
		if room.Status == models.RoomStatusFinished && r.finishedTTL > 0 {
			for _, key := range k.all() {
				pipe.Expire(ctx, key, r.finishedTTL)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert room %s: %w", room.Code, err)
	}
	return nil
}

func (r *Redis) DeleteRoom(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, r.keys(code).all()...).Err(); err != nil {
		return fmt.Errorf("delete room %s: %w", code, err)
	}
	return nil
}

func (r *Redis) UpsertPlayer(ctx context.Context, player models.Player) error {
	return r.hset(ctx, r.keys(player.RoomCode).players, player.ID, player)
}

func (r *Redis) DeletePlayer(ctx context.Context, roomCode, playerID string) error {
	if err := r.client.HDel(ctx, r.keys(roomCode).players, playerID).Err(); err != nil {
		return fmt.Errorf("delete player %s/%s: %w", roomCode, playerID, err)
	}
	return nil
}

func (r *Redis) UpsertRound(ctx context.Context, round models.Round) error {
	return r.hset(ctx, r.keys(round.RoomCode).rounds, strconv.Itoa(round.Number), round)
}

func (r *Redis) UpsertVote(ctx context.Context, vote models.Vote) error {
	field := strconv.Itoa(vote.RoundNumber) + ":" + vote.VoterID
	return r.hset(ctx, r.keys(vote.RoomCode).votes, field, vote)
}

func (r *Redis) hset(ctx context.Context, key, field string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s[%s]: %w", key, field, err)
	}
	if err := r.client.HSet(ctx, key, field, data).Err(); err != nil {
		return fmt.Errorf("hset %s[%s]: %w", key, field, err)
	}
	return nil
}

// History is everything stored for one room.
type History struct {
	Room    models.Room
	Players []models.Player
	Rounds  []models.Round
	Votes   []models.Vote
}

// LoadHistory reads a room back. Rounds come ordered by number, votes by
// round then voter, players by join time.
func (r *Redis) LoadHistory(ctx context.Context, code string) (History, error) {
	k := r.keys(code)
	data, err := r.client.Get(ctx, k.room).Bytes()
	if errors.Is(err, redis.Nil) {
		return History{}, fmt.Errorf("%w: room %s", models.ErrNotFound, code)
	}
	if err != nil {
		return History{}, fmt.Errorf("load room %s: %w", code, err)
	}
	var stored redisRoom
	if err := json.Unmarshal(data, &stored); err != nil {
		return History{}, fmt.Errorf("decode room %s: %w", code, err)
	}
	h := History{Room: stored.Room}
	h.Room.Secret = stored.Secret

	if h.Players, err = loadHash[models.Player](ctx, r.client, k.players); err != nil {
		return History{}, err
	}
	if h.Rounds, err = loadHash[models.Round](ctx, r.client, k.rounds); err != nil {
		return History{}, err
	}
	if h.Votes, err = loadHash[models.Vote](ctx, r.client, k.votes); err != nil {
		return History{}, err
	}

	slices.SortFunc(h.Players, func(a, b models.Player) int { return a.JoinedAt.Compare(b.JoinedAt) })
	slices.SortFunc(h.Rounds, func(a, b models.Round) int { return cmp.Compare(a.Number, b.Number) })
	slices.SortFunc(h.Votes, func(a, b models.Vote) int {
		return cmp.Or(cmp.Compare(a.RoundNumber, b.RoundNumber), strings.Compare(a.VoterID, b.VoterID))
	})
	return h, nil
}

func loadHash[T any](ctx context.Context, client redis.UniversalClient, key string) ([]T, error) {
	fields, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	out := make([]T, 0, len(fields))
	for field, raw := range fields {
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode %s[%s]: %w", key, field, err)
		}
		out = append(out, v)
	}
	return out, nil
}
