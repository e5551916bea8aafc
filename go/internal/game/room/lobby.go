package room

import (
	"crypto/subtle"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/turingroom/go/internal/game/events"
	"github.com/mcdev12/turingroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// JoinRoom adds a player to a waiting room. Checks run in order: unknown code, secret
// mismatch, room full, game already started, nickname taken.
func (r *Registry) JoinRoom(code, secret, nickname string) (models.Player, error) {
	var player models.Player
	err := r.with(code, func(e *entry) error {
		room := e.state.Room
		if room.HasSecret() && subtle.ConstantTimeCompare([]byte(room.Secret), []byte(strings.TrimSpace(secret))) != 1 {
			return fmt.Errorf("%w: wrong room secret", models.ErrForbidden)
		}
		if len(room.MemberIDs) >= room.Config.MaxPlayers {
			return fmt.Errorf("%w: room has %d players", models.ErrFull, len(room.MemberIDs))
		}
		if room.Status != models.RoomStatusWaiting {
			return fmt.Errorf("%w: game already %s", models.ErrInvalidState, room.Status)
		}
		name, err := cleanNickname(nickname)
		if err != nil {
			return err
		}
		for _, p := range e.state.Members() {
			if strings.EqualFold(p.Nickname, name) {
				return fmt.Errorf("%w: nickname %q is taken", models.ErrInvalidInput, name)
			}
		}

		now := r.deps.Clock.Now()
		p := &models.Player{
			ID:       uuid.NewString(),
			RoomCode: room.Code,
			Nickname: name,
			JoinedAt: now,
		}
		e.state.Players[p.ID] = p
		room.MemberIDs = append(room.MemberIDs, p.ID)
		e.activeAt = now

		r.deps.Recorder.RecordPlayer(*p)
		r.deps.Recorder.RecordRoom(*room)
		e.machine.Emit(events.TypePlayerJoined, events.PlayerJoinedPayload{PlayerID: p.ID, Nickname: p.Nickname})

		log.Info().
			Str("room_code", room.Code).
			Str("player_id", p.ID).
			Int("members", len(room.MemberIDs)).
			Msg("player joined")
		player = *p
		return nil
	})
	return player, err
}

// SetReady marks a member ready or not ready while the room is waiting.
func (r *Registry) SetReady(code, playerID string, ready bool) error {
	return r.withMember(code, playerID, func(e *entry, p *models.Player) error {
		if e.state.Room.Status != models.RoomStatusWaiting {
			return fmt.Errorf("%w: game already %s", models.ErrInvalidState, e.state.Room.Status)
		}
		p.Ready = ready
		r.deps.Recorder.RecordPlayer(*p)
		e.machine.Emit(events.TypePlayerReady, events.PlayerReadyPayload{PlayerID: p.ID, Ready: ready})
		return nil
	})
}

// StartGame moves the room into setup. Only the owner may start, and only once enough
// members have joined and every member is ready.
func (r *Registry) StartGame(code, requesterID string) error {
	return r.withMember(code, requesterID, func(e *entry, _ *models.Player) error {
		room := e.state.Room
		if room.OwnerID != requesterID {
			return fmt.Errorf("%w: only the owner can start the game", models.ErrForbidden)
		}
		if room.Status != models.RoomStatusWaiting {
			return fmt.Errorf("%w: game already %s", models.ErrInvalidState, room.Status)
		}
		if n := len(room.MemberIDs); n < room.Config.MinPlayers {
			return fmt.Errorf("%w: %d of %d players needed", models.ErrInvalidState, n, room.Config.MinPlayers)
		}
		for _, p := range e.state.Members() {
			if !p.Ready {
				return fmt.Errorf("%w: %s is not ready", models.ErrInvalidState, p.Nickname)
			}
		}
		return e.machine.Start()
	})
}

// LeaveRoom removes a member. The last member leaving closes the room.
func (r *Registry) LeaveRoom(code, playerID string) error {
	return r.withMember(code, playerID, func(e *entry, _ *models.Player) error {
		r.removeMember(e, playerID, "left")
		return nil
	})
}

// KickPlayer lets the owner remove another member before the game starts.
func (r *Registry) KickPlayer(code, ownerID, targetID string) error {
	return r.withMember(code, ownerID, func(e *entry, _ *models.Player) error {
		room := e.state.Room
		if room.OwnerID != ownerID {
			return fmt.Errorf("%w: only the owner can kick", models.ErrForbidden)
		}
		if targetID == ownerID {
			return fmt.Errorf("%w: the owner cannot kick themselves", models.ErrInvalidInput)
		}
		if room.Status != models.RoomStatusWaiting {
			return fmt.Errorf("%w: players can only be kicked before the game starts", models.ErrInvalidState)
		}
		if !room.IsMember(targetID) {
			return fmt.Errorf("%w: player %s", models.ErrNotFound, targetID)
		}
		r.removeMember(e, targetID, "kicked")
		return nil
	})
}

// DisbandRoom lets the owner close the room for everyone.
func (r *Registry) DisbandRoom(code, ownerID string) error {
	return r.withMember(code, ownerID, func(e *entry, _ *models.Player) error {
		if e.state.Room.OwnerID != ownerID {
			return fmt.Errorf("%w: only the owner can disband the room", models.ErrForbidden)
		}
		r.teardown(e, ClosedDisbanded)
		return nil
	})
}

// SetOnline records whether a member currently has a live event subscription.
func (r *Registry) SetOnline(code, playerID string, online bool) error {
	return r.withMember(code, playerID, func(e *entry, p *models.Player) error {
		if p.Online == online {
			return nil
		}
		p.Online = online
		r.deps.Recorder.RecordPlayer(*p)
		e.machine.Emit(events.TypePlayerPresence, events.PlayerPresencePayload{PlayerID: p.ID, Online: online})
		return nil
	})
}

// removeMember drops playerID from the room, hands ownership on if needed and lets the
// machine react. Must hold e.mu.
func (r *Registry) removeMember(e *entry, playerID, reason string) {
	room := e.state.Room
	room.MemberIDs = slices.DeleteFunc(room.MemberIDs, func(id string) bool { return id == playerID })
	delete(e.state.Players, playerID)
	r.deps.Recorder.ForgetPlayer(room.Code, playerID)

	payload := events.PlayerLeftPayload{PlayerID: playerID, Reason: reason}
	if len(room.MemberIDs) == 0 {
		e.machine.Emit(events.TypePlayerLeft, payload)
		r.teardown(e, ClosedEmpty)
		return
	}
	if room.OwnerID == playerID {
		room.OwnerID = room.MemberIDs[0]
		payload.NewOwnerID = room.OwnerID
	}
	r.deps.Recorder.RecordRoom(*room)
	e.machine.Emit(events.TypePlayerLeft, payload)

	log.Info().
		Str("room_code", room.Code).
		Str("player_id", playerID).
		Str("reason", reason).
		Int("members", len(room.MemberIDs)).
		Msg("player left")

	e.machine.HandleDeparture(playerID)
}
