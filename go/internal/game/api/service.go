// Package api exposes room actions as a connect RoomService carrying JSON messages.
package api

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mcdev12/turingroom/go/internal/game/events"
	"github.com/mcdev12/turingroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// PlayerHeader carries the acting player's id on every room action.
const PlayerHeader = "X-Player-ID"

const maxBodyBytes = 64 << 10

// Rooms is what the service needs from the room registry.
type Rooms interface {
	CreateRoom(cfg models.GameConfig, ownerNickname, secret string) (models.Room, models.Player, error)
	JoinRoom(code, secret, nickname string) (models.Player, error)
	SetReady(code, playerID string, ready bool) error
	StartGame(code, requesterID string) error
	LeaveRoom(code, playerID string) error
	KickPlayer(code, ownerID, targetID string) error
	DisbandRoom(code, ownerID string) error
	ConfigureResponder(code, playerID, instruction, profileID string, lock bool) error
	SubmitQuestion(code, playerID, text string) error
	SubmitAnswer(code, playerID string, origin models.AnswerOrigin, text string) error
	SubmitVote(code, playerID string, choice models.VoteChoice) error
	WithSnapshot(code, playerID string, fn func(events.SnapshotPayload)) error
	Room(code string) (models.Room, error)
}

type CreateRoomRequest struct {
	Nickname string            `json:"nickname"`
	Secret   string            `json:"secret,omitempty"`
	Config   models.GameConfig `json:"config"`
}

type CreateRoomResponse struct {
	Room   models.Room   `json:"room"`
	Player models.Player `json:"player"`
}

type JoinRoomRequest struct {
	RoomCode string `json:"room_code"`
	Nickname string `json:"nickname"`
	Secret   string `json:"secret,omitempty"`
}

type JoinRoomResponse struct {
	Player models.Player `json:"player"`
}

// RoomRequest names the room for actions that need nothing else.
type RoomRequest struct {
	RoomCode string `json:"room_code"`
}

type GetSnapshotResponse struct {
	Snapshot events.SnapshotPayload `json:"snapshot"`
}

type SetReadyRequest struct {
	RoomCode string `json:"room_code"`
	Ready    bool   `json:"ready"`
}

type KickPlayerRequest struct {
	RoomCode string `json:"room_code"`
	TargetID string `json:"target_id"`
}

type ConfigureResponderRequest struct {
	RoomCode    string `json:"room_code"`
	Instruction string `json:"instruction"`
	ProfileID   string `json:"profile_id,omitempty"`
	Lock        bool   `json:"lock"`
}

type SubmitQuestionRequest struct {
	RoomCode string `json:"room_code"`
	Text     string `json:"text"`
}

type SubmitAnswerRequest struct {
	RoomCode string `json:"room_code"`
	Origin   string `json:"origin"`
	Text     string `json:"text"`
}

type SubmitVoteRequest struct {
	RoomCode string `json:"room_code"`
	Choice   string `json:"choice"`
}

// ActionResponse is the empty answer to a successful room action.
type ActionResponse struct{}

type ListProfilesRequest struct{}

type ListProfilesResponse struct {
	Profiles []string `json:"profiles"`
}

type Options struct {
	// Profiles lists the generator profiles a responder may pick.
	Profiles func() []string
	// PublicURL is the base of join links. Empty derives it from the request.
	PublicURL string
	QRSize    int
}

// Service implements the RoomService RPCs on top of the room registry.
type Service struct {
	rooms Rooms
	opts  Options
}

func NewService(rooms Rooms, opts Options) *Service {
	if opts.QRSize <= 0 {
		opts.QRSize = 320
	}
	return &Service{rooms: rooms, opts: opts}
}

// RegisterRoutes mounts the RoomService and the join QR endpoint on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	path, handler := NewRoomServiceHandler(s)
	mux.Handle(path, handler)
	mux.HandleFunc("GET /api/rooms/{code}/qr", s.joinQR)
}

// CreateRoom opens a room owned by the caller.
func (s *Service) CreateRoom(ctx context.Context, req *connect.Request[CreateRoomRequest]) (*connect.Response[CreateRoomResponse], error) {
	rm, owner, err := s.rooms.CreateRoom(req.Msg.Config, req.Msg.Nickname, req.Msg.Secret)
	if err != nil {
		return nil, connectError(err)
	}
	log.Info().Str("room_code", rm.Code).Str("owner_id", owner.ID).Msg("room created")
	return connect.NewResponse(&CreateRoomResponse{Room: rm, Player: owner}), nil
}

func (s *Service) JoinRoom(ctx context.Context, req *connect.Request[JoinRoomRequest]) (*connect.Response[JoinRoomResponse], error) {
	p, err := s.rooms.JoinRoom(req.Msg.RoomCode, req.Msg.Secret, req.Msg.Nickname)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&JoinRoomResponse{Player: p}), nil
}

// GetSnapshot returns the room as the calling member sees it.
func (s *Service) GetSnapshot(ctx context.Context, req *connect.Request[RoomRequest]) (*connect.Response[GetSnapshotResponse], error) {
	var snap events.SnapshotPayload
	err := s.rooms.WithSnapshot(req.Msg.RoomCode, req.Header().Get(PlayerHeader), func(sp events.SnapshotPayload) {
		snap = sp
	})
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&GetSnapshotResponse{Snapshot: snap}), nil
}

func (s *Service) SetReady(ctx context.Context, req *connect.Request[SetReadyRequest]) (*connect.Response[ActionResponse], error) {
	return s.act(req.Header(), RoomServiceSetReadyProcedure, req.Msg.RoomCode, func(playerID string) error {
		return s.rooms.SetReady(req.Msg.RoomCode, playerID, req.Msg.Ready)
	})
}

func (s *Service) StartGame(ctx context.Context, req *connect.Request[RoomRequest]) (*connect.Response[ActionResponse], error) {
	return s.act(req.Header(), RoomServiceStartGameProcedure, req.Msg.RoomCode, func(playerID string) error {
		return s.rooms.StartGame(req.Msg.RoomCode, playerID)
	})
}

func (s *Service) LeaveRoom(ctx context.Context, req *connect.Request[RoomRequest]) (*connect.Response[ActionResponse], error) {
	return s.act(req.Header(), RoomServiceLeaveRoomProcedure, req.Msg.RoomCode, func(playerID string) error {
		return s.rooms.LeaveRoom(req.Msg.RoomCode, playerID)
	})
}

func (s *Service) KickPlayer(ctx context.Context, req *connect.Request[KickPlayerRequest]) (*connect.Response[ActionResponse], error) {
	return s.act(req.Header(), RoomServiceKickPlayerProcedure, req.Msg.RoomCode, func(playerID string) error {
		return s.rooms.KickPlayer(req.Msg.RoomCode, playerID, req.Msg.TargetID)
	})
}

func (s *Service) DisbandRoom(ctx context.Context, req *connect.Request[RoomRequest]) (*connect.Response[ActionResponse], error) {
	return s.act(req.Header(), RoomServiceDisbandRoomProcedure, req.Msg.RoomCode, func(playerID string) error {
		return s.rooms.DisbandRoom(req.Msg.RoomCode, playerID)
	})
}

func (s *Service) ConfigureResponder(ctx context.Context, req *connect.Request[ConfigureResponderRequest]) (*connect.Response[ActionResponse], error) {
	m := req.Msg
	return s.act(req.Header(), RoomServiceConfigureResponderProcedure, m.RoomCode, func(playerID string) error {
		return s.rooms.ConfigureResponder(m.RoomCode, playerID, m.Instruction, m.ProfileID, m.Lock)
	})
}

func (s *Service) SubmitQuestion(ctx context.Context, req *connect.Request[SubmitQuestionRequest]) (*connect.Response[ActionResponse], error) {
	return s.act(req.Header(), RoomServiceSubmitQuestionProcedure, req.Msg.RoomCode, func(playerID string) error {
		return s.rooms.SubmitQuestion(req.Msg.RoomCode, playerID, req.Msg.Text)
	})
}

func (s *Service) SubmitAnswer(ctx context.Context, req *connect.Request[SubmitAnswerRequest]) (*connect.Response[ActionResponse], error) {
	return s.act(req.Header(), RoomServiceSubmitAnswerProcedure, req.Msg.RoomCode, func(playerID string) error {
		origin, err := models.ParseAnswerOrigin(req.Msg.Origin)
		if err != nil {
			return err
		}
		return s.rooms.SubmitAnswer(req.Msg.RoomCode, playerID, origin, req.Msg.Text)
	})
}

func (s *Service) SubmitVote(ctx context.Context, req *connect.Request[SubmitVoteRequest]) (*connect.Response[ActionResponse], error) {
	return s.act(req.Header(), RoomServiceSubmitVoteProcedure, req.Msg.RoomCode, func(playerID string) error {
		choice, err := models.ParseVoteChoice(req.Msg.Choice)
		if err != nil {
			return err
		}
		return s.rooms.SubmitVote(req.Msg.RoomCode, playerID, choice)
	})
}

func (s *Service) ListProfiles(ctx context.Context, req *connect.Request[ListProfilesRequest]) (*connect.Response[ListProfilesResponse], error) {
	resp := &ListProfilesResponse{Profiles: []string{}}
	if s.opts.Profiles != nil {
		resp.Profiles = append(resp.Profiles, s.opts.Profiles()...)
	}
	return connect.NewResponse(resp), nil
}

// act runs a member action as the player named in header.
func (s *Service) act(header http.Header, procedure, code string, fn func(playerID string) error) (*connect.Response[ActionResponse], error) {
	playerID := header.Get(PlayerHeader)
	if playerID == "" {
		return nil, connectError(fmt.Errorf("%w: %s header is required", models.ErrInvalidInput, PlayerHeader))
	}
	if err := fn(playerID); err != nil {
		log.Debug().
			Err(err).
			Str("procedure", procedure).
			Str("room_code", code).
			Str("player_id", playerID).
			Msg("room action rejected")
		return nil, connectError(err)
	}
	return connect.NewResponse(&ActionResponse{}), nil
}
