package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/turingroom/go/internal/game/api"
	"github.com/mcdev12/turingroom/go/internal/game/events"
	"github.com/mcdev12/turingroom/go/internal/models"
)

// APIError is an error answer from the game server. It matches both the connect error
// and the models sentinel behind it, so errors.Is(err, models.ErrFull) works on the
// client side.
type APIError struct {
	Err *connect.Error
	// Sentinel is nil when the code carries no game meaning, such as CodeUnavailable.
	Sentinel error
}

func (e *APIError) Error() string {
	return "game server: " + e.Err.Error()
}

func (e *APIError) Code() connect.Code {
	return e.Err.Code()
}

func (e *APIError) Unwrap() []error {
	if e.Sentinel == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Sentinel}
}

// GameClient issues room actions against a game server's RoomService. Every action is
// retried on transient failure except joining, which must not create a second membership.
type GameClient struct {
	baseURL string

	createRoom         *connect.Client[api.CreateRoomRequest, api.CreateRoomResponse]
	joinRoom           *connect.Client[api.JoinRoomRequest, api.JoinRoomResponse]
	getSnapshot        *connect.Client[api.RoomRequest, api.GetSnapshotResponse]
	setReady           *connect.Client[api.SetReadyRequest, api.ActionResponse]
	startGame          *connect.Client[api.RoomRequest, api.ActionResponse]
	leaveRoom          *connect.Client[api.RoomRequest, api.ActionResponse]
	kickPlayer         *connect.Client[api.KickPlayerRequest, api.ActionResponse]
	disbandRoom        *connect.Client[api.RoomRequest, api.ActionResponse]
	configureResponder *connect.Client[api.ConfigureResponderRequest, api.ActionResponse]
	submitQuestion     *connect.Client[api.SubmitQuestionRequest, api.ActionResponse]
	submitAnswer       *connect.Client[api.SubmitAnswerRequest, api.ActionResponse]
	submitVote         *connect.Client[api.SubmitVoteRequest, api.ActionResponse]
	listProfiles       *connect.Client[api.ListProfilesRequest, api.ListProfilesResponse]
}

func NewGameClient(baseURL string, req *Requester) *GameClient {
	baseURL = strings.TrimSuffix(baseURL, "/")
	retrying := requesterDoer{req: req, retry: true}
	once := requesterDoer{req: req}
	codec := connect.WithCodec(api.Codec{})

	return &GameClient{
		baseURL:            baseURL,
		createRoom:         connect.NewClient[api.CreateRoomRequest, api.CreateRoomResponse](retrying, baseURL+api.RoomServiceCreateRoomProcedure, codec),
		joinRoom:           connect.NewClient[api.JoinRoomRequest, api.JoinRoomResponse](once, baseURL+api.RoomServiceJoinRoomProcedure, codec),
		getSnapshot:        connect.NewClient[api.RoomRequest, api.GetSnapshotResponse](retrying, baseURL+api.RoomServiceGetSnapshotProcedure, codec),
		setReady:           connect.NewClient[api.SetReadyRequest, api.ActionResponse](retrying, baseURL+api.RoomServiceSetReadyProcedure, codec),
		startGame:          connect.NewClient[api.RoomRequest, api.ActionResponse](retrying, baseURL+api.RoomServiceStartGameProcedure, codec),
		leaveRoom:          connect.NewClient[api.RoomRequest, api.ActionResponse](retrying, baseURL+api.RoomServiceLeaveRoomProcedure, codec),
		kickPlayer:         connect.NewClient[api.KickPlayerRequest, api.ActionResponse](retrying, baseURL+api.RoomServiceKickPlayerProcedure, codec),
		disbandRoom:        connect.NewClient[api.RoomRequest, api.ActionResponse](retrying, baseURL+api.RoomServiceDisbandRoomProcedure, codec),
		configureResponder: connect.NewClient[api.ConfigureResponderRequest, api.ActionResponse](retrying, baseURL+api.RoomServiceConfigureResponderProcedure, codec),
		submitQuestion:     connect.NewClient[api.SubmitQuestionRequest, api.ActionResponse](retrying, baseURL+api.RoomServiceSubmitQuestionProcedure, codec),
		submitAnswer:       connect.NewClient[api.SubmitAnswerRequest, api.ActionResponse](retrying, baseURL+api.RoomServiceSubmitAnswerProcedure, codec),
		submitVote:         connect.NewClient[api.SubmitVoteRequest, api.ActionResponse](retrying, baseURL+api.RoomServiceSubmitVoteProcedure, codec),
		listProfiles:       connect.NewClient[api.ListProfilesRequest, api.ListProfilesResponse](retrying, baseURL+api.RoomServiceListProfilesProcedure, codec),
	}
}

// StreamURL is the websocket URL of a room's event stream for playerID.
func (c *GameClient) StreamURL(code, playerID string) string {
	q := url.Values{"room_code": {code}, "player_id": {playerID}}
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/room?" + q.Encode()
}

func (c *GameClient) CreateRoom(ctx context.Context, nickname, secret string, cfg models.GameConfig) (api.CreateRoomResponse, error) {
	out, err := call(ctx, c.createRoom, "", &api.CreateRoomRequest{
		Nickname: nickname,
		Secret:   secret,
		Config:   cfg,
	})
	if err != nil {
		return api.CreateRoomResponse{}, err
	}
	return *out, nil
}

func (c *GameClient) JoinRoom(ctx context.Context, code, secret, nickname string) (models.Player, error) {
	out, err := call(ctx, c.joinRoom, "", &api.JoinRoomRequest{
		RoomCode: code,
		Nickname: nickname,
		Secret:   secret,
	})
	if err != nil {
		return models.Player{}, err
	}
	return out.Player, nil
}

func (c *GameClient) Snapshot(ctx context.Context, code, playerID string) (events.SnapshotPayload, error) {
	out, err := call(ctx, c.getSnapshot, playerID, &api.RoomRequest{RoomCode: code})
	if err != nil {
		return events.SnapshotPayload{}, err
	}
	return out.Snapshot, nil
}

func (c *GameClient) SetReady(ctx context.Context, code, playerID string, ready bool) error {
	_, err := call(ctx, c.setReady, playerID, &api.SetReadyRequest{RoomCode: code, Ready: ready})
	return err
}

func (c *GameClient) StartGame(ctx context.Context, code, playerID string) error {
	_, err := call(ctx, c.startGame, playerID, &api.RoomRequest{RoomCode: code})
	return err
}

func (c *GameClient) LeaveRoom(ctx context.Context, code, playerID string) error {
	_, err := call(ctx, c.leaveRoom, playerID, &api.RoomRequest{RoomCode: code})
	return err
}

func (c *GameClient) KickPlayer(ctx context.Context, code, ownerID, targetID string) error {
	_, err := call(ctx, c.kickPlayer, ownerID, &api.KickPlayerRequest{RoomCode: code, TargetID: targetID})
	return err
}

func (c *GameClient) DisbandRoom(ctx context.Context, code, ownerID string) error {
	_, err := call(ctx, c.disbandRoom, ownerID, &api.RoomRequest{RoomCode: code})
	return err
}

func (c *GameClient) ConfigureResponder(ctx context.Context, code, playerID, instruction, profileID string, lock bool) error {
	_, err := call(ctx, c.configureResponder, playerID, &api.ConfigureResponderRequest{
		RoomCode:    code,
		Instruction: instruction,
		ProfileID:   profileID,
		Lock:        lock,
	})
	return err
}

func (c *GameClient) SubmitQuestion(ctx context.Context, code, playerID, text string) error {
	_, err := call(ctx, c.submitQuestion, playerID, &api.SubmitQuestionRequest{RoomCode: code, Text: text})
	return err
}

func (c *GameClient) SubmitAnswer(ctx context.Context, code, playerID string, origin models.AnswerOrigin, text string) error {
	_, err := call(ctx, c.submitAnswer, playerID, &api.SubmitAnswerRequest{
		RoomCode: code,
		Origin:   string(origin),
		Text:     text,
	})
	return err
}

func (c *GameClient) SubmitVote(ctx context.Context, code, playerID string, choice models.VoteChoice) error {
	_, err := call(ctx, c.submitVote, playerID, &api.SubmitVoteRequest{RoomCode: code, Choice: string(choice)})
	return err
}

func (c *GameClient) Profiles(ctx context.Context) ([]string, error) {
	out, err := call(ctx, c.listProfiles, "", &api.ListProfilesRequest{})
	if err != nil {
		return nil, err
	}
	return out.Profiles, nil
}

func call[Req, Res any](ctx context.Context, client *connect.Client[Req, Res], playerID string, msg *Req) (*Res, error) {
	req := connect.NewRequest(msg)
	if playerID != "" {
		req.Header().Set(api.PlayerHeader, playerID)
	}
	resp, err := client.CallUnary(ctx, req)
	if err != nil {
		return nil, serverError(err)
	}
	return resp.Msg, nil
}

// serverError turns an error the server answered with into an APIError. Network
// failures and cancellation pass through unchanged.
func serverError(err error) error {
	if errors.Is(err, ErrNetwork) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		return err
	}
	return &APIError{Err: connectErr, Sentinel: api.SentinelOf(connectErr)}
}

// requesterDoer lets a connect client send its requests through a Requester, so RPCs
// get the Requester's per-attempt timeout and retry policy.
type requesterDoer struct {
	req   *Requester
	retry bool
}

func (d requesterDoer) Do(r *http.Request) (*http.Response, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}
	resp, err := d.req.Do(r.Context(), r.Method, r.URL.String(), r.Header, body, d.retry)
	if err != nil {
		return nil, err
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", resp.Status, http.StatusText(resp.Status)),
		StatusCode:    resp.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        resp.Header,
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Request:       r,
	}, nil
}
