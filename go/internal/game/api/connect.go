package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
)

// RoomServiceName is the fully-qualified name of the room action service.
const RoomServiceName = "turingroom.v1.RoomService"

// Procedure paths of the RoomService RPCs.
const (
	RoomServiceCreateRoomProcedure         = "/" + RoomServiceName + "/CreateRoom"
	RoomServiceJoinRoomProcedure           = "/" + RoomServiceName + "/JoinRoom"
	RoomServiceGetSnapshotProcedure        = "/" + RoomServiceName + "/GetSnapshot"
	RoomServiceSetReadyProcedure           = "/" + RoomServiceName + "/SetReady"
	RoomServiceStartGameProcedure          = "/" + RoomServiceName + "/StartGame"
	RoomServiceLeaveRoomProcedure          = "/" + RoomServiceName + "/LeaveRoom"
	RoomServiceKickPlayerProcedure         = "/" + RoomServiceName + "/KickPlayer"
	RoomServiceDisbandRoomProcedure        = "/" + RoomServiceName + "/DisbandRoom"
	RoomServiceConfigureResponderProcedure = "/" + RoomServiceName + "/ConfigureResponder"
	RoomServiceSubmitQuestionProcedure     = "/" + RoomServiceName + "/SubmitQuestion"
	RoomServiceSubmitAnswerProcedure       = "/" + RoomServiceName + "/SubmitAnswer"
	RoomServiceSubmitVoteProcedure         = "/" + RoomServiceName + "/SubmitVote"
	RoomServiceListProfilesProcedure       = "/" + RoomServiceName + "/ListProfiles"
)

// Codec carries RoomService messages as plain JSON. The messages are Go structs, not
// protobuf, so it replaces connect's protojson codec under the same name.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}

// NewRoomServiceHandler builds an HTTP handler for every RoomService RPC. It returns
// the path to mount the handler on.
func NewRoomServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		connect.WithCodec(Codec{}),
		connect.WithReadMaxBytes(maxBodyBytes),
	}, opts...)

	mux := http.NewServeMux()
	mux.Handle(RoomServiceCreateRoomProcedure, connect.NewUnaryHandler(RoomServiceCreateRoomProcedure, svc.CreateRoom, opts...))
	mux.Handle(RoomServiceJoinRoomProcedure, connect.NewUnaryHandler(RoomServiceJoinRoomProcedure, svc.JoinRoom, opts...))
	mux.Handle(RoomServiceGetSnapshotProcedure, connect.NewUnaryHandler(RoomServiceGetSnapshotProcedure, svc.GetSnapshot, opts...))
	mux.Handle(RoomServiceSetReadyProcedure, connect.NewUnaryHandler(RoomServiceSetReadyProcedure, svc.SetReady, opts...))
	mux.Handle(RoomServiceStartGameProcedure, connect.NewUnaryHandler(RoomServiceStartGameProcedure, svc.StartGame, opts...))
	mux.Handle(RoomServiceLeaveRoomProcedure, connect.NewUnaryHandler(RoomServiceLeaveRoomProcedure, svc.LeaveRoom, opts...))
	mux.Handle(RoomServiceKickPlayerProcedure, connect.NewUnaryHandler(RoomServiceKickPlayerProcedure, svc.KickPlayer, opts...))
	mux.Handle(RoomServiceDisbandRoomProcedure, connect.NewUnaryHandler(RoomServiceDisbandRoomProcedure, svc.DisbandRoom, opts...))
	mux.Handle(RoomServiceConfigureResponderProcedure, connect.NewUnaryHandler(RoomServiceConfigureResponderProcedure, svc.ConfigureResponder, opts...))
	mux.Handle(RoomServiceSubmitQuestionProcedure, connect.NewUnaryHandler(RoomServiceSubmitQuestionProcedure, svc.SubmitQuestion, opts...))
	mux.Handle(RoomServiceSubmitAnswerProcedure, connect.NewUnaryHandler(RoomServiceSubmitAnswerProcedure, svc.SubmitAnswer, opts...))
	mux.Handle(RoomServiceSubmitVoteProcedure, connect.NewUnaryHandler(RoomServiceSubmitVoteProcedure, svc.SubmitVote, opts...))
	mux.Handle(RoomServiceListProfilesProcedure, connect.NewUnaryHandler(RoomServiceListProfilesProcedure, svc.ListProfiles, opts...))
	return "/" + RoomServiceName + "/", mux
}
