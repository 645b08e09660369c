package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rflandau/arpchat/config"
	"github.com/rflandau/arpchat/engine"
	"github.com/rflandau/arpchat/view"
)

// Expected status codes of each endpoint.
const (
	ExpectedStatusPeers     = http.StatusOK
	ExpectedStatusMessages  = http.StatusOK
	ExpectedStatusSend      = http.StatusAccepted
	ExpectedStatusUsername  = http.StatusAccepted
	ExpectedStatusHeartbeat = http.StatusAccepted
)

// PeersResp is the response to GET /peers.
type PeersResp struct {
	Body struct {
		Peers []view.Peer `json:"peers" doc:"everyone currently online, self included"`
	}
}

// MessagesResp is the response to GET /messages.
type MessagesResp struct {
	Body struct {
		Lines []view.Line `json:"lines" doc:"chat history, oldest first"`
	}
}

// SendReq is the request for POST /messages.
type SendReq struct {
	Body struct {
		Text string `json:"text" required:"true" minLength:"1" example:"hi bob" doc:"message to broadcast"`
	}
}

// UsernameReq is the request for PUT /username.
type UsernameReq struct {
	Body struct {
		Username string `json:"username" required:"true" minLength:"1" example:"alice" doc:"new local username; normalized before use"`
	}
}

// UsernameResp echoes the username that was actually applied.
type UsernameResp struct {
	Body struct {
		Username string `json:"username" doc:"the normalized username"`
	}
}

// HeartbeatReq is the request for POST /heartbeat.
type HeartbeatReq struct {
	Body struct {
		Paused bool `json:"paused" doc:"stop announcing our presence (we will appear offline to peers)"`
	}
}

// AcceptedResp is the (empty) response of endpoints that only enqueue a command.
type AcceptedResp struct{}

func (s *Server) buildEndpoints() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-peers",
		Method:      http.MethodGet,
		Path:        EPPeers,
		Summary:     "List online peers",
	}, func(ctx context.Context, _ *struct{}) (*PeersResp, error) {
		resp := &PeersResp{}
		resp.Body.Peers = s.model.Peers()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        EPMessages,
		Summary:     "Read the chat history",
	}, func(ctx context.Context, _ *struct{}) (*MessagesResp, error) {
		resp := &MessagesResp{}
		resp.Body.Lines = s.model.History()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "send-message",
		Method:        http.MethodPost,
		Path:          EPMessages,
		Summary:       "Broadcast a chat message",
		DefaultStatus: ExpectedStatusSend,
	}, func(ctx context.Context, req *SendReq) (*AcceptedResp, error) {
		if err := s.enqueue(engine.SendMessage{Text: req.Body.Text}); err != nil {
			return nil, err
		}
		return &AcceptedResp{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "set-username",
		Method:        http.MethodPut,
		Path:          EPUsername,
		Summary:       "Change the local username",
		DefaultStatus: ExpectedStatusUsername,
	}, func(ctx context.Context, req *UsernameReq) (*UsernameResp, error) {
		name := config.NormalizeUsername(req.Body.Username)
		if err := s.enqueue(engine.UpdateUsername{Username: name}); err != nil {
			return nil, err
		}
		resp := &UsernameResp{}
		resp.Body.Username = name
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "pause-heartbeat",
		Method:        http.MethodPost,
		Path:          EPHeartbeat,
		Summary:       "Pause or resume presence announcements",
		DefaultStatus: ExpectedStatusHeartbeat,
	}, func(ctx context.Context, req *HeartbeatReq) (*AcceptedResp, error) {
		if err := s.enqueue(engine.PauseHeartbeat{Paused: req.Body.Paused}); err != nil {
			return nil, err
		}
		return &AcceptedResp{}, nil
	})
}
