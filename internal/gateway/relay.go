package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"gpt-relay/internal/completion"
	"gpt-relay/internal/relay"
	wssurface "gpt-relay/internal/surface/websocket"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
)

const (
	maxRequestBytes = 64 << 10
	requestTimeout  = 30 * time.Second
)

// RelayRequest 是客户端连接后发送的第一条消息；未填写的参数取配置默认值。
type RelayRequest struct {
	Prompt           string   `json:"prompt"`
	Model            string   `json:"model,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	MaxTokens        int64    `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

// control is any message the client sends after the request. {"op":"cancel"}
// stops the relay; so does closing the connection.
type control struct {
	Op string `json:"op"`
}

func (s *Server) completionRequest(in RelayRequest) completion.Request {
	oa := s.cfg.OpenAI
	req := completion.Request{
		Model:            strings.TrimSpace(in.Model),
		Prompt:           strings.TrimSpace(in.Prompt),
		Temperature:      oa.Temperature,
		TopP:             oa.TopP,
		MaxTokens:        oa.MaxTokens,
		FrequencyPenalty: oa.FrequencyPenalty,
		PresencePenalty:  oa.PresencePenalty,
	}
	if req.Model == "" {
		req.Model = s.cfg.DefaultModel()
	}
	if in.Temperature != nil {
		req.Temperature = *in.Temperature
	}
	if in.TopP != nil {
		req.TopP = *in.TopP
	}
	if in.MaxTokens > 0 {
		req.MaxTokens = in.MaxTokens
	}
	if in.FrequencyPenalty != nil {
		req.FrequencyPenalty = *in.FrequencyPenalty
	}
	if in.PresencePenalty != nil {
		req.PresencePenalty = *in.PresencePenalty
	}
	return req
}

// handleRelay upgrades to a websocket, reads one RelayRequest and relays the
// completion into the connection. A "result" frame ends the exchange.
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	if s.client == nil {
		respondError(w, http.StatusServiceUnavailable, "no completion provider configured")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxRequestBytes)
	_ = conn.SetReadDeadline(time.Now().Add(requestTimeout))
	var in RelayRequest
	if err := conn.ReadJSON(&in); err != nil {
		log.Warnf("read relay request: %v", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	id := uuid.NewString()
	surface := wssurface.New(conn, id)
	req := s.completionRequest(in)
	if err := req.Validate(); err != nil {
		_ = surface.WriteError(ctx, err.Error())
		closeNormal(conn)
		return
	}

	go watchControl(conn, cancel)

	sess := relay.NewSession(s.client, surface, req, s.relayCfg,
		relay.WithID(id),
		relay.WithEvents(s.publisher()),
		relay.WithSurfaceName("websocket"),
	)
	if err := s.registry.Run(ctx, sess); err != nil {
		log.Infof("websocket relay %s ended: %v", id, err)
	}
	if err := surface.WriteResult(context.WithoutCancel(ctx), sess.Info()); err != nil {
		log.Debugf("write relay result: %v", err)
		return
	}
	closeNormal(conn)
}

// watchControl cancels the relay on a cancel frame or when the peer goes away.
func watchControl(conn *gorilla.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		var msg control
		if err := conn.ReadJSON(&msg); err != nil {
			var closeErr *gorilla.CloseError
			if !errors.As(err, &closeErr) && !errors.Is(err, net.ErrClosed) {
				log.Debugf("websocket read: %v", err)
			}
			return
		}
		if strings.EqualFold(msg.Op, "cancel") {
			return
		}
	}
}

func closeNormal(conn *gorilla.Conn) {
	msg := gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")
	_ = conn.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(time.Second))
}
