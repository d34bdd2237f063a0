package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	nuts "github.com/vaudience/go-nuts"

	"github.com/drone-control/dcg/internal/hub"
)

// operatorRequest is the inbound wire envelope on an operator socket.
type operatorRequest struct {
	Action  string          `json:"action"` // subscribe | unsubscribe | command | heartbeat
	DroneID string          `json:"droneId,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// operatorReply is the synchronous answer to an operator request.
type operatorReply struct {
	Type      string `json:"type"` // accepted | error
	CommandID int64  `json:"commandId,omitempty"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// operatorConn adapts a WebSocket to session.OperatorConn.
type operatorConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *operatorConn) SendEvent(ev hub.Event) error {
	return c.writeJSON(ev)
}

func (c *operatorConn) Close() error {
	return c.ws.Close()
}

func (c *operatorConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(v)
}

// handleOperator authenticates, upgrades, and serves one operator
// channel until the socket closes.
func (s *Server) handleOperator(w http.ResponseWriter, r *http.Request) {
	operatorID := mux.Vars(r)["id"]

	if s.verifier.Enabled() {
		subject, err := s.verifier.FromRequest(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if subject != operatorID {
			http.Error(w, "token subject mismatch", http.StatusForbidden)
			return
		}
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		nuts.L.Warnf("[Transport] Operator %s upgrade failed: %v", operatorID, err)
		return
	}

	conn := &operatorConn{ws: ws}
	if err := s.gw.OperatorConnected(operatorID, conn); err != nil {
		_ = conn.writeJSON(operatorReply{Type: "error", Code: errorCode(err)})
		_ = ws.Close()
		return
	}

	defer s.gw.OperatorDisconnected(operatorID)

	for {
		var req operatorRequest
		if err := ws.ReadJSON(&req); err != nil {
			nuts.L.Infof("[Transport] Operator %s read loop ended: %v", operatorID, err)
			return
		}

		// Any inbound traffic is proof of life.
		_ = s.gw.Heartbeat(operatorID)

		switch req.Action {
		case "subscribe":
			if err := s.gw.Subscribe(operatorID, req.DroneID); err != nil {
				_ = conn.writeJSON(operatorReply{Type: "error", Code: errorCode(err)})
			}
		case "unsubscribe":
			s.gw.Unsubscribe(operatorID, req.DroneID)
		case "command":
			id, err := s.gw.SubmitCommand(operatorID, req.DroneID, req.Kind, req.Payload)
			if err != nil {
				_ = conn.writeJSON(operatorReply{Type: "error", Code: errorCode(err), Detail: err.Error()})
				continue
			}
			_ = conn.writeJSON(operatorReply{Type: "accepted", CommandID: id})
		case "heartbeat":
			// already touched above
		default:
			_ = conn.writeJSON(operatorReply{Type: "error", Code: "BAD_REQUEST", Detail: "unknown action"})
		}
	}
}
