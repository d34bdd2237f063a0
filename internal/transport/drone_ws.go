package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	nuts "github.com/vaudience/go-nuts"

	"github.com/drone-control/dcg/internal/session"
	"github.com/drone-control/dcg/internal/telemetry"
)

// droneMessage is the inbound wire envelope on a drone socket.
type droneMessage struct {
	Type      string            `json:"type"` // telemetry | sensor | ack | heartbeat
	Seq       uint64            `json:"seq,omitempty"`
	Payload   telemetry.Payload `json:"payload,omitempty"`
	Line      string            `json:"line,omitempty"`
	CommandID int64             `json:"commandId,omitempty"`
	Outcome   string            `json:"outcome,omitempty"` // ack | nack
	Reason    string            `json:"reason,omitempty"`
}

// droneConn adapts a WebSocket to session.DroneConn. gorilla/websocket
// permits one concurrent writer, hence the write mutex.
type droneConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *droneConn) SendCommand(delivery session.CommandDelivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(delivery)
}

func (c *droneConn) Close() error {
	return c.ws.Close()
}

// handleDrone upgrades the drone channel and pumps its messages into
// the core until the socket closes.
func (s *Server) handleDrone(w http.ResponseWriter, r *http.Request) {
	droneID := mux.Vars(r)["id"]

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		nuts.L.Warnf("[Transport] Drone %s upgrade failed: %v", droneID, err)
		return
	}

	conn := &droneConn{ws: ws}
	if err := s.gw.DroneConnected(droneID, conn); err != nil {
		nuts.L.Warnf("[Transport] Drone %s rejected: %v", droneID, err)
		_ = ws.WriteJSON(map[string]string{"code": errorCode(err)})
		_ = ws.Close()
		return
	}

	defer s.gw.DroneDisconnected(droneID)

	for {
		var msg droneMessage
		if err := ws.ReadJSON(&msg); err != nil {
			nuts.L.Infof("[Transport] Drone %s read loop ended: %v", droneID, err)
			return
		}

		switch msg.Type {
		case "telemetry":
			err = s.gw.IngestTelemetry(telemetry.Frame{
				DroneID: droneID,
				Seq:     msg.Seq,
				Payload: msg.Payload,
			})
		case "sensor":
			err = s.gw.IngestSensorLine(droneID, msg.Seq, msg.Line)
		case "ack":
			err = s.gw.Ack(droneID, msg.CommandID, msg.Outcome == "ack", msg.Reason)
		case "heartbeat":
			err = s.gw.Heartbeat(droneID)
		default:
			nuts.L.Debugf("[Transport] Drone %s sent unknown message type %q", droneID, msg.Type)
			continue
		}
		if err != nil {
			// Session-local issue; surface the code and keep serving.
			nuts.L.Debugf("[Transport] Drone %s message %q: %v", droneID, msg.Type, err)
			s.writeDroneError(conn, err)
		}
	}
}

func (s *Server) writeDroneError(c *droneConn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = c.ws.WriteJSON(map[string]string{"code": errorCode(err)})
}
