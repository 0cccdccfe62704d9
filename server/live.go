package server

import (
	"PushUpCounter/counter"
	backend "PushUpCounter/gRPC"
	iface "PushUpCounter/interface"
	"PushUpCounter/logger"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type liveUpdate struct {
	Count    int    `json:"count"`
	Down     bool   `json:"down"`
	Detected bool   `json:"detected"`
	Error    string `json:"error,omitempty"`
}

// live counts reps over a websocket: binary messages are encoded frames,
// the text message "reset" zeroes the count. The session keeps one pooled
// backend until the connection closes or goes idle.
func (s *Server) live(c *gin.Context) {
	if s.pool == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Live counting disabled"})
		return
	}
	s.sessions.Add(1)
	defer s.sessions.Done()
	id, pose, err := s.pool.TryAcquire()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "All workers are busy"})
		return
	}
	defer s.pool.Release(id)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the error response
		return
	}
	defer conn.Close()
	// the server cancels the request context on shutdown; hijacked
	// connections are not closed by it
	stop := context.AfterFunc(c.Request.Context(), func() {
		_ = conn.Close()
	})
	defer stop()
	conn.SetReadLimit(20 * 1024 * 1024)
	session := zap.String("worker", id)
	logger.Log().Info("Live session started", session)

	var state counter.State
	for {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Log().Info("Live session closed", session, zap.Error(err))
			}
			return
		}
		var update liveUpdate
		switch mt {
		case websocket.BinaryMessage:
			update = s.liveFrame(&state, pose, msg)
		case websocket.TextMessage:
			if strings.TrimSpace(string(msg)) == "reset" {
				state.Reset()
			} else {
				update.Error = "unsupported message"
			}
		}
		update.Count = state.Count()
		update.Down = state.Down()
		if err := conn.WriteJSON(update); err != nil {
			logger.Log().Warn("Live session write failed", session, zap.Error(err))
			return
		}
	}
}

func (s *Server) liveFrame(state *counter.State, pose iface.Backend, msg []byte) liveUpdate {
	mat, err := backend.BytesToMat(msg)
	if err != nil {
		_ = mat.Close()
		return liveUpdate{Error: "invalid image: " + err.Error()}
	}
	ls, err := pose.Detect(mat)
	_ = mat.Close()
	if err != nil {
		return liveUpdate{Error: "inference error: " + err.Error()}
	}
	_, detected := s.runner.Counter.Step(state, ls)
	return liveUpdate{Detected: detected}
}
