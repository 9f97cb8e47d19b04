package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/jtejido/fingerlive/session"
)

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.serveStream)
	return r
}

// serveStream runs one session for the lifetime of the connection. Messages
// are handled strictly in arrival order and every reply is written from this
// goroutine.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(int64(s.cfg.MaxMessageBytes))

	ctrl := s.sessions.Create()
	log := s.log.With().Str("session", ctrl.ID()).Str("remote", r.RemoteAddr).Logger()
	log.Info().Msg("client connected")
	defer func() {
		s.sessions.Close(ctrl.ID())
		log.Info().Msg("client disconnected")
	}()

	// a reaped or deleted session takes its connection down with it
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		select {
		case <-ctrl.Done():
			log.Info().Msg("session closed, dropping client")
			deadline := time.Now().Add(time.Second)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"), deadline)
			conn.Close()
		case <-quit:
		}
	}()

	err = conn.WriteJSON(ConnectionMessage{
		Type:     "connection",
		Message:  "Connected to liveness server",
		Status:   "ready",
		Session:  ctrl.ID(),
		Commands: commands,
		Note:     "Send camera frames with type='frame'",
	})
	if err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("read failed")
			}
			return
		}

		reply := s.handleMessage(ctrl, data)
		if reply == nil {
			continue
		}
		if err := conn.WriteJSON(reply); err != nil {
			log.Warn().Err(err).Msg("write failed")
			return
		}
	}
}

// handleMessage returns the reply to one inbound message, or nil when the
// message gets none.
func (s *Server) handleMessage(ctrl *session.Controller, data []byte) any {
	var in FrameRequest
	if err := json.Unmarshal(data, &in); err != nil {
		return errorMessage("Invalid JSON format")
	}

	if in.Type == "frame" {
		return s.streamFrame(ctrl, in)
	}

	command := strings.ToUpper(in.Command)
	s.log.Debug().Str("session", ctrl.ID()).Str("command", command).Msg("command")
	switch command {
	case CommandStart:
		started, err := ctrl.Start()
		if err != nil {
			return errorMessage(err.Error())
		}
		if !started {
			return statusMessage("Analysis already active")
		}
		return statusMessage("Analysis started - send camera frames", true)
	case CommandReset:
		if err := ctrl.Reset(); err != nil {
			return errorMessage(err.Error())
		}
		return statusMessage("Analysis reset")
	case CommandStop:
		if err := ctrl.Stop(); err != nil {
			return errorMessage(err.Error())
		}
		return statusMessage("Analysis stopped", false)
	case CommandSave:
		saved, err := ctrl.Save()
		if err != nil {
			return errorMessage(err.Error())
		}
		return saveMessage(saved)
	}
	return errorMessage("Unknown command: " + command)
}

func (s *Server) streamFrame(ctrl *session.Controller, in FrameRequest) any {
	if !ctrl.Snapshot().Active {
		return nil
	}

	f, err := s.decoder.DecodeBase64(in.Frame)
	if err != nil {
		s.log.Warn().Err(err).Str("session", ctrl.ID()).Msg("failed to decode frame")
		return errorMessage("Failed to decode frame: " + err.Error())
	}

	u, err := s.process(ctrl, f, in.FingerDetected)
	switch {
	case errors.Is(err, session.ErrNotActive):
		return nil
	case err != nil:
		return errorMessage(err.Error())
	}
	return NewResultMessage(ctrl.ID(), u)
}
