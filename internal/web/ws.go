package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

// handleWS streams every bus action to the client as JSON until the client
// goes away, falls behind, or the server shuts down.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("web: websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe("ws " + r.RemoteAddr)
	defer sub.Unsubscribe()
	log.Info().Str("remote", r.RemoteAddr).Msg("web: websocket client connected")

	// Reads only detect the close; clients have nothing to send.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	closeWith := func(code int, text string) {
		msg := websocket.FormatCloseMessage(code, text)
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	}

	for {
		select {
		case <-gone:
			log.Info().Str("remote", r.RemoteAddr).Msg("web: websocket client disconnected")
			return
		case <-s.quit:
			closeWith(websocket.CloseGoingAway, "shutting down")
			return
		case a, ok := <-sub.C():
			if !ok {
				closeWith(websocket.CloseGoingAway, "shutting down")
				return
			}
			if n := sub.Lagged(); n > 0 {
				log.Warn().Str("remote", r.RemoteAddr).Uint64("dropped", n).Msg("web: websocket client too slow, closing")
				closeWith(websocket.CloseTryAgainLater, "too slow")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(a); err != nil {
				log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("web: websocket write failed")
				return
			}
		}
	}
}
