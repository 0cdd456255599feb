package httpapi

import (
	"errors"
	"io"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/foliolabs/foliod/internal/chat"
	"github.com/foliolabs/foliod/internal/logging"
)

// InboundFrame is one client-to-server chat message. SessionID is echoed by
// clients that track it but carries no server state; every connection gets
// a fresh session and nothing is resumed.
type InboundFrame struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// handleChat upgrades the connection and pumps inbound frames into the
// session manager. Outbound frames flow through the session's sink.
func (s *Server) handleChat(c echo.Context) error {
	websocket.Handler(func(ws *websocket.Conn) {
		defer ws.Close()

		session := s.manager.Open(func(f chat.Frame) error {
			return websocket.JSON.Send(ws, f)
		})
		defer s.manager.Close(session)

		ctx := logging.WithSessionID(c.Request().Context(), session.ID())
		s.logger.Info(ctx, "chat session opened")

		for {
			var in InboundFrame
			if err := websocket.JSON.Receive(ws, &in); err != nil {
				if !errors.Is(err, io.EOF) {
					s.logger.Debug(ctx, "chat connection closed", zap.Error(err))
				}
				break
			}
			s.manager.HandleMessage(ctx, session, in.Message)
		}

		s.logger.Info(ctx, "chat session closed")
	}).ServeHTTP(c.Response(), c.Request())
	return nil
}
