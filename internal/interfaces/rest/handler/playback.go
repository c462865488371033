package handler

import (
	"github.com/labstack/echo/v4"
	infra "github.com/pot-code/course-progress/internal/infrastructure"
	"github.com/pot-code/course-progress/internal/infrastructure/auth"
	"github.com/pot-code/course-progress/internal/playback"
)

type PlaybackHandler struct {
	relay   *playback.Relay
	jwtUtil *auth.JWTUtil
}

func NewPlaybackHandler(Relay *playback.Relay, JWTUtil *auth.JWTUtil) *PlaybackHandler {
	return &PlaybackHandler{Relay, JWTUtil}
}

// OpenSession one relay session per websocket connection, bound to the token's learner
func (ph *PlaybackHandler) OpenSession(c echo.Context) infra.SessionHandler {
	claims := ph.jwtUtil.GetContextToken(c)
	return ph.relay.Open(c.Request().Context(), claims.UID)
}
