package infra

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// SessionHandler process one inbound message, returning an error ends the session
type SessionHandler func(conn *websocket.Conn) error

// Websocket upgrades echo requests and keeps the connection alive with ping/pong
type Websocket struct {
	upgrader     websocket.Upgrader
	writeWait    time.Duration
	pongWait     time.Duration
	pingInterval time.Duration
}

// NewWebsocket .
func NewWebsocket() *Websocket {
	pongWait := 30 * time.Second
	return &Websocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			HandshakeTimeout: 3 * time.Second,
		},
		writeWait:    10 * time.Second,
		pongWait:     pongWait,
		pingInterval: pongWait * 9 / 10,
	}
}

// WithHeartbeat wrap handler function with ping/pong heartbeat, open is called once per connection
// so each session keeps its own state
func (ws *Websocket) WithHeartbeat(open func(c echo.Context) SessionHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := ws.upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// the upgrader has already replied to the client
			return nil
		}

		handler := open(c)
		done := make(chan struct{})
		go ws.heartbeatRoutine(conn, done)
		ws.processRoutine(conn, handler)
		close(done)
		return nil
	}
}

func (ws *Websocket) heartbeatRoutine(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(ws.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ws.writeWait)); err != nil {
				return
			}
		}
	}
}

func (ws *Websocket) processRoutine(conn *websocket.Conn, handler SessionHandler) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(ws.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(ws.pongWait))
	})
	for {
		if err := handler(conn); err != nil {
			break
		}
	}
}
