package events

import (
	"encoding/json"
	"net/http"
	"time"

	"supportchat-backend/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// WSServer 把请求升级为 WebSocket 连接并推送事件
type WSServer struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewWSServer(hub *Hub, allowedOrigins []string) *WSServer {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &WSServer{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Serve 处理单个连接，sessionID 不为空时只推送该会话的事件
func (s *WSServer) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &wsClient{
		hub:  s.hub,
		conn: conn,
		sub:  s.hub.Subscribe(sessionID),
	}

	go c.writePump()
	c.readPump()
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	sub  *Subscriber
}

// readPump 只处理控制帧，客户端不通过这里发送命令
func (c *wsClient) readPump() {
	defer func() {
		c.hub.Unsubscribe(c.sub)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warnf("WebSocket unexpected close (session=%q): %v", c.sub.SessionID, err)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.sub.Events():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				logger.Errorf("Failed to marshal %s event: %v", event.Type, err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
