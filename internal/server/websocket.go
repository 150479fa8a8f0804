package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/service/events"
	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mu := &sync.Mutex{}
	s.mu.Lock()
	s.clients[conn] = mu
	count := len(s.clients)
	s.mu.Unlock()
	s.logger.Debug().Int("clients", count).Msg("WebSocket client connected")

	// 连接建立后先推送一次当前状态
	hello := map[string]any{"instance_id": s.instanceID}
	if st, ok := s.status(r.Context()); ok {
		hello["status"] = st
	}
	s.write(conn, mu, WSMessage{Type: "hello", Payload: hello, At: time.Now()})

	defer s.drop(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	_, ok := s.clients[conn]
	delete(s.clients, conn)
	count := len(s.clients)
	s.mu.Unlock()
	if ok {
		conn.Close()
		s.logger.Debug().Int("clients", count).Msg("WebSocket client disconnected")
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	for _, conn := range conns {
		s.drop(conn)
	}
}

func (s *Server) write(conn *websocket.Conn, mu *sync.Mutex, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal websocket message")
		return
	}
	mu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	mu.Unlock()
	if err != nil {
		s.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send to websocket client")
		s.drop(conn)
	}
}

// Broadcast 把事件推给所有客户端。PROGRESS 按间隔限流,其余事件总是发送。
func (s *Server) Broadcast(ev events.Event) {
	if ev.Type == model.EventProgress && s.progressLimiter != nil && !s.progressLimiter.Allow() {
		return
	}
	msg := WSMessage{Type: ev.Type, JobID: ev.JobID, Payload: ev.Payload, At: ev.At}

	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	mutexes := make([]*sync.Mutex, 0, len(s.clients))
	for conn, mu := range s.clients {
		conns = append(conns, conn)
		mutexes = append(mutexes, mu)
	}
	s.mu.RUnlock()

	for i, conn := range conns {
		s.write(conn, mutexes[i], msg)
	}
}

// Run 消费 hub 事件并广播,直到通道关闭或 ctx 结束
func (s *Server) Run(ctx context.Context, ch <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			s.Broadcast(ev)
		}
	}
}
