package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait 写入超时
	writeWait = 10 * time.Second

	// pongWait Pong超时
	pongWait = 60 * time.Second

	// pingPeriod Ping周期（必须小于pongWait）
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize 最大消息大小
	maxMessageSize = 64 * 1024 // 64KB
)

// StreamMessage WebSocket消息
type StreamMessage struct {
	Type      string                 `json:"type"`      // event, message, activity, node, analysis, error, etc.
	Content   string                 `json:"content"`   // 消息内容
	Data      map[string]interface{} `json:"data"`      // 额外数据
	Timestamp int64                  `json:"timestamp"` // 时间戳
}

// 消息类型常量
const (
	StreamTypeEvent    = "event"
	StreamTypeMessage  = "message"
	StreamTypeActivity = "activity"
	StreamTypeNode     = "node"
	StreamTypeAnalysis = "analysis"
	StreamTypeStored   = "stored"
	StreamTypeWelcome  = "welcome"
	StreamTypeError    = "error"
	StreamTypePing     = "ping"
	StreamTypePong     = "pong"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleStream 会话事件流入口。把 WebSocket 帧路由到事件/消息/活动
// 处理路径，并把产生的节点和分析结果推回客户端。
func (s *HTTPServer) handleStream(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := s.service.GetSession(c.Request.Context(), sessionID); err != nil {
		s.handleServiceError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return
	}

	client := &streamClient{
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, 256),
		server:    s,
	}

	// 连接本身也是一个生命周期事件
	s.dispatchEvent(c.Request.Context(), client, "stream_connected", nil)
	client.sendFrame(StreamMessage{
		Type:      StreamTypeWelcome,
		Content:   sessionID,
		Timestamp: time.Now().UnixMilli(),
	})

	go client.writePump()
	client.readPump()
}

// streamClient 单个 WebSocket 连接
type streamClient struct {
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
	server    *HTTPServer
}

// readPump 从 WebSocket 读取并分发消息
func (c *streamClient) readPump() {
	defer func() {
		c.server.dispatchEvent(context.Background(), c, "stream_disconnected", nil)
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.server.logger.Error("WebSocket error",
					zap.String("session_id", c.sessionID),
					zap.Error(err),
				)
			}
			break
		}

		c.handleFrame(raw)
	}
}

// writePump 向 WebSocket 写入消息
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// handleFrame 分发一帧消息
func (c *streamClient) handleFrame(raw []byte) {
	var msg StreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("invalid message format")
		return
	}

	ctx := context.Background()

	switch msg.Type {
	case StreamTypePing:
		c.sendFrame(StreamMessage{Type: StreamTypePong, Timestamp: time.Now().UnixMilli()})

	case StreamTypeEvent:
		eventType, _ := msg.Data["type"].(string)
		if eventType == "" {
			eventType = msg.Content
		}
		if eventType == "" {
			c.sendError("event type is required")
			return
		}
		c.server.dispatchEvent(ctx, c, eventType, msg.Data)

	case StreamTypeMessage:
		sender, _ := msg.Data["sender"].(string)
		deferred, _ := msg.Data["deferred"].(bool)
		analysis, err := c.server.service.AnalyzeMessage(ctx, c.sessionID, msg.Content, sender, deferred)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		if analysis == nil {
			c.sendFrame(StreamMessage{Type: StreamTypeStored, Timestamp: time.Now().UnixMilli()})
			return
		}
		c.sendPayload(StreamTypeAnalysis, analysis)

	case StreamTypeActivity:
		node, err := c.server.service.AnalyzeActivity(ctx, c.sessionID, msg.Content)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		if node != nil {
			c.sendPayload(StreamTypeNode, node)
		}

	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

// dispatchEvent 把事件交给服务层，产生节点时推回客户端
func (s *HTTPServer) dispatchEvent(ctx context.Context, c *streamClient, eventType string, data map[string]interface{}) {
	node, err := s.service.HandleEvent(ctx, c.sessionID, eventType, data)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	if node != nil {
		c.sendPayload(StreamTypeNode, node)
	}
}

// sendPayload 序列化业务对象并作为指定类型的帧下发
func (c *streamClient) sendPayload(frameType string, payload interface{}) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		c.server.logger.Error("Failed to marshal stream payload", zap.Error(err))
		return
	}

	var data map[string]interface{}
	if err := json.Unmarshal(encoded, &data); err != nil {
		c.server.logger.Error("Failed to decode stream payload", zap.Error(err))
		return
	}

	c.sendFrame(StreamMessage{
		Type:      frameType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *streamClient) sendError(message string) {
	c.sendFrame(StreamMessage{
		Type:      StreamTypeError,
		Content:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *streamClient) sendFrame(msg StreamMessage) {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- encoded:
	default:
		c.server.logger.Warn("Stream send buffer full, dropping frame",
			zap.String("session_id", c.sessionID),
			zap.String("type", msg.Type),
		)
	}
}
