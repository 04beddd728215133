package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/in"
)

const (
	// 写超时
	writeWait = 10 * time.Second
	// Pong等待时间
	pongWait = 60 * time.Second
	// Ping周期（必须小于pongWait）
	pingPeriod = 30 * time.Second
	// 最大消息大小
	maxMessageSize = 64 * 1024
	// 出站缓冲槽位；写满即判定接收方跟不上，断开该连接
	sendBufferSize = 256
)

// FrameType WebSocket帧类型
type FrameType string

const (
	// 客户端帧类型
	FrameTypePing        FrameType = "ping"
	FrameTypeSendMessage FrameType = "send_message"
	FrameTypeTypingStart FrameType = "typing_start"
	FrameTypeTypingStop  FrameType = "typing_stop"
	FrameTypeMarkRead    FrameType = "mark_read"
	FrameTypeAck         FrameType = "ack"
	FrameTypeJoin        FrameType = "join"
	FrameTypeLeave       FrameType = "leave"
	FrameTypeSync        FrameType = "sync"

	// 服务端帧类型
	FrameTypePong     FrameType = "pong"
	FrameTypeEvent    FrameType = "event"
	FrameTypeNotify   FrameType = "notify"
	FrameTypeSyncResp FrameType = "sync_resp"
	FrameTypeError    FrameType = "error"
)

// Frame WebSocket帧
type Frame struct {
	Type FrameType       `json:"type"`
	ID   string          `json:"id,omitempty"` // 客户端帧ID，回执时带回
	Data json.RawMessage `json:"data,omitempty"`
	Ts   int64           `json:"ts,omitempty"`
}

// SendMessageData 发送消息帧数据
type SendMessageData struct {
	ConversationID uint64 `json:"conversation_id"`
	TempID         string `json:"temp_id"`
	ContentType    int8   `json:"content_type"`
	Content        string `json:"content"`
}

// TypingData 输入指示帧数据
type TypingData struct {
	ConversationID uint64 `json:"conversation_id"`
}

// ReceiptData 回执帧数据
type ReceiptData struct {
	MessageID uint64 `json:"message_id"`
}

// RoomData 加入/退出房间帧数据
type RoomData struct {
	ConversationID uint64 `json:"conversation_id"`
}

// SyncData 增量补拉帧数据
type SyncData struct {
	ConversationID uint64 `json:"conversation_id"`
	AfterSeq       uint64 `json:"after_seq"`
	Limit          int    `json:"limit"`
}

// WSConnection WebSocket连接，实现 out.Connection
type WSConnection struct {
	conn      *websocket.Conn
	sessionID string
	userID    uint64
	deviceID  string
	platform  string
	send      chan []byte
	done      chan struct{}
	closed    int32

	// 依赖注入
	connUseCase    in.ConnectionUseCase
	messageUseCase in.MessageUseCase
	typingUseCase  in.TypingUseCase
	receiptUseCase in.ReceiptUseCase
}

func NewWSConnection(conn *websocket.Conn, sessionID string, userID uint64, deviceID, platform string) *WSConnection {
	return &WSConnection{
		conn:      conn,
		sessionID: sessionID,
		userID:    userID,
		deviceID:  deviceID,
		platform:  platform,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
	}
}

// SetDependencies 设置依赖
func (c *WSConnection) SetDependencies(
	connUseCase in.ConnectionUseCase,
	messageUseCase in.MessageUseCase,
	typingUseCase in.TypingUseCase,
	receiptUseCase in.ReceiptUseCase,
) {
	c.connUseCase = connUseCase
	c.messageUseCase = messageUseCase
	c.typingUseCase = typingUseCase
	c.receiptUseCase = receiptUseCase
}

func (c *WSConnection) SessionID() string {
	return c.sessionID
}

func (c *WSConnection) UserID() uint64 {
	return c.userID
}

func (c *WSConnection) DeviceID() string {
	return c.deviceID
}

// Send 非阻塞投递；缓冲满返回 entity.ErrSendBufferFull，由调用方决定断开
// send 通道永不关闭，关闭只通过 done 通知，广播协程与 Close 竞争不会 panic
func (c *WSConnection) Send(message []byte) error {
	select {
	case <-c.done:
		return entity.ErrSessionClosed
	default:
	}

	select {
	case c.send <- message:
		return nil
	case <-c.done:
		return entity.ErrSessionClosed
	default:
		return entity.ErrSendBufferFull
	}
}

func (c *WSConnection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}

	close(c.done)
	return c.conn.Close()
}

func (c *WSConnection) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// ReadPump 读取消息
func (c *WSConnection) ReadPump() {
	defer func() {
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		// 更新心跳
		if c.connUseCase != nil {
			c.connUseCase.Heartbeat(context.Background(), c.sessionID)
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				zap.L().Warn("WebSocket error", zap.Uint64("userID", c.userID), zap.Error(err))
			}
			break
		}

		c.handleFrame(message)
	}
}

// WritePump 写入消息
func (c *WSConnection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				zap.L().Warn("Write error", zap.Uint64("userID", c.userID), zap.Error(err))
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSConnection) cleanup() {
	if c.connUseCase != nil {
		c.connUseCase.Disconnect(context.Background(), c.sessionID)
	}
	c.Close()

	zap.L().Info("Connection cleanup",
		zap.Uint64("userID", c.userID),
		zap.String("sessionID", c.sessionID))
}

func (c *WSConnection) handleFrame(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.sendError("", entity.CodeInternal, "invalid frame format")
		return
	}

	ctx := context.Background()

	switch frame.Type {
	case FrameTypePing:
		c.handlePing(frame.ID)

	case FrameTypeSendMessage:
		c.handleSendMessage(ctx, frame.ID, frame.Data)

	case FrameTypeTypingStart:
		c.handleTyping(ctx, frame.ID, frame.Data, true)

	case FrameTypeTypingStop:
		c.handleTyping(ctx, frame.ID, frame.Data, false)

	case FrameTypeMarkRead:
		c.handleMarkRead(ctx, frame.ID, frame.Data)

	case FrameTypeAck:
		c.handleAck(ctx, frame.ID, frame.Data)

	case FrameTypeJoin:
		c.handleRoom(ctx, frame.ID, frame.Data, true)

	case FrameTypeLeave:
		c.handleRoom(ctx, frame.ID, frame.Data, false)

	case FrameTypeSync:
		c.handleSync(ctx, frame.ID, frame.Data)

	default:
		c.sendError(frame.ID, entity.CodeInternal, "unknown frame type")
	}
}

func (c *WSConnection) handlePing(frameID string) {
	c.sendJSON(Frame{
		Type: FrameTypePong,
		ID:   frameID,
		Ts:   time.Now().UnixMilli(),
	})
}

func (c *WSConnection) handleSendMessage(ctx context.Context, frameID string, data json.RawMessage) {
	var req SendMessageData
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(frameID, entity.CodeInternal, "invalid send_message data")
		return
	}

	msg, duplicate, err := c.messageUseCase.SendMessage(ctx, &in.SendMessageRequest{
		ConversationID: req.ConversationID,
		SenderID:       c.userID,
		SenderSession:  c.sessionID,
		ClientMsgID:    req.TempID,
		ContentType:    entity.MessageContentType(req.ContentType),
		Content:        req.Content,
	})
	if err != nil {
		c.sendError(frameID, entity.CodeOf(err), err.Error())
		return
	}

	// 重复提交也回 ACK：客户端靠它清理离线队列
	ackData, _ := json.Marshal(map[string]interface{}{
		"temp_id":    req.TempID,
		"message_id": msg.ID,
		"seq":        msg.Seq,
		"duplicate":  duplicate,
	})
	c.sendJSON(Frame{
		Type: FrameTypeNotify,
		ID:   frameID,
		Data: ackData,
		Ts:   time.Now().UnixMilli(),
	})
}

func (c *WSConnection) handleTyping(ctx context.Context, frameID string, data json.RawMessage, start bool) {
	var req TypingData
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(frameID, entity.CodeInternal, "invalid typing data")
		return
	}

	var err error
	if start {
		err = c.typingUseCase.StartTyping(ctx, req.ConversationID, c.userID, c.sessionID)
	} else {
		err = c.typingUseCase.StopTyping(ctx, req.ConversationID, c.userID, c.sessionID)
	}
	if err != nil {
		c.sendError(frameID, entity.CodeOf(err), err.Error())
	}
}

func (c *WSConnection) handleMarkRead(ctx context.Context, frameID string, data json.RawMessage) {
	var req ReceiptData
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(frameID, entity.CodeInternal, "invalid mark_read data")
		return
	}

	if err := c.receiptUseCase.RecordRead(ctx, req.MessageID, c.userID); err != nil {
		c.sendError(frameID, entity.CodeOf(err), err.Error())
	}
}

func (c *WSConnection) handleAck(ctx context.Context, frameID string, data json.RawMessage) {
	var req ReceiptData
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(frameID, entity.CodeInternal, "invalid ack data")
		return
	}

	if err := c.receiptUseCase.RecordDelivered(ctx, req.MessageID, c.userID); err != nil {
		c.sendError(frameID, entity.CodeOf(err), err.Error())
	}
}

func (c *WSConnection) handleRoom(ctx context.Context, frameID string, data json.RawMessage, join bool) {
	var req RoomData
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(frameID, entity.CodeInternal, "invalid room data")
		return
	}

	var err error
	if join {
		err = c.connUseCase.JoinConversation(ctx, c.sessionID, req.ConversationID)
	} else {
		err = c.connUseCase.LeaveConversation(ctx, c.sessionID, req.ConversationID)
	}
	if err != nil {
		c.sendError(frameID, entity.CodeOf(err), err.Error())
		return
	}

	c.sendJSON(Frame{
		Type: FrameTypeNotify,
		ID:   frameID,
		Data: json.RawMessage(`{"status":"ok"}`),
	})
}

func (c *WSConnection) handleSync(ctx context.Context, frameID string, data json.RawMessage) {
	var req SyncData
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(frameID, entity.CodeInternal, "invalid sync data")
		return
	}

	msgs, err := c.messageUseCase.GetHistoryAfter(ctx, c.userID, req.ConversationID, req.AfterSeq, req.Limit)
	if err != nil {
		c.sendError(frameID, entity.CodeOf(err), err.Error())
		return
	}

	respData, _ := json.Marshal(map[string]interface{}{
		"conversation_id": req.ConversationID,
		"messages":        msgs,
	})
	c.sendJSON(Frame{
		Type: FrameTypeSyncResp,
		ID:   frameID,
		Data: respData,
		Ts:   time.Now().UnixMilli(),
	})
}

func (c *WSConnection) sendJSON(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.Send(data)
}

func (c *WSConnection) sendError(frameID, code, errMsg string) {
	errData, _ := json.Marshal(map[string]string{"code": code, "error": errMsg})
	c.sendJSON(Frame{
		Type: FrameTypeError,
		ID:   frameID,
		Data: errData,
		Ts:   time.Now().UnixMilli(),
	})
}
