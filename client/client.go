package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State 连接状态
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// frame 与服务端一致的帧格式
type frame struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
	Ts   int64           `json:"ts,omitempty"`
}

// Ack 服务端对一次发送的确认
type Ack struct {
	TempID    string `json:"temp_id"`
	MessageID uint64 `json:"message_id"`
	Seq       uint64 `json:"seq"`
	Duplicate bool   `json:"duplicate"`
}

// Options 客户端配置
type Options struct {
	ServerURL            string // ws://host:port/ws
	Token                string
	DeviceID             string
	Platform             string
	QueuePath            string // SQLite 离线队列路径
	AutoReconnect        bool
	MaxReconnectAttempts int           // 0 不限
	ReconnectBaseDelay   time.Duration // 默认 1s
	ReconnectMaxDelay    time.Duration // 默认 30s
}

// EventHandler 下行事件回调
type EventHandler func(eventType string, data json.RawMessage)

// Client 实时客户端
// 消息先进本地持久化队列再尝试发送；连接恢复后按入队顺序重放，
// 服务端靠 temp_id 去重，重放多发不会产生重复消息
type Client struct {
	opts  Options
	queue *OfflineQueue
	recon *reconnector

	mu               sync.Mutex
	conn             *websocket.Conn
	state            State
	intentionalClose bool
	cancelFn         context.CancelFunc

	handlersMu sync.RWMutex
	handlers   map[string][]EventHandler
	onAck      []func(Ack)
	onState    []func(State)
}

// New 创建客户端并打开离线队列
func New(opts Options) (*Client, error) {
	if opts.ServerURL == "" {
		return nil, fmt.Errorf("server url required")
	}
	if opts.QueuePath == "" {
		opts.QueuePath = "offline_queue.db"
	}
	queue, err := OpenOfflineQueue(opts.QueuePath)
	if err != nil {
		return nil, err
	}
	return &Client{
		opts:     opts,
		queue:    queue,
		recon:    newReconnector(opts.ReconnectBaseDelay, opts.ReconnectMaxDelay, opts.MaxReconnectAttempts),
		state:    StateDisconnected,
		handlers: make(map[string][]EventHandler),
	}, nil
}

// On 注册事件回调
func (c *Client) On(eventType string, h EventHandler) {
	c.handlersMu.Lock()
	c.handlers[eventType] = append(c.handlers[eventType], h)
	c.handlersMu.Unlock()
}

// OnAck 注册发送确认回调
func (c *Client) OnAck(h func(Ack)) {
	c.handlersMu.Lock()
	c.onAck = append(c.onAck, h)
	c.handlersMu.Unlock()
}

// OnStateChange 注册状态变更回调
func (c *Client) OnStateChange(h func(State)) {
	c.handlersMu.Lock()
	c.onState = append(c.onState, h)
	c.handlersMu.Unlock()
}

// State 当前连接状态
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.handlersMu.RLock()
	handlers := append([]func(State){}, c.onState...)
	c.handlersMu.RUnlock()
	for _, h := range handlers {
		h(s)
	}
}

// Connect 建立连接；成功后重放离线队列
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.intentionalClose = false
	c.mu.Unlock()

	wsURL := c.opts.ServerURL
	sep := "?"
	if strings.Contains(wsURL, "?") {
		sep = "&"
	}
	wsURL += sep + "token=" + c.opts.Token
	if c.opts.DeviceID != "" {
		wsURL += "&device_id=" + c.opts.DeviceID
	}
	if c.opts.Platform != "" {
		wsURL += "&platform=" + c.opts.Platform
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()
	c.recon.markConnected()
	c.notifyState(StateConnected)

	connCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancelFn = cancel
	c.mu.Unlock()

	go c.readLoop(connCtx)

	// 重放离线队列：按入队顺序，服务端按 temp_id 去重
	go c.replay()

	return nil
}

func (c *Client) notifyState(s State) {
	c.handlersMu.RLock()
	handlers := append([]func(State){}, c.onState...)
	c.handlersMu.RUnlock()
	for _, h := range handlers {
		h(s)
	}
}

// Disconnect 主动断开，不触发重连
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.intentionalClose = true
	if c.cancelFn != nil {
		c.cancelFn()
		c.cancelFn = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.setState(StateDisconnected)
	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"))
		return conn.Close()
	}
	return nil
}

// Close 断开并关闭本地队列
func (c *Client) Close() error {
	c.Disconnect()
	return c.queue.Close()
}

// SendMessage 发送消息：先入队，连接可用时立即尝试发出
// 返回本次消息的 temp_id，ACK 回调里用它对账
func (c *Client) SendMessage(conversationID uint64, contentType int8, content string) (string, error) {
	tempID := uuid.NewString()
	msg := &PendingMessage{
		TempID:         tempID,
		ConversationID: conversationID,
		ContentType:    contentType,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := c.queue.Enqueue(msg); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	if c.State() == StateConnected {
		if err := c.sendPending(msg); err != nil {
			zap.L().Debug("send deferred to replay", zap.String("tempID", tempID), zap.Error(err))
		}
	}
	return tempID, nil
}

// StartTyping 发送输入开始指示（尽力而为，不入队）
func (c *Client) StartTyping(conversationID uint64) error {
	return c.sendFrame(&frame{Type: "typing_start"}, map[string]interface{}{"conversation_id": conversationID})
}

// StopTyping 发送输入停止指示
func (c *Client) StopTyping(conversationID uint64) error {
	return c.sendFrame(&frame{Type: "typing_stop"}, map[string]interface{}{"conversation_id": conversationID})
}

// MarkRead 上报已读
func (c *Client) MarkRead(messageID uint64) error {
	return c.sendFrame(&frame{Type: "mark_read"}, map[string]interface{}{"message_id": messageID})
}

// AckDelivered 上报已送达
func (c *Client) AckDelivered(messageID uint64) error {
	return c.sendFrame(&frame{Type: "ack"}, map[string]interface{}{"message_id": messageID})
}

// Sync 请求增量补拉
func (c *Client) Sync(conversationID, afterSeq uint64, limit int) error {
	return c.sendFrame(&frame{Type: "sync"}, map[string]interface{}{
		"conversation_id": conversationID,
		"after_seq":       afterSeq,
		"limit":           limit,
	})
}

// PendingCount 本地待发送条数
func (c *Client) PendingCount() (int, error) {
	return c.queue.PendingCount()
}

func (c *Client) sendPending(msg *PendingMessage) error {
	c.queue.IncrAttempt(msg.TempID)
	f := &frame{Type: "send_message", ID: msg.TempID}
	return c.sendFrame(f, map[string]interface{}{
		"conversation_id": msg.ConversationID,
		"temp_id":         msg.TempID,
		"content_type":    msg.ContentType,
		"content":         msg.Content,
	})
}

func (c *Client) sendFrame(f *frame, data interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	f.Data = raw
	f.Ts = time.Now().UnixMilli()

	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// replay 连接恢复后重放离线队列，oldest-first
// 出队要等服务端 ACK，按游标翻页直到整个待发送集合发完
func (c *Client) replay() {
	const batchSize = 100
	var cursorAt time.Time
	var cursorID string
	for {
		msgs, err := c.queue.PendingAfter(cursorAt, cursorID, batchSize)
		if err != nil {
			zap.L().Warn("load pending queue failed", zap.Error(err))
			return
		}
		if len(msgs) == 0 {
			return
		}
		for _, msg := range msgs {
			if c.State() != StateConnected {
				return
			}
			if err := c.sendPending(msg); err != nil {
				zap.L().Debug("replay send failed, will retry next connect",
					zap.String("tempID", msg.TempID), zap.Error(err))
				return
			}
		}
		last := msgs[len(msgs)-1]
		cursorAt, cursorID = last.CreatedAt, last.TempID
	}
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			intentional := c.intentionalClose
			c.conn = nil
			c.mu.Unlock()
			if intentional {
				return
			}

			c.setState(StateDisconnected)
			if c.opts.AutoReconnect && c.recon.shouldReconnect() {
				go c.scheduleReconnect()
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return
	}

	switch f.Type {
	case "notify":
		// 发送确认里带 temp_id，据此出队
		var ack Ack
		if err := json.Unmarshal(f.Data, &ack); err == nil && ack.TempID != "" {
			c.queue.Ack(ack.TempID)
			c.handlersMu.RLock()
			handlers := append([]func(Ack){}, c.onAck...)
			c.handlersMu.RUnlock()
			for _, h := range handlers {
				h(ack)
			}
			return
		}
		c.dispatch("notify", f.Data)

	case "error":
		var e struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if json.Unmarshal(f.Data, &e) == nil && f.ID != "" {
			// FORBIDDEN 等业务失败是永久的：标记失败不再重放
			if e.Code == "FORBIDDEN" || e.Code == "AUTH_REJECTED" {
				c.queue.MarkFailed(f.ID, e.Error)
			}
		}
		c.dispatch("error", f.Data)

	case "event":
		c.dispatch("event", f.Data)

	default:
		// message.new / typing.* / presence.changed 等下行事件信封与帧同构
		if f.Type != "" {
			c.dispatch(f.Type, f.Data)
		}
	}
}

func (c *Client) dispatch(eventType string, data json.RawMessage) {
	c.handlersMu.RLock()
	handlers := append([]EventHandler{}, c.handlers[eventType]...)
	c.handlersMu.RUnlock()
	for _, h := range handlers {
		h(eventType, data)
	}
}

func (c *Client) scheduleReconnect() {
	delay := c.recon.nextDelay()
	c.setState(StateReconnecting)
	zap.L().Info("reconnecting",
		zap.Int("attempt", c.recon.attempt),
		zap.Duration("delay", delay))

	time.Sleep(delay)

	c.mu.Lock()
	intentional := c.intentionalClose
	c.mu.Unlock()
	if intentional {
		return
	}

	if err := c.Connect(context.Background()); err != nil {
		if c.opts.AutoReconnect && c.recon.shouldReconnect() {
			c.scheduleReconnect()
			return
		}
		c.setState(StateDisconnected)
	}
}
