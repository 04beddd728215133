package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatloop/realtime_service/internal/ports/in"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

// WSServer WebSocket服务器
// 握手阶段完成鉴权：令牌无效直接拒绝升级，不产生会话
type WSServer struct {
	tokenVerifier  out.TokenVerifier
	connUseCase    in.ConnectionUseCase
	messageUseCase in.MessageUseCase
	typingUseCase  in.TypingUseCase
	receiptUseCase in.ReceiptUseCase
	upgrader       websocket.Upgrader
}

func NewWSServer(
	tokenVerifier out.TokenVerifier,
	connUseCase in.ConnectionUseCase,
	messageUseCase in.MessageUseCase,
	typingUseCase in.TypingUseCase,
	receiptUseCase in.ReceiptUseCase,
) *WSServer {
	return &WSServer{
		tokenVerifier:  tokenVerifier,
		connUseCase:    connUseCase,
		messageUseCase: messageUseCase,
		typingUseCase:  typingUseCase,
		receiptUseCase: receiptUseCase,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // 生产环境应该校验Origin
			},
		},
	}
}

// HandleConnection 处理WebSocket连接
func (s *WSServer) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	userID, err := s.tokenVerifier.Verify(token)
	if err != nil {
		zap.L().Warn("handshake rejected", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		deviceID = "default"
	}
	platform := r.URL.Query().Get("platform")
	if platform == "" {
		platform = "web"
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	sessionID := uuid.NewString()
	wsConn := NewWSConnection(conn, sessionID, userID, deviceID, platform)
	wsConn.SetDependencies(s.connUseCase, s.messageUseCase, s.typingUseCase, s.receiptUseCase)

	if _, err := s.connUseCase.Connect(r.Context(), wsConn); err != nil {
		zap.L().Warn("session register failed", zap.Uint64("userID", userID), zap.Error(err))
		conn.Close()
		return
	}

	// 启动读写协程
	go wsConn.WritePump()
	go wsConn.ReadPump()

	// 发送连接成功消息
	welcomeData, _ := json.Marshal(map[string]interface{}{
		"status":      "connected",
		"session_id":  sessionID,
		"user_id":     userID,
		"device_id":   deviceID,
		"server_time": time.Now().UnixMilli(),
	})
	wsConn.sendJSON(Frame{
		Type: FrameTypeNotify,
		Data: welcomeData,
		Ts:   time.Now().UnixMilli(),
	})
}

// extractToken 优先取查询参数，其次 Authorization: Bearer
func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
