package out

// Connection 一条到客户端的出站通道，由传输层适配器实现
// Send 必须是非阻塞的：缓冲满时立即返回 entity.ErrSendBufferFull，
// 慢速或已死的对端不能拖住对其他接收方的广播
type Connection interface {
	SessionID() string
	UserID() uint64
	DeviceID() string
	Send(message []byte) error
	Close() error
	IsClosed() bool
}
