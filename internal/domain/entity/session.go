package entity

import "time"

// Session 一条活跃的传输连接，对应某个用户的某台设备
// 由会话注册表独占管理：握手成功时创建，断开或主动登出时销毁
type Session struct {
	ID           string    // 会话ID（UUID）
	UserID       uint64    // 所属用户
	DeviceID     string    // 设备标识
	Platform     string    // 平台：web/ios/android
	ConnectedAt  time.Time // 建立连接时间
	LastActiveAt time.Time // 最近活跃时间（心跳刷新）
}
