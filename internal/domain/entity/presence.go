package entity

import "time"

// PresenceStatus 在线状态
type PresenceStatus string

const (
	PresenceStatusOnline  PresenceStatus = "online"
	PresenceStatusOffline PresenceStatus = "offline"
)

// VisibilityPolicy 在线状态可见性策略，归属于用户资料（外部协作方）
type VisibilityPolicy string

const (
	VisibilityEveryone VisibilityPolicy = "everyone"
	VisibilityContacts VisibilityPolicy = "contacts"
	VisibilityNobody   VisibilityPolicy = "nobody"
)

// UserPresence 用户在线状态
type UserPresence struct {
	UserID     uint64         `json:"user_id"`
	Online     bool           `json:"online"`
	Status     PresenceStatus `json:"status"`
	LastSeenAt time.Time      `json:"last_seen_at"` // 仅在转为离线时写入
	UpdatedAt  time.Time      `json:"updated_at"`
}

// PresenceEvent 在线状态变更事件
// 仅在用户级别的上线/下线边沿产生，多设备并存时不重复触发
type PresenceEvent struct {
	UserID     uint64         `json:"user_id"`
	OldStatus  PresenceStatus `json:"old_status"`
	NewStatus  PresenceStatus `json:"new_status"`
	LastSeenAt time.Time      `json:"last_seen_at,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
