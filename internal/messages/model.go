package messages

import "time"

type Message struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	SenderID   uint64    `gorm:"not null;index" json:"sender_id"`
	ReceiverID uint64    `gorm:"not null;index:idx_messages_receiver_read,priority:1" json:"receiver_id"`
	Text       *string   `gorm:"column:message;type:text" json:"message"`
	FileName   *string   `gorm:"size:255" json:"file_name"`
	FilePath   *string   `gorm:"size:500" json:"-"`
	FileType   *string   `gorm:"size:100" json:"file_type"`
	FileSize   *int64    `json:"file_size"`
	IsRead     bool      `gorm:"not null;default:false;index:idx_messages_receiver_read,priority:2" json:"is_read"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
}

// View is a message with both party names.
type View struct {
	Message
	SenderName   string `json:"sender_name"`
	ReceiverName string `json:"receiver_name"`
}

type ContactRow struct {
	ID         uint64
	Name       string
	Username   string
	Role       string
	Department *string
	LastActive *time.Time
}

type Contact struct {
	ID         uint64     `json:"id"`
	Name       string     `json:"name"`
	Username   string     `json:"username"`
	Role       string     `json:"role"`
	Department *string    `json:"department"`
	LastActive *time.Time `json:"last_active"`
	SecondsAgo *int64     `json:"seconds_ago"`
	IsActive   bool       `json:"is_active"`
}
