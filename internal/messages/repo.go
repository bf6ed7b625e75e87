package messages

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repo struct {
	DB *gorm.DB
}

func (r *Repo) UserExists(ctx context.Context, id uint64) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Table("users").Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (r *Repo) Insert(ctx context.Context, m *Message) error {
	return r.DB.WithContext(ctx).Create(m).Error
}

func (r *Repo) views(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx).
		Table("messages m").
		Select("m.*, s.name as sender_name, rc.name as receiver_name").
		Joins("join users s on s.id = m.sender_id").
		Joins("join users rc on rc.id = m.receiver_id")
}

func (r *Repo) Conversation(ctx context.Context, userID, otherID uint64) ([]View, error) {
	rows := []View{}
	err := r.views(ctx).
		Where("(m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?)", userID, otherID, otherID, userID).
		Order("m.created_at asc, m.id asc").
		Scan(&rows).Error
	return rows, err
}

func (r *Repo) Inbox(ctx context.Context, userID uint64, limit int) ([]View, error) {
	rows := []View{}
	err := r.views(ctx).
		Where("m.sender_id = ? OR m.receiver_id = ?", userID, userID).
		Order("m.created_at desc, m.id desc").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// MarkRead counts before updating: mysql reports zero affected rows when
// the message is already read.
func (r *Repo) MarkRead(ctx context.Context, id, receiverID uint64) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&Message{}).
		Where("id = ? AND receiver_id = ?", id, receiverID).
		Count(&n).Error
	if err != nil || n == 0 {
		return false, err
	}
	err = r.DB.WithContext(ctx).Model(&Message{}).
		Where("id = ? AND receiver_id = ?", id, receiverID).
		Update("is_read", true).Error
	return err == nil, err
}

func (r *Repo) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&Message{}).
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	return n, err
}

func (r *Repo) Contacts(ctx context.Context, userID uint64) ([]ContactRow, error) {
	rows := []ContactRow{}
	err := r.DB.WithContext(ctx).
		Table("users").
		Select("id, name, username, role, department, last_active").
		Where("id <> ?", userID).
		Order("name asc").
		Scan(&rows).Error
	return rows, err
}

func (r *Repo) ForParticipant(ctx context.Context, id, userID uint64) (Message, bool, error) {
	var m Message
	err := r.DB.WithContext(ctx).
		Where("id = ? AND (sender_id = ? OR receiver_id = ?)", id, userID, userID).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, err
	}
	return m, true, nil
}

func (r *Repo) AttachmentKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.DB.WithContext(ctx).Model(&Message{}).Where("file_path is not null").Pluck("file_path", &keys).Error
	return keys, err
}
