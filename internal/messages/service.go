// Package messages is the internal chat between users, with optional file
// attachments.
package messages

import (
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"printshop/internal/apperr"
)

const (
	InboxLimit = 100
	// a contact counts as online when seen within this period
	ActiveWithin = 5 * time.Minute
)

var (
	ErrReceiverRequired = apperr.Validation("receiver_required", "Receiver is required").WithField("receiver_id")
	ErrEmptyMessage     = apperr.Validation("empty_message", "Message or file is required").WithField("message")
	ErrReceiverNotFound = apperr.NotFound("receiver_not_found", "Receiver not found")
	ErrMessageNotFound  = apperr.NotFound("message_not_found", "Message not found")
	ErrFileNotFound     = apperr.NotFound("file_not_found", "File not found")
)

type Store interface {
	UserExists(ctx context.Context, id uint64) (bool, error)
	Insert(ctx context.Context, m *Message) error
	Conversation(ctx context.Context, userID, otherID uint64) ([]View, error)
	Inbox(ctx context.Context, userID uint64, limit int) ([]View, error)
	// MarkRead reports whether a message addressed to receiverID was found.
	MarkRead(ctx context.Context, id, receiverID uint64) (bool, error)
	UnreadCount(ctx context.Context, userID uint64) (int64, error)
	Contacts(ctx context.Context, userID uint64) ([]ContactRow, error)
	// ForParticipant returns the message when userID sent or received it.
	ForParticipant(ctx context.Context, id, userID uint64) (Message, bool, error)
	// AttachmentKeys lists the storage key of every stored attachment.
	AttachmentKeys(ctx context.Context) ([]string, error)
}

type Service struct {
	Store Store
	Files *Attachments
	Log   logrus.FieldLogger
	Now   func() time.Time
}

func NewService(store Store, files *Attachments, lg logrus.FieldLogger) *Service {
	return &Service{Store: store, Files: files, Log: lg, Now: time.Now}
}

// Upload is a file received with a message.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type SendInput struct {
	SenderID   uint64
	ReceiverID uint64
	Text       string
	File       *Upload
}

func (s *Service) Send(ctx context.Context, in SendInput) (Message, error) {
	if in.ReceiverID == 0 {
		return Message{}, ErrReceiverRequired
	}
	text := strings.TrimSpace(in.Text)
	if text == "" && in.File == nil {
		return Message{}, ErrEmptyMessage
	}
	if in.File != nil {
		if err := s.Files.Check(in.File.Name, in.File.ContentType, in.File.Size); err != nil {
			s.logRejected(in, err)
			return Message{}, err
		}
	}
	ok, err := s.Store.UserExists(ctx, in.ReceiverID)
	if err != nil {
		return Message{}, err
	}
	if !ok {
		return Message{}, ErrReceiverNotFound.WithField("receiver_id")
	}

	m := Message{SenderID: in.SenderID, ReceiverID: in.ReceiverID, CreatedAt: s.Now()}
	if text != "" {
		m.Text = &text
	}
	if in.File != nil {
		st, err := s.Files.Save(in.File.Name, in.File.ContentType, in.File.Size, in.File.Body)
		if err != nil {
			s.logRejected(in, err)
			return Message{}, err
		}
		m.FileName, m.FilePath, m.FileType, m.FileSize = &st.Name, &st.Key, &st.Type, &st.Size
	}

	if err := s.Store.Insert(ctx, &m); err != nil {
		if m.FilePath != nil {
			_ = s.Files.Remove(*m.FilePath)
		}
		return Message{}, err
	}
	s.Log.WithFields(logrus.Fields{
		"message_id":  m.ID,
		"sender_id":   m.SenderID,
		"receiver_id": m.ReceiverID,
		"has_file":    m.FilePath != nil,
	}).Info("message sent")
	return m, nil
}

func (s *Service) logRejected(in SendInput, err error) {
	s.Log.WithError(err).WithFields(logrus.Fields{
		"filename": in.File.Name,
		"size":     in.File.Size,
		"mimetype": in.File.ContentType,
		"user_id":  in.SenderID,
	}).Warn("file upload rejected")
}

// List returns the conversation with otherID (oldest first) or, when
// otherID is zero, the latest messages of the user (newest first).
func (s *Service) List(ctx context.Context, userID, otherID uint64) ([]View, error) {
	if otherID != 0 {
		return s.Store.Conversation(ctx, userID, otherID)
	}
	return s.Store.Inbox(ctx, userID, InboxLimit)
}

func (s *Service) MarkRead(ctx context.Context, id, userID uint64) error {
	ok, err := s.Store.MarkRead(ctx, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMessageNotFound
	}
	return nil
}

func (s *Service) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	return s.Store.UnreadCount(ctx, userID)
}

// Contacts lists every other user, most recently active first.
func (s *Service) Contacts(ctx context.Context, userID uint64) ([]Contact, error) {
	rows, err := s.Store.Contacts(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	out := make([]Contact, 0, len(rows))
	for _, r := range rows {
		c := Contact{ID: r.ID, Name: r.Name, Username: r.Username, Role: r.Role, Department: r.Department, LastActive: r.LastActive}
		if r.LastActive != nil {
			ago := int64(now.Sub(*r.LastActive) / time.Second)
			c.SecondsAgo = &ago
			c.IsActive = now.Sub(*r.LastActive) < ActiveWithin
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, k int) bool {
		a, b := out[i].LastActive, out[k].LastActive
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].Name < out[k].Name
	})
	return out, nil
}

type Download struct {
	Name string
	Type string
	Size int64
	Body io.ReadCloser
}

// Download opens an attachment for one of the two participants.
func (s *Service) Download(ctx context.Context, id, userID uint64) (Download, error) {
	m, ok, err := s.Store.ForParticipant(ctx, id, userID)
	if err != nil {
		return Download{}, err
	}
	if !ok || m.FilePath == nil {
		return Download{}, ErrFileNotFound
	}
	f, err := s.Files.Open(*m.FilePath)
	if err != nil {
		s.Log.WithError(err).WithField("message_id", id).Warn("attachment missing on disk")
		return Download{}, ErrFileNotFound
	}
	d := Download{Name: deref(m.FileName), Type: deref(m.FileType), Body: f}
	if m.FileSize != nil {
		d.Size = *m.FileSize
	}
	return d, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// OrphanGrace keeps fresh uploads whose message insert may still be running.
const OrphanGrace = time.Hour

// CleanupOrphans deletes attachment files no message points at.
func (s *Service) CleanupOrphans(ctx context.Context) ([]string, error) {
	keys, err := s.Store.AttachmentKeys(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(keys))
	for _, k := range keys {
		known[k] = true
	}
	orphans, err := s.Files.Orphans(known, s.Now().Add(-OrphanGrace))
	if err != nil {
		return nil, err
	}
	removed := []string{}
	for _, k := range orphans {
		if err := s.Files.Remove(k); err != nil {
			s.Log.WithError(err).WithField("file", k).Warn("remove orphaned attachment")
			continue
		}
		removed = append(removed, k)
	}
	s.Log.WithField("removed", len(removed)).Info("orphaned attachments cleaned")
	return removed, nil
}
