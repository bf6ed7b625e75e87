package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"printshop/internal/auth"
	"printshop/internal/http/respond"
	"printshop/internal/messages"
)

type MessagesHandler struct {
	Svc            *messages.Service
	MaxUploadBytes int64
}

type sendMessageReq struct {
	ReceiverID uint64 `json:"receiver_id"`
	Message    string `json:"message" validate:"max=5000"`
}

// Send accepts multipart (with an optional "file" part) or plain JSON.
func (h *MessagesHandler) Send(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	in := messages.SendInput{SenderID: uid}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes+1<<20)
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				respond.Error(w, messages.ErrFileTooLarge.WithField("file"))
				return
			}
			respond.Error(w, ErrBadInput.WithMessage("Invalid multipart form"))
			return
		}
		defer r.MultipartForm.RemoveAll()

		if v := strings.TrimSpace(r.FormValue("receiver_id")); v != "" {
			id, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				respond.Error(w, ErrBadInput.WithField("receiver_id").WithMessage("receiver_id must be a positive integer"))
				return
			}
			in.ReceiverID = id
		}
		in.Text = r.FormValue("message")

		f, hdr, err := r.FormFile("file")
		switch {
		case err == nil:
			defer f.Close()
			in.File = &messages.Upload{
				Name:        hdr.Filename,
				ContentType: hdr.Header.Get("Content-Type"),
				Size:        hdr.Size,
				Body:        f,
			}
		case errors.Is(err, http.ErrMissingFile):
		default:
			respond.Error(w, ErrBadInput.WithField("file"))
			return
		}
	} else {
		var req sendMessageReq
		if err := decode(r, &req); err != nil {
			respond.Error(w, err)
			return
		}
		in.ReceiverID, in.Text = req.ReceiverID, req.Message
	}

	m, err := h.Svc.Send(r.Context(), in)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.Created(w, "Message sent successfully", map[string]uint64{"id": m.ID})
}

func (h *MessagesHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	var other uint64
	if v := r.URL.Query().Get("with_user_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respond.Error(w, ErrBadInput.WithField("with_user_id"))
			return
		}
		other = id
	}
	list, err := h.Svc.List(r.Context(), uid, other)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, list)
}

func (h *MessagesHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	cs, err := h.Svc.Contacts(r.Context(), uid)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, cs)
}

func (h *MessagesHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	n, err := h.Svc.UnreadCount(r.Context(), uid)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.OK(w, map[string]int64{"count": n})
}

func (h *MessagesHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, err := urlID(r, "id")
	if err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.Svc.MarkRead(r.Context(), id, uid); err != nil {
		respond.Error(w, err)
		return
	}
	respond.Message(w, http.StatusOK, "Message marked as read")
}

func (h *MessagesHandler) Download(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, err := urlID(r, "id")
	if err != nil {
		respond.Error(w, err)
		return
	}
	d, err := h.Svc.Download(r.Context(), id, uid)
	if err != nil {
		respond.Error(w, err)
		return
	}
	defer d.Body.Close()

	ct := d.Type
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(d.Name))
	if d.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(d.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, d.Body)
}
