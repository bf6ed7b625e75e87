package messages

import (
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"printshop/internal/apperr"
)

const DefaultMaxFileBytes = 10 << 20

var (
	allowedExt = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
		".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
		".txt": true, ".csv": true,
	}
	dangerousExt = map[string]bool{
		".exe": true, ".bat": true, ".cmd": true, ".com": true, ".pif": true, ".scr": true,
		".vbs": true, ".js": true, ".jar": true, ".msi": true, ".app": true, ".deb": true,
		".rpm": true, ".sh": true, ".php": true, ".asp": true, ".aspx": true, ".jsp": true,
	}
	allowedMIME = map[string]bool{
		"image/jpeg": true, "image/jpg": true, "image/png": true, "image/gif": true, "image/webp": true,
		"application/pdf":    true,
		"application/msword": true,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
		"application/vnd.ms-excel": true,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
		"text/plain": true, "text/csv": true,
	}
)

var (
	ErrFileTooLarge = apperr.Validation("file_too_large", "File size exceeds maximum allowed size")
	ErrFileType     = apperr.Validation("file_type", "File type not allowed")
	ErrDangerous    = apperr.Validation("file_dangerous", "File type not allowed for security reasons")
)

// Attachments keeps uploaded files on an afero filesystem rooted at the
// upload directory. Files are stored under a random name; the original name
// only travels in the database.
type Attachments struct {
	Fs       afero.Fs
	MaxBytes int64
}

func NewAttachments(fs afero.Fs, dir string, maxBytes int64) (*Attachments, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	return &Attachments{Fs: afero.NewBasePathFs(fs, dir), MaxBytes: maxBytes}, nil
}

type Stored struct {
	Name string
	Key  string
	Type string
	Size int64
}

// Check validates an upload before anything is written.
func (a *Attachments) Check(name, contentType string, size int64) error {
	if size > a.MaxBytes {
		return ErrFileTooLarge.WithField("file").WithMessage(fmt.Sprintf("File size exceeds maximum allowed size of %dMB", a.MaxBytes>>20))
	}
	ext := strings.ToLower(path.Ext(name))
	if dangerousExt[ext] {
		return ErrDangerous.WithField("file")
	}
	if !allowedExt[ext] {
		return ErrFileType.WithField("file").WithMessage(fmt.Sprintf("File type %s is not allowed", ext))
	}
	mt, _, _ := strings.Cut(contentType, ";")
	if !allowedMIME[strings.TrimSpace(strings.ToLower(mt))] {
		return ErrFileType.WithField("file")
	}
	return nil
}

// Save checks and stores r. The declared size is not trusted: reading past
// MaxBytes discards the file.
func (a *Attachments) Save(name, contentType string, size int64, r io.Reader) (Stored, error) {
	if err := a.Check(name, contentType, size); err != nil {
		return Stored{}, err
	}
	name = SanitizeFilename(name)
	key := uuid.NewString() + strings.ToLower(path.Ext(name))

	f, err := a.Fs.OpenFile(key, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return Stored{}, err
	}
	n, err := io.Copy(f, io.LimitReader(r, a.MaxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > a.MaxBytes {
		err = ErrFileTooLarge.WithField("file")
	}
	if err != nil {
		_ = a.Fs.Remove(key)
		return Stored{}, err
	}
	mt, _, _ := strings.Cut(contentType, ";")
	return Stored{Name: name, Key: key, Type: strings.TrimSpace(mt), Size: n}, nil
}

func (a *Attachments) Open(key string) (afero.File, error) {
	return a.Fs.Open(key)
}

func (a *Attachments) Remove(key string) error {
	return a.Fs.Remove(key)
}

// Orphans lists stored files that no message references and that were last
// written before cutoff.
func (a *Attachments) Orphans(known map[string]bool, cutoff time.Time) ([]string, error) {
	entries, err := afero.ReadDir(a.Fs, "/")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || known[e.Name()] || !e.ModTime().Before(cutoff) {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
var dotRuns = regexp.MustCompile(`\.{2,}`)

// SanitizeFilename drops directories and odd characters and caps the stem
// at 100 characters.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = dotRuns.ReplaceAllString(name, ".")
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if len(stem) > 100 {
		stem = stem[:100]
	}
	return stem + ext
}
