package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"printshop/internal/apperr"
)

const (
	RoleAdmin  = "admin"
	RoleWorker = "worker"
)

type User struct {
	ID           uint64     `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"size:255;not null" json:"name"`
	Username     string     `gorm:"size:100;uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	Role         string     `gorm:"size:20;not null;index" json:"role"`
	Department   *string    `gorm:"size:255" json:"department"`
	MachineID    *uint64    `gorm:"index" json:"machine_id"`
	LastActive   *time.Time `json:"last_active"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
}

var (
	ErrUserNotFound   = apperr.NotFound("user_not_found", "User not found")
	ErrUsernameTaken  = apperr.Conflict("username_taken", "Username already exists")
	ErrInvalidRole    = apperr.Validation("invalid_role", "Role must be either admin or worker")
	ErrDeleteSelf     = apperr.BusinessRule("delete_self", "You cannot delete your own account. Use self-delete instead.")
	ErrMissingProfile = apperr.Validation("missing_fields", "Name, username, password, and role are required")
)

// UserRepo is the gorm backed account store.
type UserRepo struct {
	DB *gorm.DB
}

func (r *UserRepo) ByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := r.DB.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

func (r *UserRepo) ByID(ctx context.Context, id uint64) (User, error) {
	var u User
	err := r.DB.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

func (r *UserRepo) Create(ctx context.Context, u *User) error {
	err := r.DB.WithContext(ctx).Create(u).Error
	if errors.Is(err, apperr.ErrDuplicateKey) {
		return ErrUsernameTaken.WithField("username")
	}
	if errors.Is(err, apperr.ErrMissingReference) {
		return apperr.Validation("machine_not_found", "machine not found").WithField("machine_id")
	}
	return err
}

func (r *UserRepo) SetPasswordHash(ctx context.Context, id uint64, hash string) error {
	return r.DB.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("password_hash", hash).Error
}

func (r *UserRepo) TouchLastActive(ctx context.Context, id uint64, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&User{}).Where("id = ?", id).UpdateColumn("last_active", at).Error
}

func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res := r.DB.WithContext(ctx).Delete(&User{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UserView is a user row for the admin listing.
type UserView struct {
	ID          uint64     `json:"id"`
	Name        string     `json:"name"`
	Username    string     `json:"username"`
	Role        string     `json:"role"`
	Department  *string    `json:"department"`
	MachineID   *uint64    `json:"machine_id"`
	MachineName *string    `json:"machine_name"`
	LastActive  *time.Time `json:"last_active"`
	CreatedAt   time.Time  `json:"created_at"`
}

// List returns recently active users first, never-active users last.
func (r *UserRepo) List(ctx context.Context) ([]UserView, error) {
	out := []UserView{}
	err := r.DB.WithContext(ctx).
		Table("users u").
		Select("u.id, u.name, u.username, u.role, u.department, u.machine_id, m.name as machine_name, u.last_active, u.created_at").
		Joins("left join machines m on m.id = u.machine_id").
		Order("case when u.last_active is null then 1 else 0 end, u.last_active desc, u.role asc, u.name asc").
		Scan(&out).Error
	return out, err
}

type NewUserInput struct {
	Name       string
	Username   string
	Password   string
	Role       string
	Department string
	MachineID  *uint64
}

// normalize trims the profile and checks required fields and role.
func (in NewUserInput) normalize() (NewUserInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Department = strings.TrimSpace(in.Department)
	if in.Name == "" || in.Username == "" || in.Password == "" || in.Role == "" {
		return in, ErrMissingProfile
	}
	if in.Role != RoleAdmin && in.Role != RoleWorker {
		return in, ErrInvalidRole.WithField("role")
	}
	if in.MachineID != nil && *in.MachineID == 0 {
		in.MachineID = nil
	}
	return in, nil
}
