package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"printshop/internal/apperr"
	"printshop/internal/logging"
	"printshop/internal/security"
)

var (
	ErrInvalidCredentials = apperr.Unauthorized("invalid_credentials", "Invalid credentials")
	ErrMissingCredentials = apperr.Validation("missing_credentials", "Username and password are required")
	ErrWrongPassword      = apperr.Unauthorized("wrong_password", "Password is incorrect")
)

// Accounts is the user persistence the service needs.
type Accounts interface {
	ByUsername(ctx context.Context, username string) (User, error)
	ByID(ctx context.Context, id uint64) (User, error)
	Create(ctx context.Context, u *User) error
	SetPasswordHash(ctx context.Context, id uint64, hash string) error
	TouchLastActive(ctx context.Context, id uint64, at time.Time) error
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context) ([]UserView, error)
}

type Service struct {
	Users Accounts
	JWT   *JWT
	Guard *security.Guard
	Log   logrus.FieldLogger
	Now   func() time.Time

	// hash and compare are swapped in tests to skip bcrypt's cost
	hash    func(string) (string, error)
	compare func(hash, pw string) bool
}

func NewService(users Accounts, jwtSvc *JWT, guard *security.Guard, lg logrus.FieldLogger) *Service {
	return &Service{
		Users:   users,
		JWT:     jwtSvc,
		Guard:   guard,
		Log:     lg,
		Now:     time.Now,
		hash:    HashPassword,
		compare: ComparePassword,
	}
}

type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Login verifies credentials behind the lockout gate. A locked account is
// refused before its password is checked and without counting an attempt.
func (s *Service) Login(ctx context.Context, username, password, ip string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, ErrMissingCredentials
	}

	if err := s.Guard.CheckAllowed(ctx, username, ip); err != nil {
		if _, ok := apperr.As(err); ok {
			return LoginResult{}, err
		}
		// the gate is advisory: a broken store must not stop logins
		s.Log.WithError(err).Warn("lockout check failed")
	}

	u, err := s.Users.ByUsername(ctx, username)
	if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
		return LoginResult{}, err
	}
	if err != nil {
		s.compare(unknownUserHash(), password)
		return LoginResult{}, s.failed(ctx, username, ip, false)
	}
	if !s.compare(u.PasswordHash, password) {
		return LoginResult{}, s.failed(ctx, username, ip, true)
	}

	if _, err := s.Guard.RecordAttempt(ctx, username, ip, true); err != nil {
		s.Log.WithError(err).Warn("record login success failed")
	}

	token, err := s.JWT.Sign(u)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.Users.TouchLastActive(ctx, u.ID, s.Now()); err != nil {
		s.Log.WithError(err).WithField("user_id", u.ID).Warn("update last active")
	}

	s.Log.WithFields(logrus.Fields{
		"user_id":  u.ID,
		"username": u.Username,
		"role":     u.Role,
		"ip":       ip,
	}).Info("user logged in")
	return LoginResult{Token: token, User: u}, nil
}

func (s *Service) failed(ctx context.Context, username, ip string, known bool) error {
	logging.Security(s.Log).WithFields(logrus.Fields{
		"username":   username,
		"ip":         ip,
		"known_user": known,
	}).Warn("login failed")

	res, err := s.Guard.RecordAttempt(ctx, username, ip, false)
	if err != nil {
		s.Log.WithError(err).Warn("record login failure failed")
		return ErrInvalidCredentials
	}
	if res.Locked {
		return security.ErrAccountLocked.WithMessage(s.Guard.LockedMessage())
	}
	if !known {
		return ErrInvalidCredentials
	}
	return ErrInvalidCredentials.WithMessage(fmt.Sprintf("Invalid credentials. %d attempts remaining.", res.RemainingAttempts))
}

func (s *Service) Me(ctx context.Context, id uint64) (User, error) {
	return s.Users.ByID(ctx, id)
}

// Touch records activity of an authenticated user.
func (s *Service) Touch(ctx context.Context, id uint64) error {
	return s.Users.TouchLastActive(ctx, id, s.Now())
}

func (s *Service) ChangePassword(ctx context.Context, id uint64, current, next string) error {
	if current == "" || next == "" {
		return apperr.Validation("missing_fields", "Current password and new password are required")
	}
	if err := ValidatePassword(next); err != nil {
		if e, ok := apperr.As(err); ok {
			return e.WithField("newPassword")
		}
		return err
	}
	u, err := s.Users.ByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.compare(u.PasswordHash, current) {
		logging.Security(s.Log).WithField("user_id", id).Warn("password change with wrong current password")
		return ErrWrongPassword.WithMessage("Current password is incorrect").WithField("currentPassword")
	}
	hash, err := s.hash(next)
	if err != nil {
		return err
	}
	if err := s.Users.SetPasswordHash(ctx, id, hash); err != nil {
		return err
	}
	s.Log.WithFields(logrus.Fields{"user_id": id, "username": u.Username}).Info("password changed")
	return nil
}

// DeleteOwnAccount removes the caller's account after confirming the password.
// Their jobs are kept without an owner.
func (s *Service) DeleteOwnAccount(ctx context.Context, id uint64, password string) error {
	if password == "" {
		return apperr.Validation("missing_fields", "Password is required to delete account").WithField("password")
	}
	u, err := s.Users.ByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.compare(u.PasswordHash, password) {
		logging.Security(s.Log).WithField("user_id", id).Warn("account deletion with wrong password")
		return ErrWrongPassword.WithField("password")
	}
	if err := s.Users.Delete(ctx, id); err != nil {
		return err
	}
	s.Log.WithFields(logrus.Fields{"user_id": id, "username": u.Username}).Info("user deleted own account")
	return nil
}

// Department is an option offered on the registration form.
type Department struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var Departments = []Department{
	{"large_format", "Large Format Printing"},
	{"digital_press", "Digital Press"},
	{"finishing", "Finishing Department"},
	{"design", "Design Department"},
	{"customer_service", "Customer Service"},
}

var ErrDepartmentRequired = apperr.Validation("department_required", "Department is required").WithField("department")

// Register is self sign-up: the account is always a worker.
func (s *Service) Register(ctx context.Context, in NewUserInput) (User, error) {
	in.Role = RoleWorker
	if strings.TrimSpace(in.Department) == "" {
		return User{}, ErrDepartmentRequired
	}
	u, err := s.CreateUser(ctx, in)
	if err != nil {
		return User{}, err
	}
	s.Log.WithFields(logrus.Fields{"user_id": u.ID, "username": u.Username, "department": in.Department}).Info("user registered")
	return u, nil
}

// EnsureAdmin creates the first administrator from configured credentials
// when no admin account exists. Sign-up only creates workers, so a fresh
// install has no other way in.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	users, err := s.Users.List(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u.Role == RoleAdmin {
			return false, nil
		}
	}
	u, err := s.CreateUser(ctx, NewUserInput{
		Name:     "Administrator",
		Username: username,
		Password: password,
		Role:     RoleAdmin,
	})
	if err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	s.Log.WithFields(logrus.Fields{"user_id": u.ID, "username": u.Username}).Warn("initial admin account created")
	return true, nil
}

// Admin user management

func (s *Service) CreateUser(ctx context.Context, in NewUserInput) (User, error) {
	in, err := in.normalize()
	if err != nil {
		return User{}, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return User{}, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return User{}, err
	}
	u := User{
		Name:         in.Name,
		Username:     in.Username,
		PasswordHash: hash,
		Role:         in.Role,
		MachineID:    in.MachineID,
	}
	if in.Department != "" {
		d := in.Department
		u.Department = &d
	}
	if err := s.Users.Create(ctx, &u); err != nil {
		return User{}, err
	}
	s.Log.WithFields(logrus.Fields{"user_id": u.ID, "username": u.Username, "role": u.Role}).Info("user created")
	return u, nil
}

func (s *Service) DeleteUser(ctx context.Context, adminID, id uint64) error {
	if adminID == id {
		return ErrDeleteSelf
	}
	u, err := s.Users.ByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Users.Delete(ctx, id); err != nil {
		return err
	}
	s.Log.WithFields(logrus.Fields{
		"deleted_user_id":  id,
		"deleted_username": u.Username,
		"deleted_role":     u.Role,
		"deleted_by":       adminID,
	}).Info("user deleted by admin")
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]UserView, error) {
	return s.Users.List(ctx)
}
