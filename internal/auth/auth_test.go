package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printshop/internal/apperr"
	"printshop/internal/logging"
	"printshop/internal/security"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestPasswordRules(t *testing.T) {
	assert.Empty(t, PasswordProblems("Str0ng!pass"))
	assert.NoError(t, ValidatePassword("Str0ng!pass"))

	cases := map[string]string{
		"":                         "required",
		"Ab1!":                     "at least 8",
		"alllower1!":               "uppercase",
		"ALLUPPER1!":               "lowercase",
		"NoDigits!!":               "number",
		"NoSpecial11":              "special",
		strings.Repeat("Aa1!", 33): "exceed 128",
	}
	for pw, want := range cases {
		err := ValidatePassword(pw)
		require.Error(t, err, pw)
		assert.ErrorIs(t, err, ErrWeakPassword)
		assert.Contains(t, err.Error(), want, pw)
	}
}

func TestHashAndCompare(t *testing.T) {
	h, err := HashPassword("Str0ng!pass")
	require.NoError(t, err)
	assert.True(t, ComparePassword(h, "Str0ng!pass"))
	assert.False(t, ComparePassword(h, "wrong"))
}

func TestJWTRoundTrip(t *testing.T) {
	j := NewJWT(testSecret, time.Hour)
	m := uint64(3)
	tok, err := j.Sign(User{ID: 7, Username: "budi", Role: RoleWorker, MachineID: &m})
	require.NoError(t, err)

	c, err := j.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), c.UserID)
	assert.Equal(t, "budi", c.Username)
	assert.Equal(t, RoleWorker, c.Role)
	require.NotNil(t, c.MachineID)
	assert.Equal(t, uint64(3), *c.MachineID)

	_, err = NewJWT(strings.Repeat("x", 32), time.Hour).Verify(tok)
	assert.Error(t, err)
}

func TestJWTExpiry(t *testing.T) {
	j := NewJWT(testSecret, time.Minute)
	base := time.Now()
	j.now = func() time.Time { return base }
	tok, err := j.Sign(User{ID: 1, Role: RoleAdmin})
	require.NoError(t, err)

	j.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = j.Verify(tok)
	assert.Error(t, err)
}

func TestRequireAuthAndRole(t *testing.T) {
	j := NewJWT(testSecret, time.Hour)
	admin, _ := j.Sign(User{ID: 1, Username: "admin", Role: RoleAdmin})
	worker, _ := j.Sign(User{ID: 2, Username: "w", Role: RoleWorker})

	var seen uint64
	h := RequireAuth(j)(RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	do := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do(""))
	assert.Equal(t, http.StatusUnauthorized, do("Bearer garbage"))
	assert.Equal(t, http.StatusForbidden, do("Bearer "+worker))
	assert.Equal(t, http.StatusNoContent, do("Bearer "+admin))
	assert.Equal(t, uint64(1), seen)
}

type fakeAccounts struct {
	byName  map[string]User
	touched map[uint64]time.Time
	deleted []uint64
	nextID  uint64
}

func newFakeAccounts(users ...User) *fakeAccounts {
	f := &fakeAccounts{byName: map[string]User{}, touched: map[uint64]time.Time{}, nextID: 100}
	for _, u := range users {
		f.byName[u.Username] = u
	}
	return f
}

func (f *fakeAccounts) ByUsername(_ context.Context, username string) (User, error) {
	u, ok := f.byName[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeAccounts) ByID(_ context.Context, id uint64) (User, error) {
	for _, u := range f.byName {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (f *fakeAccounts) Create(_ context.Context, u *User) error {
	if _, ok := f.byName[u.Username]; ok {
		return ErrUsernameTaken
	}
	f.nextID++
	u.ID = f.nextID
	f.byName[u.Username] = *u
	return nil
}

func (f *fakeAccounts) SetPasswordHash(_ context.Context, id uint64, hash string) error {
	for k, u := range f.byName {
		if u.ID == id {
			u.PasswordHash = hash
			f.byName[k] = u
			return nil
		}
	}
	return ErrUserNotFound
}

func (f *fakeAccounts) TouchLastActive(_ context.Context, id uint64, at time.Time) error {
	f.touched[id] = at
	return nil
}

func (f *fakeAccounts) Delete(_ context.Context, id uint64) error {
	for k, u := range f.byName {
		if u.ID == id {
			delete(f.byName, k)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return ErrUserNotFound
}

func (f *fakeAccounts) List(context.Context) ([]UserView, error) {
	out := []UserView{}
	for _, u := range f.byName {
		out = append(out, UserView{ID: u.ID, Name: u.Name, Username: u.Username, Role: u.Role})
	}
	return out, nil
}

// newTestService swaps bcrypt for a plain prefix; bcrypt is covered by TestHashAndCompare.
func newTestService(accounts *fakeAccounts, maxAttempts int) *Service {
	guard := security.NewGuard(security.NewMemoryStore(), security.GuardConfig{
		MaxAttempts: maxAttempts, Window: 15 * time.Minute, LockDuration: 15 * time.Minute,
	}, nil, logging.Discard())
	s := NewService(accounts, NewJWT(testSecret, time.Hour), guard, logging.Discard())
	s.hash = func(pw string) (string, error) { return "plain:" + pw, nil }
	s.compare = func(hash, pw string) bool { return hash == "plain:"+pw }
	return s
}

func TestLogin_Success(t *testing.T) {
	acc := newFakeAccounts(User{ID: 5, Username: "budi", PasswordHash: "plain:Secret1!", Role: RoleWorker})
	s := newTestService(acc, 10)

	res, err := s.Login(context.Background(), " budi ", "Secret1!", "10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, uint64(5), res.User.ID)
	assert.Contains(t, acc.touched, uint64(5))
}

func TestLogin_FailuresLockAccount(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccounts(User{ID: 5, Username: "budi", PasswordHash: "plain:Secret1!", Role: RoleWorker})
	s := newTestService(acc, 3)

	_, err := s.Login(ctx, "budi", "nope", "ip")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "2 attempts remaining")

	_, err = s.Login(ctx, "budi", "nope", "ip")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Login(ctx, "budi", "nope", "ip")
	assert.ErrorIs(t, err, security.ErrAccountLocked)
	assert.Equal(t, http.StatusForbidden, apperr.Status(err))
	assert.Contains(t, err.Error(), "15 minutes")

	// the right password is refused while locked
	_, err = s.Login(ctx, "budi", "Secret1!", "other-ip")
	assert.ErrorIs(t, err, security.ErrAccountLocked)
	assert.Empty(t, acc.touched)
}

func TestLogin_UnknownUserCountsAttempt(t *testing.T) {
	s := newTestService(newFakeAccounts(), 2)
	ctx := context.Background()

	_, err := s.Login(ctx, "ghost", "x", "ip")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login(ctx, "ghost", "x", "ip")
	assert.ErrorIs(t, err, security.ErrAccountLocked)
}

func TestLogin_UnknownUserStillComparesPassword(t *testing.T) {
	s := newTestService(newFakeAccounts(User{ID: 5, Username: "budi", PasswordHash: "plain:Secret1!"}), 10)
	var hashes []string
	s.compare = func(hash, pw string) bool {
		hashes = append(hashes, hash)
		return hash == "plain:"+pw
	}

	_, err := s.Login(context.Background(), "ghost", "Secret1!", "ip")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	require.Len(t, hashes, 1)
	assert.True(t, strings.HasPrefix(hashes[0], "$2a$12$"), hashes[0])

	_, err = s.Login(context.Background(), "budi", "wrong", "ip")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Len(t, hashes, 2)
}

func TestLogin_MissingFields(t *testing.T) {
	s := newTestService(newFakeAccounts(), 2)
	_, err := s.Login(context.Background(), "", "x", "ip")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccounts(User{ID: 5, Username: "budi", PasswordHash: "plain:Secret1!"})
	s := newTestService(acc, 10)

	err := s.ChangePassword(ctx, 5, "Secret1!", "weak")
	assert.ErrorIs(t, err, ErrWeakPassword)

	err = s.ChangePassword(ctx, 5, "wrong", "N3w!Secret")
	assert.ErrorIs(t, err, ErrWrongPassword)

	require.NoError(t, s.ChangePassword(ctx, 5, "Secret1!", "N3w!Secret"))
	assert.Equal(t, "plain:N3w!Secret", acc.byName["budi"].PasswordHash)
}

func TestDeleteOwnAccountAndAdminDelete(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccounts(
		User{ID: 1, Username: "admin", PasswordHash: "plain:Admin1!x", Role: RoleAdmin},
		User{ID: 5, Username: "budi", PasswordHash: "plain:Secret1!", Role: RoleWorker},
		User{ID: 6, Username: "sari", PasswordHash: "plain:Secret1!", Role: RoleWorker},
	)
	s := newTestService(acc, 10)

	assert.ErrorIs(t, s.DeleteOwnAccount(ctx, 5, "bad"), ErrWrongPassword)
	require.NoError(t, s.DeleteOwnAccount(ctx, 5, "Secret1!"))

	assert.ErrorIs(t, s.DeleteUser(ctx, 1, 1), ErrDeleteSelf)
	assert.ErrorIs(t, s.DeleteUser(ctx, 1, 99), ErrUserNotFound)
	require.NoError(t, s.DeleteUser(ctx, 1, 6))
	assert.Equal(t, []uint64{5, 6}, acc.deleted)
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccounts()
	s := newTestService(acc, 10)

	zero := uint64(0)
	u, err := s.CreateUser(ctx, NewUserInput{
		Name: " Budi ", Username: "budi", Password: "Secret1!x", Role: RoleWorker,
		Department: "Printing", MachineID: &zero,
	})
	require.NoError(t, err)
	assert.Equal(t, "Budi", u.Name)
	assert.Nil(t, u.MachineID)
	require.NotNil(t, u.Department)
	assert.Equal(t, "plain:Secret1!x", u.PasswordHash)

	_, err = s.CreateUser(ctx, NewUserInput{Name: "B", Username: "budi", Password: "Secret1!x", Role: RoleWorker})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = s.CreateUser(ctx, NewUserInput{Name: "B", Username: "x", Password: "Secret1!x", Role: "owner"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = s.CreateUser(ctx, NewUserInput{Name: "B", Username: "x", Role: RoleAdmin})
	assert.ErrorIs(t, err, ErrMissingProfile)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccounts()
	s := newTestService(acc, 10)

	// the requested role is ignored
	u, err := s.Register(ctx, NewUserInput{
		Name: "Sari", Username: "sari", Password: "Secret1!x", Role: RoleAdmin, Department: "design",
	})
	require.NoError(t, err)
	assert.Equal(t, RoleWorker, u.Role)

	_, err = s.Register(ctx, NewUserInput{Name: "Tono", Username: "tono", Password: "Secret1!x"})
	assert.ErrorIs(t, err, ErrDepartmentRequired)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	acc := newFakeAccounts(User{ID: 5, Username: "budi", Role: RoleWorker})
	s := newTestService(acc, 10)

	created, err := s.EnsureAdmin(ctx, "", "")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.EnsureAdmin(ctx, "owner", "weak")
	assert.ErrorIs(t, err, ErrWeakPassword)

	created, err = s.EnsureAdmin(ctx, "owner", "Own3r!Secret")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, RoleAdmin, acc.byName["owner"].Role)

	// an admin exists now
	created, err = s.EnsureAdmin(ctx, "second", "Own3r!Secret")
	require.NoError(t, err)
	assert.False(t, created)
}
