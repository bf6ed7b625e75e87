package auth

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"printshop/internal/apperr"
)

const bcryptCost = 12

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func ComparePassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// unknownUserHash stands in for the stored hash when the username does not
// exist, so both failures cost one bcrypt comparison.
var unknownUserHash = sync.OnceValue(func() string {
	h, err := HashPassword("printshop unknown user")
	if err != nil {
		panic(err)
	}
	return h
})

var ErrWeakPassword = apperr.Validation("weak_password", "password does not meet requirements")

var commonPasswords = map[string]bool{
	"password": true, "password123": true, "12345678": true, "qwerty": true, "abc123": true,
	"admin": true, "admin123": true, "letmein": true, "welcome": true, "monkey": true,
}

const specials = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// PasswordProblems lists every rule pw breaks; empty means acceptable.
func PasswordProblems(pw string) []string {
	if pw == "" {
		return []string{"Password is required"}
	}
	var out []string
	n := len([]rune(pw))
	if n < 8 {
		out = append(out, "Password must be at least 8 characters long")
	}
	if n > 128 {
		out = append(out, "Password must not exceed 128 characters")
	}

	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specials, r):
			special = true
		}
	}
	if !upper {
		out = append(out, "Password must contain at least one uppercase letter")
	}
	if !lower {
		out = append(out, "Password must contain at least one lowercase letter")
	}
	if !digit {
		out = append(out, "Password must contain at least one number")
	}
	if !special {
		out = append(out, "Password must contain at least one special character")
	}
	if commonPasswords[strings.ToLower(pw)] {
		out = append(out, "Password is too common. Please choose a stronger password")
	}
	return out
}

func ValidatePassword(pw string) error {
	p := PasswordProblems(pw)
	if len(p) == 0 {
		return nil
	}
	return ErrWeakPassword.WithField("password").WithMessage(strings.Join(p, "; "))
}
