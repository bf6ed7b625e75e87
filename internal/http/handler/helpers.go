// Package handler holds the JSON endpoints. Handlers decode and validate
// input, call one service and answer through respond.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"printshop/internal/apperr"
	"printshop/internal/auth"
)

const maxJSONBody = 1 << 20

var (
	ErrBadJSON    = apperr.Validation("bad_json", "Invalid JSON body")
	ErrBadInput   = apperr.Validation("invalid_input", "Invalid input")
	ErrInvalidID  = apperr.Validation("invalid_id", "Invalid id")
	ErrNoIdentity = auth.ErrUnauthorized
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names in errors
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrBadJSON.WithMessage("Request body is required")
		}
		return ErrBadJSON
	}
	return check(dst)
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return ErrBadInput.Wrap(err)
	}
	fe := ves[0]
	return ErrBadInput.WithField(fe.Field()).WithMessage(fieldMessage(fe))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must not exceed %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must not exceed %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "alphanum":
		return fe.Field() + " must contain only letters and numbers"
	default:
		return fe.Field() + " is invalid"
	}
}

func urlID(r *http.Request, name string) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidID.WithField(name)
	}
	return id, nil
}

func caller(r *http.Request) (*auth.Claims, error) {
	c, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return nil, ErrNoIdentity
	}
	return c, nil
}

// attachment sends a generated document as a download.
func attachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
