package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

const maxBodyBytes = 64 << 10

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New(validator.WithRequiredStructEnabled())
		vld.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return vld
}

type chatRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
	UserID  string `json:"userId" validate:"omitempty,max=128"`
}

type historyQuery struct {
	Limit int `json:"limit" validate:"gte=0,lte=200"`
}

type appPath struct {
	AppID string `json:"appId" validate:"required,max=256,excludesall=/ "`
}

// validate runs struct validation and converts failures to details.
func validate(v any) ([]ValidationError, error) {
	err := getValidator().Struct(v)
	if err == nil {
		return nil, nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}
	out := make([]ValidationError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Code:    strings.ToUpper(fe.Tag()),
			Message: fieldMessage(fe),
		})
	}
	return out, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max", "lte":
		return fe.Field() + " must be at most " + fe.Param()
	case "gte":
		return fe.Field() + " must be at least " + fe.Param()
	case "excludesall":
		return fe.Field() + " contains forbidden characters"
	}
	return fe.Field() + " is invalid"
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidArgument, maxBodyBytes)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", domain.ErrInvalidArgument)
		}
		return fmt.Errorf("%w: malformed json: %w", domain.ErrInvalidArgument, err)
	}
	return nil
}

// parseLimit reads ?limit=; absent means zero (service default).
func parseLimit(r *http.Request) (historyQuery, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return historyQuery{}, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return historyQuery{}, fmt.Errorf("%w: limit must be an integer", domain.ErrInvalidArgument)
	}
	return historyQuery{Limit: n}, nil
}
