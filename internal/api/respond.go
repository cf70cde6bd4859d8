package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jensholdgaard/auctionhouse/internal/auction"
	"github.com/jensholdgaard/auctionhouse/internal/economy"
	"github.com/jensholdgaard/auctionhouse/internal/mailbox"
	"github.com/jensholdgaard/auctionhouse/internal/store"
)

// ErrBadRequest marks malformed input: bad JSON, failed validation or an
// unparsable query parameter.
var ErrBadRequest = errors.New("bad request")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

type successEnvelope struct {
	Data any `json:"data"`
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// validationError carries per-field messages into the error response.
type validationError struct {
	fields map[string]string
}

func (e *validationError) Error() string { return "validation failed" }
func (e *validationError) Unwrap() error { return ErrBadRequest }

func decodeJSONBody(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("%w: invalid request body: %w", ErrBadRequest, err)
	}
	if err := validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = validationMessage(fe)
		}
		return &validationError{fields: fields}
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	}
	return "is invalid"
}

// queryInt reads a positive integer query parameter, returning def when it
// is absent.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", ErrBadRequest, key)
	}
	return v, nil
}

// statusOf maps service errors to an HTTP status and a stable code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, mailbox.ErrDeliveryFailed):
		return http.StatusInternalServerError, "delivery_failed"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, auction.ErrInvalidPrice),
		errors.Is(err, auction.ErrInvalidDuration),
		errors.Is(err, auction.ErrInvalidItem),
		errors.Is(err, auction.ErrInvalidAuction),
		errors.Is(err, auction.ErrInvalidSort),
		errors.Is(err, auction.ErrInvalidCategory),
		errors.Is(err, economy.ErrInvalidAmount),
		errors.Is(err, mailbox.ErrInvalidAmount):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, auction.ErrOwnAuction),
		errors.Is(err, auction.ErrNotSeller),
		errors.Is(err, mailbox.ErrNotOwner):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, auction.ErrNotFound),
		errors.Is(err, mailbox.ErrNotFound),
		errors.Is(err, mailbox.ErrEmpty):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, auction.ErrConflict),
		errors.Is(err, auction.ErrNotActive),
		errors.Is(err, auction.ErrEnded),
		errors.Is(err, mailbox.ErrAlreadyClaimed),
		errors.Is(err, mailbox.ErrExpired):
		return http.StatusConflict, "conflict"
	case errors.Is(err, economy.ErrInsufficientFunds),
		errors.Is(err, auction.ErrListingLimit),
		errors.Is(err, mailbox.ErrInventoryFull),
		errors.Is(err, mailbox.ErrNoInventory):
		return http.StatusUnprocessableEntity, "unprocessable"
	case errors.Is(err, economy.ErrBusy),
		errors.Is(err, store.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successEnvelope{Data: data})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	body := apiError{Code: code, Message: err.Error()}
	if status == http.StatusInternalServerError {
		body.Message = "internal error"
		h.logger.ErrorContext(ctx, "request failed", slog.Any("error", err))
	}
	var verr *validationError
	if errors.As(err, &verr) {
		body.Details = verr.fields
	}
	writeJSON(w, status, errorEnvelope{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
