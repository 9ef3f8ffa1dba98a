package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/Harshitk-cp/causal/internal/causal"
	"github.com/Harshitk-cp/causal/internal/service"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxBodyBytes = 4 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorResponse struct {
	Error       string                 `json:"error"`
	Violations  []causal.SpecViolation `json:"violations,omitempty"`
	Confounders []string               `json:"confounders,omitempty"`
	OpenPaths   [][]string             `json:"open_paths,omitempty"`
	Cycle       []string               `json:"cycle,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody decodes a JSON request body into dst and validates it.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msgs := make([]string, len(ve))
	for i, fe := range ve {
		// Drop the request struct name: "effectRequest.treatment" -> "treatment".
		field := fe.Namespace()
		if dot := strings.IndexByte(field, '.'); dot >= 0 {
			field = field[dot+1:]
		}
		switch fe.Tag() {
		case "required":
			msgs[i] = fmt.Sprintf("%s is required", field)
		case "oneof":
			msgs[i] = fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
		default:
			msgs[i] = fmt.Sprintf("%s failed %s validation", field, fe.Tag())
		}
	}
	return strings.Join(msgs, "; ")
}

// statusFor maps service and engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrGraphNotFound),
		errors.Is(err, causal.ErrUnknownVariable):
		return http.StatusNotFound
	case errors.Is(err, causal.ErrDuplicateVariable),
		errors.Is(err, causal.ErrDuplicateEdge),
		errors.Is(err, causal.ErrCycle):
		return http.StatusConflict
	case errors.Is(err, causal.ErrNotIdentifiable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, causal.ErrInvalidGraphSpec),
		errors.Is(err, causal.ErrInvalidValue),
		errors.Is(err, causal.ErrInvalidVariable),
		errors.Is(err, causal.ErrInvalidEdge),
		errors.Is(err, causal.ErrUnknownFunction):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with its mapped status. Structured engine
// errors carry their details in the body; internal errors are logged and
// hidden.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.String("op", op), zap.Error(err))
		writeError(w, status, "failed to "+op)
		return
	}

	resp := errorResponse{Error: err.Error()}
	var spec *causal.InvalidGraphSpecError
	if errors.As(err, &spec) {
		resp.Violations = spec.Violations
	}
	var ue *causal.UnidentifiableEffectError
	var nie *causal.NotIdentifiableError
	switch {
	case errors.As(err, &ue):
		resp.Confounders = ue.Confounders
		resp.OpenPaths = ue.OpenPaths
	case errors.As(err, &nie):
		resp.OpenPaths = nie.OpenPaths
	}
	var ce *causal.CycleError
	if errors.As(err, &ce) {
		resp.Cycle = ce.Path
	}
	writeJSON(w, status, resp)
}
