// Package handlers provides API endpoint handling functionality.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	handlersErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/errors"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest/response"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/config"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelprincipal"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/service/processor/v1"
	serviceErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/service/processor/v1/errors"
	storageErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/errors"
)

const maxBodyBytes = 1 << 20

// StatusReporter reports the backend of an auxiliary component.
type StatusReporter interface {
	Status(ctx context.Context) string
}

// Handler defines attributes of a struct available to its methods.
type Handler struct {
	service      processor.Processor
	serverConfig *config.ServerConfig
	limiter      StatusReporter
	validate     *validator.Validate
	log          *zerolog.Logger
}

// InitHandlers initializes a handler object. A nil limiter means rate limiting is disabled.
func InitHandlers(mainService processor.Processor, serverConfig *config.ServerConfig, limiter StatusReporter, log *zerolog.Logger) (*Handler, error) {
	if mainService == nil {
		return nil, &handlersErrors.HandlersFoundNilArgument{Msg: "nil processor was passed to handlers initializer"}
	}
	if serverConfig == nil {
		return nil, &handlersErrors.HandlersFoundNilArgument{Msg: "nil server config was passed to handlers initializer"}
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		service:      mainService,
		serverConfig: serverConfig,
		limiter:      limiter,
		validate:     validate,
		log:          log,
	}, nil
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.serverConfig.RequestTimeout)
}

// decode reads a JSON body into v and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return &serviceErrors.ValidationError{Msg: "invalid Content-Type, application/json expected"}
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err = dec.Decode(v); err != nil {
		return &serviceErrors.ValidationError{Msg: fmt.Sprintf("malformed request body: %v", err)}
	}
	if err = h.validate.Struct(v); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		fields := make(map[string]string, len(validationErrors))
		for _, fe := range validationErrors {
			fields[fe.Field()] = describe(fe)
		}
		return &serviceErrors.ValidationError{Msg: "validation failed", Fields: fields}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "uuid4":
		return "must be a UUID"
	case "numeric":
		return "must contain digits only"
	case "alpha":
		return "must contain letters only"
	default:
		return "is invalid"
	}
}

// principal returns the authenticated caller.
func principal(r *http.Request) (*modelprincipal.Principal, error) {
	p, ok := modelprincipal.FromContext(r.Context())
	if !ok {
		return nil, &serviceErrors.UnauthorizedError{Msg: "authentication required"}
	}
	return p, nil
}

// respond writes v as JSON.
func (h *Handler) respond(w http.ResponseWriter, op string, status int, v interface{}) {
	if err := response.JSON(w, status, v); err != nil {
		h.log.Error().Err(err).Msgf("%s failed", op)
	}
}

// fail maps err onto a status code and writes the error body.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var (
		validationError             *serviceErrors.ValidationError
		unsupportedCurrencyError    *serviceErrors.UnsupportedCurrencyError
		insufficientFundsError      *storageErrors.InsufficientFundsError
		unauthorizedError           *serviceErrors.UnauthorizedError
		forbiddenError              *serviceErrors.ForbiddenError
		inactiveUserError           *serviceErrors.InactiveUserError
		passwordChangeRequiredError *serviceErrors.PasswordChangeRequiredError
		registrationClosedError     *serviceErrors.RegistrationClosedError
		notFoundError               *storageErrors.NotFoundError
		alreadyExistsError          *storageErrors.AlreadyExistsError
		contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
	)
	status := http.StatusInternalServerError
	msg := "internal server error"
	var fields map[string]string
	switch {
	case errors.As(err, &validationError):
		status, msg, fields = http.StatusBadRequest, validationError.Msg, validationError.Fields
	case errors.As(err, &unsupportedCurrencyError), errors.As(err, &insufficientFundsError):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.As(err, &unauthorizedError):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.As(err, &forbiddenError), errors.As(err, &inactiveUserError),
		errors.As(err, &passwordChangeRequiredError), errors.As(err, &registrationClosedError):
		status, msg = http.StatusForbidden, err.Error()
	case errors.As(err, &notFoundError):
		status, msg = http.StatusNotFound, "resource not found"
	case errors.As(err, &alreadyExistsError):
		status, msg = http.StatusConflict, "resource already exists"
	case errors.As(err, &contextTimeoutExceededError), errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusGatewayTimeout, "request timed out"
	}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msgf("%s failed", op)
	} else {
		h.log.Debug().Err(err).Msgf("%s rejected", op)
	}
	response.Error(w, status, msg, fields)
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, serviceErrors.Invalid(name, "must be a non-negative integer")
	}
	return v, nil
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, serviceErrors.Invalid(name, "must be true or false")
	}
	return &v, nil
}

func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, serviceErrors.Invalid(name, "must be an RFC 3339 timestamp")
	}
	v = v.UTC()
	return &v, nil
}

func pagination(r *http.Request) (int, int, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
