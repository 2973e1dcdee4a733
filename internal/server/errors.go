package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/gristips/gristips/api"
	"github.com/gristips/gristips/internal"
	"github.com/gristips/gristips/internal/encrypt"
	"github.com/gristips/gristips/internal/grist"
	"github.com/gristips/gristips/internal/logging"
	"github.com/gristips/gristips/internal/ratelimit"
	"github.com/gristips/gristips/internal/server/data"
)

// sendAPIError translates err into the appropriate HTTP status code, builds a
// response body using api.Error, then sends both as a response to the active
// request.
func sendAPIError(c *gin.Context, err error) {
	resp := &api.Error{
		Code:    http.StatusInternalServerError,
		Message: "internal server error", // don't leak any info by default
	}

	var validationErrors validator.ValidationErrors
	var uniqueConstraintError data.UniqueConstraintError
	var overLimitError *ratelimit.OverLimitError
	var decryptionError *encrypt.DecryptionError
	var gristError *grist.APIError

	log := logging.L.Debug()

	switch {
	case errors.Is(err, internal.ErrUnauthorized):
		resp.Code = http.StatusUnauthorized
		// hide the error text, it may contain sensitive information
		resp.Message = "unauthorized"
		// log the error at info because it is not in the response
		log = logging.L.Info()

	case errors.Is(err, data.ErrSessionExpired):
		resp.Code = http.StatusUnauthorized
		// this means the session was once valid, so include some extra details
		resp.Message = fmt.Sprintf("%s: %s", internal.ErrUnauthorized, err)

	case errors.Is(err, internal.ErrForbidden):
		resp.Code = http.StatusForbidden
		resp.Message = err.Error()

	case errors.As(err, &overLimitError):
		resp.Code = http.StatusTooManyRequests
		resp.Message = internal.ErrTooManyRequests.Error()
		retryAfter := ratelimit.Decision{RetryAfter: overLimitError.RetryAfter}.RetryAfterSeconds()
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.Header("X-RateLimit-Remaining", "0")

	case errors.As(err, &uniqueConstraintError):
		resp.Code = http.StatusConflict
		resp.Message = err.Error()

	case errors.As(err, &decryptionError), errors.Is(err, internal.ErrGristKeyReenter):
		resp.Code = http.StatusConflict
		resp.Message = internal.ErrGristKeyReenter.Error()
		log = logging.L.Warn()

	case errors.Is(err, internal.ErrConflict):
		resp.Code = http.StatusConflict
		resp.Message = err.Error()

	case errors.Is(err, internal.ErrNotFound):
		resp.Code = http.StatusNotFound
		resp.Message = err.Error()

	case errors.As(err, &validationErrors):
		resp.Code = http.StatusBadRequest
		resp.FieldErrors = fieldErrors(validationErrors)
		names := make([]string, 0, len(resp.FieldErrors))
		for _, fe := range resp.FieldErrors {
			names = append(names, fe.FieldName)
		}
		resp.Message = fmt.Sprintf("%s: invalid %s", internal.ErrBadRequest, strings.Join(names, ", "))

	case errors.Is(err, internal.ErrBadRequest):
		resp.Code = http.StatusBadRequest
		resp.Message = err.Error()

	case errors.As(err, &gristError):
		switch {
		case gristError.Unauthorized():
			resp.Code = http.StatusBadRequest
			resp.Message = "grist rejected the api key"
		case gristError.StatusCode == http.StatusNotFound:
			resp.Code = http.StatusNotFound
			resp.Message = gristError.Error()
		default:
			resp.Code = http.StatusBadGateway
			resp.Message = gristError.Error()
			log = logging.L.Warn()
		}

	case errors.Is(err, internal.ErrBadGateway):
		resp.Code = http.StatusBadGateway
		resp.Message = err.Error()
		log = logging.L.Warn()

	case errors.Is(err, context.DeadlineExceeded):
		resp.Code = http.StatusGatewayTimeout // not ideal, but StatusRequestTimeout isn't intended for this.
		resp.Message = "request timed out"

	default:
		log = logging.L.Error()
	}

	log.CallerSkipFrame(1).
		Err(err).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int32("statusCode", resp.Code).
		Str("remoteAddr", c.Request.RemoteAddr).
		Msg("api request error")

	c.JSON(int(resp.Code), resp)
	c.Abort()
}

// fieldErrors groups the validation failures by field, using the json name
// of the field.
func fieldErrors(errs validator.ValidationErrors) []api.FieldError {
	byField := map[string][]string{}
	for _, fe := range errs {
		byField[fe.Field()] = append(byField[fe.Field()], describeFieldError(fe))
	}

	result := make([]api.FieldError, 0, len(byField))
	for name, problems := range byField {
		result = append(result, api.FieldError{FieldName: name, Errors: problems})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FieldName < result[j].FieldName
	})
	return result
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of (%s)", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("failed the %q check", fe.Tag())
	}
}
