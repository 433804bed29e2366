package apiv1

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"trulyinvoice/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// errorWriter renders err in an endpoint's error envelope.
type errorWriter func(w http.ResponseWriter, r *http.Request, err error)

// classify maps domain errors to a status code and a public message.
// Unknown errors are reported as 500 without their text.
func classify(err error) (int, string) {
	var gw *domain.GatewayError
	switch {
	case errors.As(err, &gw):
		return http.StatusInternalServerError, "payment gateway error"
	case errors.Is(err, domain.ErrUnknownTier),
		errors.Is(err, domain.ErrFreeTier),
		errors.Is(err, domain.ErrInvalidBillingCycle),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrMissingPaymentParams),
		errors.Is(err, domain.ErrSignatureMismatch),
		errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrSessionExpired):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusPaymentRequired, err.Error()
	case errors.Is(err, domain.ErrOrderOwnership):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrLocked):
		return http.StatusConflict, "payment verification already in progress"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, domain.ErrProcessingFailed):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, domain.ErrUnsettleableOrder):
		return http.StatusInternalServerError, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	resp := errorResponse{Error: msg}
	var gw *domain.GatewayError
	if errors.As(err, &gw) {
		resp.Details = gw.Message
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}

func writeVerifyError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	render.Status(r, status)
	render.JSON(w, r, verifyResponse{Success: false, Error: msg})
}

// validationDetails lists failing fields as field -> rule.
func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

func writeValidation(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{Error: "invalid request", Details: validationDetails(err)})
}
