package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrorResponse — тело любого ответа с ошибкой.
type ErrorResponse struct {
	Error    string               `json:"error"`
	Code     int                  `json:"code"`
	Category domain.ErrorCategory `json:"category,omitempty"`
}

// ValidationErrorResponse возвращается, когда тело запроса не прошло проверку тегов.
type ValidationErrorResponse struct {
	Error    string               `json:"error"`
	Code     int                  `json:"code"`
	Category domain.ErrorCategory `json:"category"`
	Details  map[string]string    `json:"details"`
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal JSON response","code":500,"category":"internal"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.WithError(err).Warn("failed to write JSON response")
	}
}

// respondWithError отправляет JSON ошибку
func respondWithError(w http.ResponseWriter, code int, category domain.ErrorCategory, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message, Code: code, Category: category})
}

// respondWithDomainError переводит доменную ошибку в HTTP-ответ.
// Внутренние ошибки наружу не раскрываются.
func respondWithDomainError(w http.ResponseWriter, logger *log.Entry, err error) {
	category := domain.Categorize(err)
	code := mapErrorToStatusCode(err)

	if category == domain.CategoryInternal {
		logger.WithError(err).Error("request failed")
		respondWithError(w, code, category, "internal error")
		return
	}

	logger.WithError(err).WithField("category", category).Debug("request rejected")
	respondWithError(w, code, category, errorMessage(err))
}

func mapErrorToStatusCode(err error) int {
	switch domain.Categorize(err) {
	case domain.CategoryValidation, domain.CategoryIntegrity:
		return http.StatusBadRequest
	case domain.CategoryRejected:
		switch {
		case errors.Is(err, domain.ErrCouponExists),
			errors.Is(err, domain.ErrProductExists),
			errors.Is(err, domain.ErrOrderAlreadyPaid),
			errors.Is(err, domain.ErrIllegalTransition),
			errors.Is(err, domain.ErrOrderDelivered):
			return http.StatusConflict
		default:
			return http.StatusUnprocessableEntity
		}
	case domain.CategoryNotFound:
		return http.StatusNotFound
	case domain.CategoryForbidden:
		if errors.Is(err, domain.ErrUnauthenticated) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case domain.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage склеивает ошибки из errors.Join в одну строку.
func errorMessage(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}

// respondWithValidationError отвечает 400 с деталями по полям.
func respondWithValidationError(w http.ResponseWriter, logger *log.Entry, err error) {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		logger.WithError(err).Error("unexpected error type during validation")
		respondWithError(w, http.StatusInternalServerError, domain.CategoryInternal, "internal validation error")
		return
	}
	respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
		Error:    "validation failed",
		Code:     http.StatusBadRequest,
		Category: domain.CategoryValidation,
		Details:  formatValidationErrors(validationErrors),
	})
}

// formatValidationErrors превращает ошибки валидатора в карту "поле -> причина".
// Имена полей берутся из json-тегов (см. newValidator).
func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		// Namespace начинается с имени корневой структуры: "CreateOrderRequest.orderItems[0].qty".
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}

		var msg string
		switch fe.Tag() {
		case "required":
			msg = "is required"
		case "min":
			msg = fmt.Sprintf("must contain at least %s element(s)", fe.Param())
			if fe.Kind().String() == "string" {
				msg = fmt.Sprintf("must be at least %s characters long", fe.Param())
			}
		case "gt":
			msg = fmt.Sprintf("must be greater than %s", fe.Param())
		case "gte":
			msg = fmt.Sprintf("must be greater than or equal to %s", fe.Param())
		case "oneof":
			msg = fmt.Sprintf("must be one of: %s", fe.Param())
		case "email":
			msg = "must be a valid email"
		default:
			msg = fmt.Sprintf("failed on the '%s' rule", fe.Tag())
		}
		details[field] = msg
	}
	return details
}
