package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/discount"
)

// CouponService — администрирование купонов и расчёт скидки.
type CouponService interface {
	Create(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error)
	List(ctx context.Context) ([]domain.Coupon, error)
	Delete(ctx context.Context, code string) error
	Evaluate(ctx context.Context, code string, itemsMinor int64) (discount.Discount, error)
}

type CouponHandler struct {
	coupons  CouponService
	validate *validator.Validate
	logger   *log.Entry
}

func NewCouponHandler(coupons CouponService, logger *log.Entry) *CouponHandler {
	if logger == nil {
		logger = log.New().WithField("component", "http-coupons")
	}
	return &CouponHandler{coupons: coupons, validate: newValidator(), logger: logger}
}

func (h *CouponHandler) RegisterRoutes(router chi.Router) {
	router.Post("/coupons/validate", h.handleValidate)
	router.Group(func(admin chi.Router) {
		admin.Use(RequireAdmin)
		admin.Post("/coupons", h.handleCreate)
		admin.Get("/coupons", h.handleList)
		admin.Delete("/coupons/{code}", h.handleDelete)
	})
}

func (h *CouponHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateCouponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CategoryValidation, err.Error())
		return
	}
	req.DiscountType = strings.ToLower(strings.TrimSpace(req.DiscountType))
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationError(w, h.logger, err)
		return
	}

	coupon, err := h.coupons.Create(r.Context(), req.toCoupon())
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toCouponResponse(coupon))
}

func (h *CouponHandler) handleList(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	result := make([]CouponResponse, 0, len(coupons))
	for _, c := range coupons {
		result = append(result, toCouponResponse(c))
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *CouponHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "coupon removed"})
}

// handleValidate считает скидку для корзины, ничего не сохраняя.
func (h *CouponHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateCouponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CategoryValidation, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationError(w, h.logger, err)
		return
	}

	d, err := h.coupons.Evaluate(r.Context(), req.Code, req.TotalPrice)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toValidateCouponResponse(req.TotalPrice, d))
}
