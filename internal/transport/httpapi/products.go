package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CatalogService — заведение товаров и пополнение склада.
type CatalogService interface {
	Create(ctx context.Context, actor domain.Actor, product domain.Product) (domain.Product, error)
	Get(ctx context.Context, id string) (domain.Product, error)
	Restock(ctx context.Context, actor domain.Actor, productID, size, color string, qty int) (domain.Product, error)
}

type ProductHandler struct {
	catalog  CatalogService
	validate *validator.Validate
	logger   *log.Entry
}

func NewProductHandler(catalog CatalogService, logger *log.Entry) *ProductHandler {
	if logger == nil {
		logger = log.New().WithField("component", "http-products")
	}
	return &ProductHandler{catalog: catalog, validate: newValidator(), logger: logger}
}

// RegisterPublicRoutes — чтение карточки товара без токена.
func (h *ProductHandler) RegisterPublicRoutes(router chi.Router) {
	router.Get("/products/{id}", h.handleGet)
}

// RegisterAdminRoutes ожидает, что router уже закрыт аутентификацией.
func (h *ProductHandler) RegisterAdminRoutes(router chi.Router) {
	router.Group(func(admin chi.Router) {
		admin.Use(RequireAdmin)
		admin.Post("/admin/products", h.handleCreate)
		admin.Post("/admin/products/{id}/stock", h.handleRestock)
	})
}

func (h *ProductHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *ProductHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	var req CreateProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CategoryValidation, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationError(w, h.logger, err)
		return
	}

	product, err := h.catalog.Create(r.Context(), actor, req.toProduct())
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *ProductHandler) handleRestock(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}

	var req RestockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, domain.CategoryValidation, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidationError(w, h.logger, err)
		return
	}

	product, err := h.catalog.Restock(r.Context(), actor, chi.URLParam(r, "id"), req.Size, req.Color, req.Qty)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toProductResponse(product))
}
