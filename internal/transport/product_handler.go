package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ProductHandler handles HTTP requests for the catalogue
type ProductHandler struct {
	products service.ProductService
	logger   *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(products service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{products: products, logger: logger}
}

// RegisterRoutes registers all product routes
func (h *ProductHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(guards.Auth, guards.Admin)
			r.Get("/export", h.Export)
			r.Post("/", h.Create)
			r.Patch("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := service.ParseProductQuery(r.URL.Query())
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	products, total, err := h.products.List(r.Context(), q)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, products, listExtras(len(products), total))
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	product, err := h.products.Get(r.Context(), id)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, product, nil)
}

// Create accepts JSON or a multipart form with an "images" file list and the
// attributes as a JSON string in "attributesTable".
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateProductInput
	var images []service.Upload

	if isMultipart(r) {
		if err := parseMultipart(w, r); err != nil {
			middleware.RespondWithError(w, r, err)
			return
		}
		fields, err := productFormFields(r)
		if err != nil {
			middleware.RespondWithError(w, r, err)
			return
		}
		in = service.CreateProductInput{
			Name:        deref(fields.Name),
			Description: deref(fields.Description),
			Category:    deref(fields.Category),
			Attrs:       fields.Attrs,
		}
		if fields.Count != nil {
			in.Count = *fields.Count
		}
		if fields.Price != nil {
			in.Price = *fields.Price
		}
		if err := middleware.Validate(&in); err != nil {
			middleware.RespondWithError(w, r, err)
			return
		}

		uploads, closeUploads, err := formUploads(r, "images")
		if err != nil {
			middleware.RespondWithError(w, r, err)
			return
		}
		defer closeUploads()
		images = uploads
	} else if err := middleware.DecodeAndValidate(r, &in); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	product, err := h.products.Create(r.Context(), in, images)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	h.logger.Info("Product created", zap.String("product_id", product.ID.String()))
	middleware.RespondWithData(w, http.StatusCreated, product.ID, nil)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	var in service.UpdateProductInput
	var images []service.Upload

	if isMultipart(r) {
		if err := parseMultipart(w, r); err != nil {
			middleware.RespondWithError(w, r, err)
			return
		}
		fields, err := productFormFields(r)
		if err != nil {
			middleware.RespondWithError(w, r, err)
			return
		}
		in = fields
		if err := middleware.Validate(&in); err != nil {
			middleware.RespondWithError(w, r, err)
			return
		}

		uploads, closeUploads, err := formUploads(r, "images")
		if err != nil {
			middleware.RespondWithError(w, r, err)
			return
		}
		defer closeUploads()
		images = uploads
	} else if err := middleware.DecodeAndValidate(r, &in); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	product, err := h.products.Update(r.Context(), id, in, images)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, product, nil)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	if err := h.products.Delete(r.Context(), id); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	h.logger.Info("Product deleted", zap.String("product_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

// Export streams the catalogue as an xlsx download
func (h *ProductHandler) Export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.products.Export(r.Context(), &buf); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="products.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// productFormFields reads the product fields of a multipart form. Only
// non-empty values are set.
func productFormFields(r *http.Request) (service.UpdateProductInput, error) {
	in := service.UpdateProductInput{
		Name:        formString(r, "name"),
		Description: formString(r, "description"),
		Category:    formString(r, "category"),
	}

	if raw := formString(r, "count"); raw != nil {
		count, err := strconv.Atoi(*raw)
		if err != nil {
			return in, apperror.Validation("Invalid input data",
				apperror.FieldError{Field: "count", Message: "count must be an integer"})
		}
		in.Count = &count
	}
	if raw := formString(r, "price"); raw != nil {
		price, err := decimal.NewFromString(*raw)
		if err != nil {
			return in, apperror.Validation("Invalid input data",
				apperror.FieldError{Field: "price", Message: "price must be a number"})
		}
		in.Price = &price
	}
	if raw := formString(r, "attributesTable"); raw != nil {
		var attrs []domain.ProductAttr
		if err := json.Unmarshal([]byte(*raw), &attrs); err != nil {
			return in, apperror.Validation("Invalid input data",
				apperror.FieldError{Field: "attributesTable", Message: "attributesTable must be a JSON list of {key, value}"})
		}
		in.Attrs = attrs
	}
	return in, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
