package transport

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"
)

// CategoryHandler handles HTTP requests for categories
type CategoryHandler struct {
	categories service.CategoryService
	logger     *zap.Logger
}

// NewCategoryHandler creates a new CategoryHandler
func NewCategoryHandler(categories service.CategoryService, logger *zap.Logger) *CategoryHandler {
	return &CategoryHandler{categories: categories, logger: logger}
}

// RegisterRoutes registers all category routes. The {category} segment is a
// name on GET and an id on the admin routes.
func (h *CategoryHandler) RegisterRoutes(r chi.Router, guards Guards) {
	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{category}", h.GetByName)

		r.Group(func(r chi.Router) {
			r.Use(guards.Auth, guards.Admin)
			r.Post("/", h.Create)
			r.Patch("/{category}", h.Update)
			r.Delete("/{category}", h.Delete)
		})
	})
}

func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	params, err := service.ParseListParams(r.URL.Query())
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	categories, total, err := h.categories.List(r.Context(), params)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	extras := listExtras(len(categories), total)
	if fields := selectFields(r.URL.Query().Get("select")); len(fields) > 0 {
		middleware.RespondWithData(w, http.StatusOK, projectCategories(categories, fields), extras)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, categories, extras)
}

func (h *CategoryHandler) GetByName(w http.ResponseWriter, r *http.Request) {
	category, err := h.categories.GetByName(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, category, nil)
}

func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateCategoryInput
	if err := middleware.DecodeAndValidate(r, &in); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	category, err := h.categories.Create(r.Context(), in)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	h.logger.Info("Category created", zap.String("category", category.Name))
	middleware.RespondWithData(w, http.StatusCreated, category, nil)
}

func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(chi.URLParam(r, "category"), "categoryId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	var in service.UpdateCategoryInput
	if err := middleware.DecodeAndValidate(r, &in); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	category, err := h.categories.Update(r.Context(), id, in)
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}
	middleware.RespondWithData(w, http.StatusOK, category, nil)
}

func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(chi.URLParam(r, "category"), "categoryId")
	if err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	if err := h.categories.Delete(r.Context(), id); err != nil {
		middleware.RespondWithError(w, r, err)
		return
	}

	h.logger.Info("Category deleted", zap.String("category_id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

var categoryFields = map[string]struct{}{
	"name": {}, "description": {}, "image": {}, "attrs": {}, "createdAt": {}, "updatedAt": {},
}

// selectFields parses a comma separated projection, dropping unknown names
func selectFields(raw string) []string {
	var fields []string
	for _, f := range strings.Split(raw, ",") {
		f = strings.TrimSpace(f)
		if _, ok := categoryFields[f]; ok {
			fields = append(fields, f)
		}
	}
	return fields
}

func projectCategories(categories []*domain.Category, fields []string) []map[string]any {
	out := make([]map[string]any, 0, len(categories))
	for _, c := range categories {
		row := map[string]any{"id": c.ID}
		for _, f := range fields {
			switch f {
			case "name":
				row[f] = c.Name
			case "description":
				row[f] = c.Description
			case "image":
				row[f] = c.Image
			case "attrs":
				row[f] = c.Attrs
			case "createdAt":
				row[f] = c.CreatedAt
			case "updatedAt":
				row[f] = c.UpdatedAt
			}
		}
		out = append(out, row)
	}
	return out
}
