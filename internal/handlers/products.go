package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/threadline/api/internal/platform/auth"
	"github.com/threadline/api/internal/platform/httpx"
	"github.com/threadline/api/internal/platform/pagination"
	"github.com/threadline/api/internal/services"
)

// ProductHandlers exposes the public catalog and the admin product endpoints.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

const maxProductFormSize = 32 << 20

// NewProductHandlers constructs the /products handlers.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{authn: authn, catalog: catalog}
}

// Routes wires the /products endpoints onto the provided router.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/list", h.list)
	r.Get("/single/{productID}", h.get)
	if h.authn != nil {
		admin := r.With(h.authn.RequireAdmin())
		admin.Post("/add", h.add)
		admin.Put("/update/{productID}", h.update)
		admin.Delete("/remove/{productID}", h.remove)
	}
}

type productPayload struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	PriceCents  int64     `json:"priceCents"`
	Description string    `json:"description,omitempty"`
	Rating      *float64  `json:"rating,omitempty"`
	Image       string    `json:"image,omitempty"`
	ImageLink   string    `json:"imageLink,omitempty"`
	ProductLink string    `json:"productLink,omitempty"`
	Category    string    `json:"category"`
	Stock       int64     `json:"stock"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		Title:       product.Title,
		PriceCents:  product.PriceCents,
		Description: product.Description,
		Rating:      product.Rating,
		Image:       product.Image,
		ImageLink:   product.ImageLink,
		ProductLink: product.ProductLink,
		Category:    product.Category,
		Stock:       product.Stock,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
}

func toProductPayloads(products []services.Product) []productPayload {
	payloads := make([]productPayload, 0, len(products))
	for _, product := range products {
		payloads = append(payloads, toProductPayload(product))
	}
	return payloads
}

func (h *ProductHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	listing, err := h.catalog.List(ctx, services.ListProductsFilter{
		Category:  r.URL.Query().Get("category"),
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	payload := map[string]any{"products": toProductPayloads(listing.Products)}
	if listing.NextPageToken != "" {
		payload["nextPageToken"] = listing.NextPageToken
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, payload)
}

func (h *ProductHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	product, err := h.catalog.Get(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"product": toProductPayload(product)})
}

func (h *ProductHandlers) add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxProductFormSize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected multipart form data", http.StatusBadRequest))
		return
	}
	defer cleanupMultipart(r)

	cmd := services.AddProductCommand{
		Title:       r.FormValue("title"),
		Price:       r.FormValue("price"),
		Description: r.FormValue("description"),
		Rating:      r.FormValue("rating"),
		Category:    r.FormValue("category"),
		ImageLink:   r.FormValue("imageLink"),
		ProductLink: r.FormValue("productLink"),
	}
	if raw := strings.TrimSpace(r.FormValue("stock")); raw != "" {
		stock, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "stock must be an integer", http.StatusBadRequest))
			return
		}
		cmd.Stock = &stock
	}

	if upload, header, ok, err := formImage(r); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	} else if ok {
		defer upload.Close()
		cmd.Image = &services.ImageUpload{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Reader:      upload,
		}
	}

	product, err := h.catalog.Add(ctx, cmd)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusCreated, map[string]any{
		"message": "product added",
		"product": toProductPayload(product),
	})
}

type updateProductRequest struct {
	Title       *string `json:"title"`
	Price       *string `json:"price"`
	Description *string `json:"description"`
	Rating      *string `json:"rating"`
	Category    *string `json:"category"`
	ImageLink   *string `json:"imageLink"`
	ProductLink *string `json:"productLink"`
	Stock       *int64  `json:"stock"`
}

func (h *ProductHandlers) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cmd := services.UpdateProductCommand{ProductID: chi.URLParam(r, "productID")}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxProductFormSize); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed multipart form", http.StatusBadRequest))
			return
		}
		defer cleanupMultipart(r)
		applyFormUpdates(r, &cmd)
		if raw := strings.TrimSpace(r.FormValue("stock")); raw != "" {
			stock, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "stock must be an integer", http.StatusBadRequest))
				return
			}
			cmd.Stock = &stock
		}
		if upload, header, ok, err := formImage(r); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		} else if ok {
			defer upload.Close()
			cmd.Image = &services.ImageUpload{
				FileName:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Reader:      upload,
			}
		}
	} else {
		var req updateProductRequest
		if err := decodeJSONBody(r, &req); err != nil {
			writeBodyError(ctx, w, err)
			return
		}
		cmd.Title = req.Title
		cmd.Price = req.Price
		cmd.Description = req.Description
		cmd.Rating = req.Rating
		cmd.Category = req.Category
		cmd.ImageLink = req.ImageLink
		cmd.ProductLink = req.ProductLink
		cmd.Stock = req.Stock
	}

	product, err := h.catalog.Update(ctx, cmd)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{
		"message": "product updated",
		"product": toProductPayload(product),
	})
}

func (h *ProductHandlers) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.catalog.Remove(ctx, chi.URLParam(r, "productID")); err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"message": "product removed"})
}

// applyFormUpdates copies multipart fields into the partial update command,
// treating only present fields as changes.
func applyFormUpdates(r *http.Request, cmd *services.UpdateProductCommand) {
	fields := map[string]**string{
		"title":       &cmd.Title,
		"price":       &cmd.Price,
		"description": &cmd.Description,
		"rating":      &cmd.Rating,
		"category":    &cmd.Category,
		"imageLink":   &cmd.ImageLink,
		"productLink": &cmd.ProductLink,
	}
	for name, target := range fields {
		if values, ok := r.MultipartForm.Value[name]; ok && len(values) > 0 {
			value := values[0]
			*target = &value
		}
	}
}

func formImage(r *http.Request) (multipart.File, *multipart.FileHeader, bool, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, false, nil
		}
		return nil, nil, false, errors.New("image upload is malformed")
	}
	return file, header, true, nil
}

func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

func (h *ProductHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductExists):
		httpx.WriteError(ctx, w, httpx.NewError("product_exists", "a product with this title already exists", http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
