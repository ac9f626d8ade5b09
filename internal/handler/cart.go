package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/ondeir/internal/service"
)

// GetProduct возвращает позицию меню с группами дополнений.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "marketID"), chi.URLParam(r, "productID"))
	if err != nil {
		h.writeError(w, r, err, "get product error")
		return
	}

	writeJSON(w, http.StatusOK, newProductResponse(p))
}

// Configure применяет изменение выбора дополнений и возвращает пересчитанную цену.
func (h *Handler) Configure(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if err := decode(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	cfg, err := h.service.Configure(r.Context(), chi.URLParam(r, "marketID"), chi.URLParam(r, "productID"), service.ConfigureRequest{
		Selections: req.Selections,
		GroupID:    req.GroupID,
		ItemID:     req.ItemID,
		Delta:      req.Delta,
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err, "configure product error")
		return
	}

	writeJSON(w, http.StatusOK, configurationResponse{
		Selections:  cfg.Selections,
		UnitPrice:   cfg.UnitPrice.Float(),
		Valid:       cfg.Valid,
		Description: cfg.Description,
		Warning:     cfg.Warning,
	})
}

// GetCart возвращает корзину текущего пользователя.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	c, err := h.service.GetCart(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err, "get cart error")
		return
	}

	writeJSON(w, http.StatusOK, newCartResponse(c))
}

// AddCartLine добавляет позицию с выбранными дополнениями в корзину.
func (h *Handler) AddCartLine(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req addLineRequest
	if err := decode(r, &req); err != nil || req.MarketID == "" || req.ProductID == "" {
		writeStatus(w, http.StatusBadRequest)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	c, err := h.service.AddToCart(r.Context(), userID, service.AddLineRequest{
		MarketID:    req.MarketID,
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		Selections:  req.Selections,
		Notes:       req.Notes,
		ReplaceCart: req.ReplaceCart,
	})
	if err != nil {
		h.writeError(w, r, err, "add cart line error")
		return
	}

	writeJSON(w, http.StatusOK, newCartResponse(c))
}

// UpdateCartLine меняет количество позиции в корзине.
func (h *Handler) UpdateCartLine(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req quantityRequest
	if err := decode(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	c, err := h.service.UpdateCartLine(r.Context(), userID, chi.URLParam(r, "lineID"), req.Quantity)
	if err != nil {
		h.writeError(w, r, err, "update cart line error")
		return
	}

	writeJSON(w, http.StatusOK, newCartResponse(c))
}

// RemoveCartLine удаляет позицию из корзины.
func (h *Handler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	c, err := h.service.RemoveCartLine(r.Context(), userID, chi.URLParam(r, "lineID"))
	if err != nil {
		h.writeError(w, r, err, "remove cart line error")
		return
	}

	writeJSON(w, http.StatusOK, newCartResponse(c))
}

// ClearCart очищает корзину. Требует confirm=true.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if !confirmed(w, r) {
		return
	}

	if err := h.service.ClearCart(r.Context(), userID); err != nil {
		h.writeError(w, r, err, "clear cart error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
