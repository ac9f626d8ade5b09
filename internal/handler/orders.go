package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/ondeir/internal/service"
)

// ListOrders возвращает историю заказов текущего пользователя.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err, "list orders error")
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	res := make([]orderResponse, 0, len(orders))
	for i := range orders {
		res = append(res, newOrderResponse(&orders[i]))
	}

	writeJSON(w, http.StatusOK, res)
}

// GetOrder возвращает заказ со строками и курьером.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	o, err := h.service.GetOrder(r.Context(), userID, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err, "get order error")
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// CancelOrder отменяет ещё не принятый заказ. Требует confirm=true.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if !confirmed(w, r) {
		return
	}

	if err := h.service.CancelOrder(r.Context(), userID, chi.URLParam(r, "orderID")); err != nil {
		h.writeError(w, r, err, "cancel order error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ActiveOrder возвращает заказ для баннера или 204, если активного заказа нет.
func (h *Handler) ActiveOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	o, err := h.service.ActiveOrder(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err, "active order error")
		return
	}
	if o == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// PendingReviews возвращает шаги оценки, ещё доступные по заказу.
func (h *Handler) PendingReviews(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	pending, err := h.service.PendingReviews(r.Context(), userID, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err, "pending reviews error")
		return
	}

	writeJSON(w, http.StatusOK, pendingReviewsResponse{Pending: pending})
}

// SubmitReview сохраняет оценку и возвращает следующий шаг.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req reviewRequest
	if err := decode(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	res, err := h.service.SubmitReview(r.Context(), userID, chi.URLParam(r, "orderID"), service.ReviewRequest{
		Target:  req.TargetType,
		Rating:  req.Rating,
		Tags:    req.Tags,
		Comment: req.Comment,
	})
	if err != nil {
		h.writeError(w, r, err, "submit review error")
		return
	}

	writeJSON(w, http.StatusCreated, reviewResponse{
		ID:         res.Review.ID,
		TargetType: res.Review.TargetType,
		Rating:     res.Review.Rating,
		Tags:       res.Review.Tags,
		Comment:    res.Review.Comment,
		Next:       res.Next,
	})
}

// PendingRestaurantReview возвращает недавний доставленный заказ, ресторан которого ещё не оценён.
func (h *Handler) PendingRestaurantReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	o, err := h.service.PendingRestaurantReview(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err, "pending restaurant review error")
		return
	}
	if o == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// ListAddresses возвращает адресную книгу.
func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	addresses, err := h.service.ListAddresses(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err, "list addresses error")
		return
	}

	res := make([]addressResponse, 0, len(addresses))
	for _, a := range addresses {
		res = append(res, newAddressResponse(a))
	}

	writeJSON(w, http.StatusOK, res)
}

// CreateAddress добавляет адрес в адресную книгу.
func (h *Handler) CreateAddress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req addressRequest
	if err := decode(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	a, err := h.service.CreateAddress(r.Context(), userID, service.AddressInput{
		Name:         req.Name,
		Street:       req.Street,
		Number:       req.Number,
		Neighborhood: req.Neighborhood,
		Complement:   req.Complement,
	})
	if err != nil {
		h.writeError(w, r, err, "create address error")
		return
	}

	writeJSON(w, http.StatusCreated, newAddressResponse(*a))
}

// DeleteAddress удаляет адрес.
func (h *Handler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteAddress(r.Context(), userID, chi.URLParam(r, "addressID")); err != nil {
		h.writeError(w, r, err, "delete address error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
