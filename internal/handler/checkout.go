package handler

import (
	"net/http"

	"github.com/mmeshcher/ondeir/internal/checkout"
	"github.com/mmeshcher/ondeir/internal/model"
)

// Quote рассчитывает заказ по текущей корзине без сохранения.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req quoteRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeStatus(w, http.StatusBadRequest)
			return
		}
	}

	quote, err := h.service.Quote(r.Context(), userID, req.OrderType, req.UseCoins)
	if err != nil {
		h.writeError(w, r, err, "quote error")
		return
	}

	writeJSON(w, http.StatusOK, newQuoteResponse(quote))
}

// Checkout оформляет заказ по текущей корзине.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := decode(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	in := checkout.Request{
		Type:          req.OrderType,
		AddressID:     req.AddressID,
		CustomerName:  req.CustomerName,
		PaymentMethod: req.PaymentMethod,
		UseCoins:      req.UseCoins,
	}
	if req.ChangeFor != nil {
		v := model.CentsFromFloat(*req.ChangeFor)
		in.ChangeFor = &v
	}

	o, err := h.service.PlaceOrder(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, r, err, "place order error")
		return
	}

	writeJSON(w, http.StatusCreated, newOrderResponse(o))
}
