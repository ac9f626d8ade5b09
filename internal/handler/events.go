package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// keepAliveInterval задаёт период комментариев-пингов, чтобы прокси не закрывали простаивающий поток.
var keepAliveInterval = 25 * time.Second

func writeEvent(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// startStream отправляет заголовки text/event-stream. Возвращает false, если соединение не поддерживает сброс буфера.
func (h *Handler) startStream(w http.ResponseWriter, r *http.Request) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming unsupported", zap.String("path", r.URL.Path))
		writeStatus(w, http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return flusher, true
}

// OrderEvents транслирует состояние заказа и однократные эффекты переходов.
// Поток завершается, когда заказ доходит до финального статуса или лента изменений недоступна.
func (h *Handler) OrderEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	updates, err := h.service.WatchOrder(r.Context(), userID, chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err, "watch order error")
		return
	}

	flusher, ok := h.startStream(w, r)
	if !ok {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, "order", newTrackingResponse(u)); err != nil {
				h.logger.Debug("order stream closed", zap.Int64("userID", userID), zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

// ActiveOrderEvents транслирует баннер активного заказа пользователя.
func (h *Handler) ActiveOrderEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	updates, err := h.service.WatchActiveOrder(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err, "watch active order error")
		return
	}

	flusher, ok := h.startStream(w, r)
	if !ok {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, "active_order", newActiveOrderResponse(u)); err != nil {
				h.logger.Debug("active order stream closed", zap.Int64("userID", userID), zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}
