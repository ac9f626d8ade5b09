// Package fulfillment предоставляет клиент внешней системы исполнения заказов:
// заведения и курьеры сообщают через неё статус приготовления и доставки.
package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/ondeir/internal/model"
)

// ErrNotRegistered возвращается, если система исполнения ещё не знает о заказе.
var ErrNotRegistered = errors.New("order is not registered in fulfillment system")

// RateLimitError возвращается при ответе 429; RetryAfter содержит паузу перед следующим запросом.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("fulfillment rate limited, retry after %s", e.RetryAfter)
}

// Courier описывает курьера, назначенного на заказ.
type Courier struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Report описывает ответ системы исполнения по одному заказу.
type Report struct {
	Order   string   `json:"order"`
	Status  string   `json:"status"`
	Courier *Courier `json:"courier,omitempty"`

	// ConfirmationCode содержит код, который покупатель назвал курьеру при доставке.
	ConfirmationCode string `json:"confirmation_code,omitempty"`
}

// OrderStatus переводит внешний статус в статус заказа. Неизвестный статус возвращает false.
func (r Report) OrderStatus() (model.OrderStatus, bool) {
	switch strings.ToUpper(r.Status) {
	case "PENDING", "NEW":
		return model.OrderStatusPending, true
	case "PREPARING", "PROCESSING":
		return model.OrderStatusPreparing, true
	case "CONFIRMED":
		return model.OrderStatusConfirmed, true
	case "READY":
		return model.OrderStatusReady, true
	case "DELIVERED":
		return model.OrderStatusDelivered, true
	case "CANCELED", "CANCELLED", "INVALID":
		return model.OrderStatusCanceled, true
	}
	return "", false
}

// Client инкапсулирует HTTP-взаимодействие с системой исполнения.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для системы исполнения по указанному адресу.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Configured сообщает, задан ли адрес системы исполнения.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// GetReport запрашивает текущий статус заказа.
func (c *Client) GetReport(ctx context.Context, orderID string) (*Report, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("fulfillment client not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/orders/"+orderID, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return nil, ErrNotRegistered
	case http.StatusTooManyRequests:
		rl := &RateLimitError{}
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			rl.RetryAfter = time.Duration(seconds) * time.Second
		}
		return nil, rl
	default:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &report, nil
}
