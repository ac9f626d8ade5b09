package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/ondeir/internal/fulfillment"
	"github.com/mmeshcher/ondeir/internal/lifecycle"
	"github.com/mmeshcher/ondeir/internal/model"
	"github.com/mmeshcher/ondeir/internal/repository"
	"github.com/mmeshcher/ondeir/internal/validation"
)

const fulfillmentBatchSize = 100

// StartFulfillmentUpdates запускает фоновый опрос системы исполнения. Только система исполнения
// меняет статусы заказов, кроме отмены ожидающего заказа покупателем.
func (s *Service) StartFulfillmentUpdates(ctx context.Context, interval time.Duration) {
	if s.fulfillment == nil || !s.fulfillment.Configured() {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processFulfillmentBatch(ctx)
			}
		}
	}()
}

func (s *Service) processFulfillmentBatch(ctx context.Context) {
	orders, err := s.repo.GetOrdersForFulfillment(ctx, lifecycle.ActiveStatuses, fulfillmentBatchSize)
	if err != nil {
		s.logger.Warn("failed to load orders for fulfillment", zap.Error(err))
		return
	}

	for _, o := range orders {
		report, err := s.fulfillment.GetReport(ctx, o.ID)
		if err != nil {
			var rl *fulfillment.RateLimitError
			switch {
			case errors.As(err, &rl):
				wait(ctx, rl.RetryAfter)
				return
			case errors.Is(err, fulfillment.ErrNotRegistered):
				continue
			default:
				s.logger.Warn("fulfillment request failed", zap.String("order", o.ID), zap.Error(err))
				continue
			}
		}

		to, ok := report.OrderStatus()
		if !ok {
			s.logger.Warn("unknown fulfillment status", zap.String("order", o.ID), zap.String("status", report.Status))
			continue
		}
		if to == o.Status {
			continue
		}
		if !lifecycle.CanTransition(o.Status, to) {
			s.logger.Warn("rejected status transition",
				zap.String("order", o.ID), zap.String("from", string(o.Status)), zap.String("to", string(to)))
			continue
		}

		if to == model.OrderStatusDelivered && !s.deliveryConfirmed(o, report) {
			continue
		}

		upd := repository.StatusUpdate{OrderID: o.ID, From: o.Status, To: to}
		if report.Courier != nil && report.Courier.ID != "" {
			courierID := report.Courier.ID
			upd.CourierID = &courierID
			upd.CourierName = report.Courier.Name
		}
		if to == model.OrderStatusDelivered {
			upd.Reward = lifecycle.CoinReward(o.Total)
		}

		if err := s.repo.UpdateOrderStatus(ctx, upd); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				s.logger.Debug("order status changed concurrently", zap.String("order", o.ID))
				continue
			}
			s.logger.Warn("failed to update order status", zap.String("order", o.ID), zap.Error(err))
		}
	}
}

// deliveryConfirmed проверяет код подтверждения из отчёта о доставке. Отчёт без кода принимается:
// не все заведения запрашивают код у покупателя.
func (s *Service) deliveryConfirmed(o repository.OrderForFulfillment, report *fulfillment.Report) bool {
	code := report.ConfirmationCode
	if code == "" {
		return true
	}
	if !validation.IsValidDeliveryCode(code) || code != o.DeliveryCode {
		s.logger.Warn("delivery confirmation code mismatch", zap.String("order", o.ID))
		return false
	}
	return true
}

func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
