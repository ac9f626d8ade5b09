package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mmeshcher/ondeir/internal/lifecycle"
	"github.com/mmeshcher/ondeir/internal/model"
	"github.com/mmeshcher/ondeir/internal/realtime"
	"github.com/mmeshcher/ondeir/internal/repository"
)

// ListOrders возвращает историю заказов пользователя.
func (s *Service) ListOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.ListOrdersByUser(ctx, userID)
}

// GetOrder возвращает заказ пользователя с заведением, строками и курьером.
func (s *Service) GetOrder(ctx context.Context, userID int64, orderID string) (*model.Order, error) {
	return s.repo.GetOrder(ctx, userID, orderID)
}

// CancelOrder отменяет заказ, пока заведение его не приняло.
func (s *Service) CancelOrder(ctx context.Context, userID int64, orderID string) error {
	o, err := s.repo.GetOrder(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if !lifecycle.CanCustomerCancel(o.Status) {
		return ErrCancelNotAllowed
	}

	if err := s.repo.CancelOrder(ctx, userID, orderID); err != nil {
		if errors.Is(err, repository.ErrOrderNotCancelable) {
			return ErrCancelNotAllowed
		}
		return err
	}
	return nil
}

// ActiveOrder возвращает последний незавершённый заказ для баннера. Заказы старше суток
// считаются брошенными и не показываются. Если активного заказа нет, возвращается nil.
func (s *Service) ActiveOrder(ctx context.Context, userID int64) (*model.Order, error) {
	now := s.now()

	o, err := s.repo.GetLatestOrderWithStatus(ctx, userID, lifecycle.ActiveStatuses, now.Add(-lifecycle.StaleAfter))
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if lifecycle.IsStale(o.CreatedAt, now) {
		return nil, nil
	}
	return o, nil
}

// snapshot перечитывает заказ вместе с признаками уже оставленных отзывов.
func (s *Service) snapshot(ctx context.Context, userID int64, orderID string) (lifecycle.Snapshot, error) {
	o, err := s.repo.GetOrder(ctx, userID, orderID)
	if err != nil {
		return lifecycle.Snapshot{}, err
	}

	reviewed, err := s.repo.ReviewedTargets(ctx, orderID)
	if err != nil {
		return lifecycle.Snapshot{}, err
	}

	return lifecycle.Snapshot{Order: *o, Reviewed: reviewed}, nil
}

// claimEffects оставляет только эффекты, которые ещё не срабатывали для заказа ни в одном потоке.
// Если отметку записать не удалось, эффекты не показываются: повтор хуже пропуска.
func (s *Service) claimEffects(ctx context.Context, orderID string, effects []lifecycle.Effect) []lifecycle.Effect {
	if len(effects) == 0 {
		return nil
	}

	kinds := make([]string, 0, len(effects))
	for _, e := range effects {
		kinds = append(kinds, string(e.Kind))
	}

	claimed, err := s.repo.ClaimOrderEffects(ctx, orderID, kinds)
	if err != nil {
		s.logger.Warn("failed to claim order effects", zap.String("order", orderID), zap.Error(err))
		return nil
	}

	won := make(map[string]bool, len(claimed))
	for _, k := range claimed {
		won[k] = true
	}

	res := effects[:0]
	for _, e := range effects {
		if won[string(e.Kind)] {
			res = append(res, e)
		}
	}
	return res
}

// TrackingUpdate содержит очередное состояние отслеживаемого заказа.
type TrackingUpdate struct {
	Order model.Order
	// Step содержит наибольший достигнутый шаг шкалы прогресса.
	Step    int
	Effects []lifecycle.Effect
	// Live сообщает, подписан ли поток на ленту изменений. Без неё клиент видит последний снимок.
	Live bool
}

// WatchOrder отдаёт текущее состояние заказа и затем новое состояние после каждого уведомления.
// Однократные эффекты срабатывают не более одного раза на заказ, сколько бы потоков его ни отслеживало.
// Канал закрывается при отмене ctx, обрыве ленты или переходе заказа в финальный статус.
func (s *Service) WatchOrder(ctx context.Context, userID int64, orderID string) (<-chan TrackingUpdate, error) {
	// Подписка оформляется до чтения снимка, иначе уведомление между ними потеряется.
	events, cancel, err := s.subscribeOrder(orderID)
	live := err == nil
	if !live {
		s.logger.Debug("order feed unavailable, serving snapshot", zap.String("order", orderID), zap.Error(err))
	}

	snap, err := s.snapshot(ctx, userID, orderID)
	if err != nil {
		if live {
			cancel()
		}
		return nil, err
	}

	tracker := lifecycle.NewTracker(orderID)
	out := make(chan TrackingUpdate, 1)

	go func() {
		defer close(out)
		if live {
			defer cancel()
		}

		emit := func(snap lifecycle.Snapshot) bool {
			effects := s.claimEffects(ctx, orderID, tracker.Observe(snap, s.now()))
			u := TrackingUpdate{Order: snap.Order, Step: tracker.Step(), Effects: effects, Live: live}
			select {
			case out <- u:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit(snap) || !live || lifecycle.IsTerminal(tracker.Status()) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
			}

			snap, err := s.snapshot(ctx, userID, orderID)
			if err != nil {
				s.logger.Warn("failed to refetch tracked order", zap.String("order", orderID), zap.Error(err))
				continue
			}

			if !emit(snap) || lifecycle.IsTerminal(tracker.Status()) {
				return
			}
		}
	}()

	return out, nil
}

// ActiveOrderUpdate содержит состояние баннера активного заказа.
type ActiveOrderUpdate struct {
	Order *model.Order
	Live  bool
}

// WatchActiveOrder отдаёт активный заказ пользователя и перечитывает его после любого изменения его заказов.
func (s *Service) WatchActiveOrder(ctx context.Context, userID int64) (<-chan ActiveOrderUpdate, error) {
	events, cancel, err := s.subscribeUser(userID)
	live := err == nil
	if !live {
		s.logger.Debug("user feed unavailable, serving snapshot", zap.Int64("userID", userID), zap.Error(err))
	}

	active, err := s.ActiveOrder(ctx, userID)
	if err != nil {
		if live {
			cancel()
		}
		return nil, err
	}

	out := make(chan ActiveOrderUpdate, 1)

	go func() {
		defer close(out)
		if live {
			defer cancel()
		}

		emit := func(o *model.Order) bool {
			select {
			case out <- ActiveOrderUpdate{Order: o, Live: live}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit(active) || !live {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
			}

			active, err := s.ActiveOrder(ctx, userID)
			if err != nil {
				s.logger.Warn("failed to refetch active order", zap.Int64("userID", userID), zap.Error(err))
				continue
			}
			if !emit(active) {
				return
			}
		}
	}()

	return out, nil
}

func (s *Service) subscribeOrder(orderID string) (<-chan realtime.Event, func(), error) {
	if s.feed == nil {
		return nil, nil, realtime.ErrFeedUnavailable
	}
	return s.feed.SubscribeOrder(orderID)
}

func (s *Service) subscribeUser(userID int64) (<-chan realtime.Event, func(), error) {
	if s.feed == nil {
		return nil, nil, realtime.ErrFeedUnavailable
	}
	return s.feed.SubscribeUser(userID)
}
