package lifecycle

import (
	"sync"
	"time"

	"github.com/mmeshcher/ondeir/internal/model"
)

// CelebrationDwell задаёт время показа баннера с наградой после доставки.
const CelebrationDwell = 5 * time.Second

// EffectKind описывает вид однократного эффекта перехода.
type EffectKind string

const (
	EffectRevealCode       EffectKind = "reveal_code"
	EffectReviewPrompt     EffectKind = "review_prompt"
	EffectRestaurantReview EffectKind = "restaurant_review"
	EffectCoinReward       EffectKind = "coin_reward"
	EffectCanceled         EffectKind = "canceled"
)

// Effect описывает побочный эффект, который клиент должен выполнить один раз.
type Effect struct {
	Kind         EffectKind
	OrderID      string
	DeliveryCode string
	ReviewSteps  []model.ReviewTarget
	Reward       int64
	Dwell        time.Duration
	MarketPhone  string
}

// Snapshot содержит актуальное состояние заказа, полученное повторным чтением после уведомления.
type Snapshot struct {
	Order model.Order
	// Reviewed содержит объекты, уже оценённые по заказу.
	Reviewed map[model.ReviewTarget]bool
}

// Tracker отслеживает прогресс одного заказа. Уведомления доставляются как минимум один раз
// и могут приходить повторно или не по порядку, поэтому шаг никогда не уменьшается,
// а каждый эффект срабатывает не более одного раза.
type Tracker struct {
	mu       sync.Mutex
	orderID  string
	step     int
	canceled bool
	fired    map[EffectKind]bool
}

// NewTracker создаёт трекер заказа.
func NewTracker(orderID string) *Tracker {
	return &Tracker{
		orderID: orderID,
		step:    -1,
		fired:   make(map[EffectKind]bool),
	}
}

// Step возвращает наибольший достигнутый индекс шага на шкале прогресса или -1, пока известных статусов не было.
func (t *Tracker) Step() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.step
}

// Status возвращает отображаемый статус.
func (t *Tracker) Status() model.OrderStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canceled {
		return model.OrderStatusCanceled
	}
	if t.step < 0 {
		return ""
	}
	return Steps[t.step]
}

// Observe применяет очередное состояние заказа и возвращает эффекты, которые ещё не срабатывали.
func (t *Tracker) Observe(s Snapshot, now time.Time) []Effect {
	t.mu.Lock()
	defer t.mu.Unlock()

	o := s.Order
	if o.ID != t.orderID || t.canceled {
		return nil
	}

	if o.Status == model.OrderStatusCanceled {
		if t.step == Step(model.OrderStatusDelivered) {
			return nil
		}
		t.canceled = true
		return t.fire(nil, Effect{Kind: EffectCanceled, OrderID: o.ID, MarketPhone: o.MarketPhone})
	}

	idx := Step(o.Status)
	if idx < 0 || idx < t.step {
		return nil
	}
	t.step = idx

	var effects []Effect

	switch o.Status {
	case model.OrderStatusReady:
		effects = t.fire(effects, Effect{Kind: EffectRevealCode, OrderID: o.ID, DeliveryCode: o.DeliveryCode})

	case model.OrderStatusDelivered:
		if steps := NewReviewFlow(o.CourierID != nil, s.Reviewed).Remaining(); len(steps) > 0 {
			effects = t.fire(effects, Effect{Kind: EffectReviewPrompt, OrderID: o.ID, ReviewSteps: steps})
		}

		if !s.Reviewed[model.ReviewTargetRestaurant] && WithinReviewWindow(o.CreatedAt, now) {
			effects = t.fire(effects, Effect{Kind: EffectRestaurantReview, OrderID: o.ID})
		}

		reward := CoinReward(o.Total)
		dwell := CelebrationDwell
		if reward == 0 {
			dwell = 0
		}
		effects = t.fire(effects, Effect{Kind: EffectCoinReward, OrderID: o.ID, Reward: reward, Dwell: dwell})
	}

	return effects
}

func (t *Tracker) fire(effects []Effect, e Effect) []Effect {
	if t.fired[e.Kind] {
		return effects
	}
	t.fired[e.Kind] = true
	return append(effects, e)
}
