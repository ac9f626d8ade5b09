// Package lifecycle описывает жизненный цикл заказа: допустимые переходы статусов,
// отслеживание прогресса и однократные побочные эффекты переходов.
package lifecycle

import (
	"time"

	"github.com/mmeshcher/ondeir/internal/model"
)

const (
	// StaleAfter задаёт возраст, после которого незавершённый заказ не показывается в баннере активного заказа.
	StaleAfter = 24 * time.Hour
	// RestaurantReviewWindow задаёт период, в течение которого предлагается оценить заведение.
	RestaurantReviewWindow = 7 * 24 * time.Hour
)

// Steps перечисляет шаги шкалы прогресса в порядке следования. confirmed может отсутствовать в старых заказах.
var Steps = []model.OrderStatus{
	model.OrderStatusPending,
	model.OrderStatusPreparing,
	model.OrderStatusConfirmed,
	model.OrderStatusReady,
	model.OrderStatusDelivered,
}

// ActiveStatuses перечисляет статусы заказов, которые ещё выполняются.
var ActiveStatuses = []model.OrderStatus{
	model.OrderStatusPending,
	model.OrderStatusPreparing,
	model.OrderStatusConfirmed,
	model.OrderStatusReady,
}

// Step возвращает индекс статуса на шкале прогресса или -1 для canceled и неизвестных статусов.
func Step(s model.OrderStatus) int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return -1
}

// IsKnown сообщает, известен ли статус.
func IsKnown(s model.OrderStatus) bool {
	return s == model.OrderStatusCanceled || Step(s) >= 0
}

// IsTerminal сообщает, является ли статус конечным.
func IsTerminal(s model.OrderStatus) bool {
	return s == model.OrderStatusDelivered || s == model.OrderStatusCanceled
}

// CanTransition сообщает, допустим ли переход from -> to. Переходы только вперёд
// (промежуточные шаги можно пропускать), отмена возможна из любого незавершённого статуса.
func CanTransition(from, to model.OrderStatus) bool {
	if IsTerminal(from) || !IsKnown(from) || !IsKnown(to) {
		return false
	}
	if to == model.OrderStatusCanceled {
		return true
	}
	return Step(to) > Step(from)
}

// CanCustomerCancel сообщает, может ли покупатель сам отменить заказ.
// После принятия заказа отмена возможна только через поддержку.
func CanCustomerCancel(s model.OrderStatus) bool {
	return s == model.OrderStatusPending
}

// IsStale сообщает, что заказ создан более StaleAfter назад.
func IsStale(createdAt, now time.Time) bool {
	return now.Sub(createdAt) > StaleAfter
}

// WithinReviewWindow сообщает, можно ли ещё предложить оценить заведение по заказу.
func WithinReviewWindow(createdAt, now time.Time) bool {
	return now.Sub(createdAt) <= RestaurantReviewWindow
}

// CoinReward возвращает количество монет за доставленный заказ: целая часть суммы заказа.
func CoinReward(total model.Cents) int64 {
	if total <= 0 {
		return 0
	}
	return int64(total / 100)
}
