// Package checkout рассчитывает итоговую стоимость заказа: сумму позиций, доставку,
// скидку монетами и сумму к оплате.
package checkout

import (
	"github.com/mmeshcher/ondeir/internal/cart"
	"github.com/mmeshcher/ondeir/internal/model"
)

// CoinUnitValue задаёт стоимость одной монеты.
const CoinUnitValue model.Cents = 5

// Input содержит данные для расчёта заказа.
type Input struct {
	Lines       []cart.Line
	Type        model.OrderType
	Market      model.Market
	CoinBalance int64
	UseCoins    bool
}

// Quote содержит результат расчёта заказа.
type Quote struct {
	Subtotal        model.Cents
	DeliveryFee     model.Cents
	MaxCoins        int64
	CoinsToUse      int64
	Discount        model.Cents
	Total           model.Cents
	PaymentRequired bool
	CoinsAccepted   bool
	DeliveryTimeMin int
	DeliveryTimeMax int
}

// Calculate рассчитывает заказ. Монеты покрывают не больше суммы позиций и никогда не покрывают доставку.
func Calculate(in Input) Quote {
	var subtotal model.Cents
	for _, l := range in.Lines {
		subtotal += l.Price * model.Cents(l.Quantity)
	}

	var fee model.Cents
	if in.Type != model.OrderTypePickup {
		fee = in.Market.DeliveryFee
	}

	maxCoins := int64(0)
	if subtotal > 0 {
		maxCoins = int64(subtotal / CoinUnitValue)
	}

	coins := int64(0)
	if in.UseCoins && in.Market.AcceptsCoins() && in.CoinBalance > 0 {
		coins = min(in.CoinBalance, maxCoins)
	}

	discount := model.Cents(coins) * CoinUnitValue

	total := subtotal + fee - discount
	if total < 0 {
		total = 0
	}

	return Quote{
		Subtotal:        subtotal,
		DeliveryFee:     fee,
		MaxCoins:        maxCoins,
		CoinsToUse:      coins,
		Discount:        discount,
		Total:           total,
		PaymentRequired: total > 0,
		CoinsAccepted:   in.Market.AcceptsCoins(),
		DeliveryTimeMin: in.Market.DeliveryTimeMin,
		DeliveryTimeMax: in.Market.DeliveryTimeMax,
	}
}

// Items превращает строки корзины в строки заказа.
func Items(lines []cart.Line) []model.OrderItem {
	items := make([]model.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, model.OrderItem{
			MarketID:   l.MarketID,
			ProductID:  l.ProductID,
			Name:       l.Name,
			Quantity:   l.Quantity,
			UnitPrice:  l.Price,
			TotalPrice: l.Price * model.Cents(l.Quantity),
			Notes:      l.Notes,
		})
	}
	return items
}
