package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/ondeir/internal/cart"
	"github.com/mmeshcher/ondeir/internal/checkout"
	"github.com/mmeshcher/ondeir/internal/model"
	"github.com/mmeshcher/ondeir/internal/repository"
	"github.com/mmeshcher/ondeir/internal/validation"
)

// CheckoutQuote содержит расчёт заказа для экрана оформления.
type CheckoutQuote struct {
	checkout.Quote
	MarketID   string
	MarketName string
	// CustomerName содержит имя из профиля для предзаполнения формы.
	CustomerName string
	CoinBalance  int64
}

// Quote рассчитывает заказ по текущей корзине без сохранения.
func (s *Service) Quote(ctx context.Context, userID int64, orderType model.OrderType, useCoins bool) (*CheckoutQuote, error) {
	c, err := s.carts.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if c.IsEmpty() || c.MarketID == nil {
		return nil, checkout.Validate(checkout.Request{}, 0, checkout.Quote{})
	}

	market, err := s.repo.GetMarket(ctx, *c.MarketID)
	if err != nil {
		return nil, err
	}

	balance := s.coinBalance(ctx, userID)

	res := &CheckoutQuote{
		Quote:       quote(c, orderType, *market, balance, useCoins),
		MarketID:    market.ID,
		MarketName:  market.Name,
		CoinBalance: balance,
	}

	if u, err := s.repo.GetUser(ctx, userID); err == nil {
		res.CustomerName = u.DisplayName
	}

	return res, nil
}

func quote(c *cart.Cart, orderType model.OrderType, market model.Market, balance int64, useCoins bool) checkout.Quote {
	if orderType == "" {
		orderType = model.OrderTypeDelivery
	}
	return checkout.Calculate(checkout.Input{
		Lines:       c.Lines,
		Type:        orderType,
		Market:      market,
		CoinBalance: balance,
		UseCoins:    useCoins,
	})
}

// PlaceOrder оформляет заказ из корзины пользователя. Заказ, его строки и списание монет
// сохраняются одной транзакцией; при успехе корзина удаляется.
func (s *Service) PlaceOrder(ctx context.Context, userID int64, req checkout.Request) (*model.Order, error) {
	if _, busy := s.submitting.LoadOrStore(userID, struct{}{}); busy {
		return nil, ErrSubmitInProgress
	}
	defer s.submitting.Delete(userID)

	c, err := s.carts.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if c.IsEmpty() || c.MarketID == nil {
		return nil, checkout.Validate(req, 0, checkout.Quote{})
	}

	market, err := s.repo.GetMarket(ctx, *c.MarketID)
	if err != nil {
		return nil, err
	}

	if req.Type == "" {
		req.Type = model.OrderTypeDelivery
	}

	q := quote(c, req.Type, *market, s.coinBalance(ctx, userID), req.UseCoins)
	if err := checkout.Validate(req, len(c.Lines), q); err != nil {
		return nil, err
	}

	var address model.AddressSnapshot
	if req.Type == model.OrderTypeDelivery {
		a, err := s.repo.GetAddress(ctx, userID, req.AddressID)
		if err != nil {
			if errors.Is(err, repository.ErrAddressNotFound) {
				return nil, &checkout.FieldError{Field: "address_id", Message: "Endereço não encontrado"}
			}
			return nil, err
		}
		address = a.Snapshot()
	}

	code, err := validation.GenerateDeliveryCode()
	if err != nil {
		return nil, fmt.Errorf("generate delivery code: %w", err)
	}

	method := checkout.PaymentMethodFor(req, q)
	paymentStatus := model.PaymentStatusPending
	if !q.PaymentRequired {
		paymentStatus = model.PaymentStatusPaid
	}

	var changeFor *model.Cents
	if method == model.PaymentCash && req.ChangeFor != nil {
		v := *req.ChangeFor
		changeFor = &v
	}

	o := &model.Order{
		ID:            uuid.NewString(),
		MarketID:      market.ID,
		MarketName:    market.Name,
		MarketPhone:   market.Phone,
		UserID:        userID,
		CustomerName:  req.CustomerName,
		Type:          req.Type,
		Status:        model.OrderStatusPending,
		PaymentMethod: method,
		PaymentStatus: paymentStatus,
		ChangeFor:     changeFor,
		Subtotal:      q.Subtotal,
		DeliveryFee:   q.DeliveryFee,
		Discount:      q.Discount,
		Total:         q.Total,
		CoinsUsed:     q.CoinsToUse,
		Address:       address,
		DeliveryCode:  code,
		Items:         checkout.Items(c.Lines),
	}
	for i := range o.Items {
		o.Items[i].ID = uuid.NewString()
		o.Items[i].OrderID = o.ID
	}

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return nil, err
	}

	if err := s.carts.Delete(ctx, userID); err != nil {
		s.logger.Warn("failed to clear cart after checkout", zap.Int64("userID", userID), zap.String("order", o.ID), zap.Error(err))
	}

	return o, nil
}
