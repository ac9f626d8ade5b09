package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/ondeir/internal/addon"
	"github.com/mmeshcher/ondeir/internal/cart"
	"github.com/mmeshcher/ondeir/internal/checkout"
	"github.com/mmeshcher/ondeir/internal/model"
	"github.com/mmeshcher/ondeir/internal/repository"
	"github.com/mmeshcher/ondeir/internal/validation"
)

const userID int64 = 42

func catalogRepo() *stubRepo {
	return &stubRepo{
		user:  &model.User{ID: userID, Login: "ana", DisplayName: "Ana"},
		coins: 0,
		market: &model.Market{
			ID: "m1", Name: "Lanchonete", Phone: "+55 11 5555-0000",
			DeliveryFee: 700, DeliveryTimeMin: 30, DeliveryTimeMax: 45, CoinBalance: 1000,
		},
		products: map[string]*model.Product{
			"soda": {ID: "soda", MarketID: "m1", Name: "Refrigerante", Price: 2000},
			"burger": {
				ID: "burger", MarketID: "m1", Name: "X-Burger", Price: 1500,
				Addons: []model.AddonGroup{{
					ID: "cheese", Name: "Queijo", MinSelect: 1, MaxSelect: 1, Required: true,
					Items: []model.AddonItem{
						{ID: "cheddar", GroupID: "cheese", Name: "Cheddar", Price: 300},
						{ID: "prato", GroupID: "cheese", Name: "Prato", Price: 0},
					},
				}, {
					ID: "extras", Name: "Extras", MaxSelect: 2,
					Items: []model.AddonItem{
						{ID: "bacon", GroupID: "extras", Name: "Bacon", Price: 450},
					},
				}},
			},
		},
		addresses: map[string]*model.Address{
			"home": {ID: "home", UserID: userID, Street: "Rua A", Number: "10", Neighborhood: "Centro"},
		},
	}
}

func fillCart(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()

	_, err := svc.AddToCart(ctx, userID, AddLineRequest{MarketID: "m1", ProductID: "soda", Quantity: 2})
	require.NoError(t, err)

	_, err = svc.AddToCart(ctx, userID, AddLineRequest{
		MarketID: "m1", ProductID: "burger", Quantity: 1,
		Selections: addon.Selections{"cheese": {"cheddar": 1}},
	})
	require.NoError(t, err)
}

func TestConfigure(t *testing.T) {
	svc := NewService(catalogRepo(), cart.NewMemoryStore(), nil, nil, nil)
	ctx := context.Background()

	cfg, err := svc.Configure(ctx, "m1", "burger", ConfigureRequest{GroupID: "cheese", ItemID: "prato", Delta: 1})
	require.NoError(t, err)
	assert.True(t, cfg.Valid)

	cfg, err = svc.Configure(ctx, "m1", "burger", ConfigureRequest{Selections: cfg.Selections, GroupID: "cheese", ItemID: "cheddar", Delta: 1})
	require.NoError(t, err)
	assert.Equal(t, addon.Selections{"cheese": {"cheddar": 1}}, cfg.Selections)
	assert.Equal(t, model.Cents(1800), cfg.UnitPrice)
	assert.Equal(t, "Queijo: Cheddar", cfg.Description)

	sel := cfg.Selections
	sel["extras"] = map[string]int{"bacon": 2}
	cfg, err = svc.Configure(ctx, "m1", "burger", ConfigureRequest{Selections: sel, GroupID: "extras", ItemID: "bacon", Delta: 1, Notes: "sem cebola"})
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Warning)
	assert.Equal(t, 2, cfg.Selections["extras"]["bacon"])
	assert.Equal(t, "Queijo: Cheddar | Extras: 2 x Bacon | Obs: sem cebola", cfg.Description)

	_, err = svc.Configure(ctx, "m1", "burger", ConfigureRequest{GroupID: "sauce", ItemID: "x", Delta: 1})
	var selErr *addon.SelectionError
	assert.ErrorAs(t, err, &selErr)
}

func TestConfigure_LargeDeltaKeepsGroupWithinMax(t *testing.T) {
	svc := NewService(catalogRepo(), cart.NewMemoryStore(), nil, nil, nil)

	cfg, err := svc.Configure(context.Background(), "m1", "burger", ConfigureRequest{GroupID: "extras", ItemID: "bacon", Delta: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Warning)
	assert.Zero(t, cfg.Selections.GroupTotal("extras"))
	assert.Equal(t, model.Cents(1500), cfg.UnitPrice)
}

func TestConfigure_EmptyRequestShowsBasePrice(t *testing.T) {
	svc := NewService(catalogRepo(), cart.NewMemoryStore(), nil, nil, nil)

	cfg, err := svc.Configure(context.Background(), "m1", "burger", ConfigureRequest{})
	require.NoError(t, err)
	assert.Equal(t, model.Cents(1500), cfg.UnitPrice)
	assert.False(t, cfg.Valid)
	assert.NotNil(t, cfg.Selections)
}

func TestAddToCart(t *testing.T) {
	svc := NewService(catalogRepo(), cart.NewMemoryStore(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.AddToCart(ctx, userID, AddLineRequest{MarketID: "m1", ProductID: "burger", Quantity: 1})
	var selErr *addon.SelectionError
	require.ErrorAs(t, err, &selErr)
	assert.Equal(t, "cheese", selErr.GroupID)

	c, err := svc.AddToCart(ctx, userID, AddLineRequest{
		MarketID: "m1", ProductID: "burger", Quantity: 2, Notes: "bem passado",
		Selections: addon.Selections{"cheese": {"cheddar": 1}},
	})
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, model.Cents(1800), c.Lines[0].Price)
	assert.Equal(t, "Queijo: Cheddar | Obs: bem passado", c.Lines[0].Notes)

	_, err = svc.AddToCart(ctx, userID, AddLineRequest{MarketID: "m2", ProductID: "soda", Quantity: 1})
	assert.ErrorIs(t, err, repository.ErrProductNotFound)

	c, err = svc.UpdateCartLine(ctx, userID, c.Lines[0].LineID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Lines[0].Quantity)

	c, err = svc.RemoveCartLine(ctx, userID, c.Lines[0].LineID)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.Nil(t, c.MarketID)
}

func TestQuote_EndToEnd(t *testing.T) {
	svc := NewService(catalogRepo(), cart.NewMemoryStore(), nil, nil, nil)
	fillCart(t, svc)

	q, err := svc.Quote(context.Background(), userID, model.OrderTypeDelivery, false)
	require.NoError(t, err)
	assert.Equal(t, model.Cents(5800), q.Subtotal)
	assert.Equal(t, model.Cents(700), q.DeliveryFee)
	assert.Equal(t, model.Cents(6500), q.Total)
	assert.Equal(t, "Ana", q.CustomerName)
	assert.Equal(t, "Lanchonete", q.MarketName)
}

func TestQuote_CoinBalanceFailureDegradesToZero(t *testing.T) {
	repo := catalogRepo()
	repo.coinsErr = errBoom
	svc := NewService(repo, cart.NewMemoryStore(), nil, nil, nil)
	fillCart(t, svc)

	q, err := svc.Quote(context.Background(), userID, model.OrderTypePickup, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.CoinsToUse)
	assert.Equal(t, model.Cents(5800), q.Total)
}

func TestQuote_EmptyCart(t *testing.T) {
	svc := NewService(catalogRepo(), cart.NewMemoryStore(), nil, nil, nil)

	_, err := svc.Quote(context.Background(), userID, model.OrderTypeDelivery, false)
	var fe *checkout.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "cart", fe.Field)
}

func TestPlaceOrder(t *testing.T) {
	repo := catalogRepo()
	carts := cart.NewMemoryStore()
	svc := NewService(repo, carts, nil, nil, nil)
	fillCart(t, svc)

	o, err := svc.PlaceOrder(context.Background(), userID, checkout.Request{
		Type:          model.OrderTypeDelivery,
		AddressID:     "home",
		CustomerName:  "Ana",
		PaymentMethod: model.PaymentPix,
	})
	require.NoError(t, err)

	assert.Same(t, repo.createdOrder, o)
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Equal(t, model.PaymentStatusPending, o.PaymentStatus)
	assert.Equal(t, model.Cents(6500), o.Total)
	assert.Equal(t, "Rua A", o.Address.Street)
	assert.True(t, validation.IsValidDeliveryCode(o.DeliveryCode))
	require.Len(t, o.Items, 2)
	for _, it := range o.Items {
		assert.NotEmpty(t, it.ID)
		assert.Equal(t, o.ID, it.OrderID)
	}

	c, err := carts.Load(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty(), "cart is cleared after checkout")
}

func TestPlaceOrder_CoinsCoverEverything(t *testing.T) {
	repo := catalogRepo()
	repo.coins = 5000
	svc := NewService(repo, cart.NewMemoryStore(), nil, nil, nil)
	fillCart(t, svc)

	o, err := svc.PlaceOrder(context.Background(), userID, checkout.Request{
		Type:         model.OrderTypePickup,
		CustomerName: "Ana",
		UseCoins:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.Cents(0), o.Total)
	assert.Equal(t, int64(1160), o.CoinsUsed)
	assert.Equal(t, model.PaymentCoins, o.PaymentMethod)
	assert.Equal(t, model.PaymentStatusPaid, o.PaymentStatus)
}

func TestPlaceOrder_ValidationBlocksSubmission(t *testing.T) {
	tests := []struct {
		name  string
		req   checkout.Request
		field string
	}{
		{
			name:  "delivery without address",
			req:   checkout.Request{Type: model.OrderTypeDelivery, CustomerName: "Ana", PaymentMethod: model.PaymentPix},
			field: "address_id",
		},
		{
			name:  "foreign address",
			req:   checkout.Request{Type: model.OrderTypeDelivery, AddressID: "other", CustomerName: "Ana", PaymentMethod: model.PaymentPix},
			field: "address_id",
		},
		{
			name:  "blank name",
			req:   checkout.Request{Type: model.OrderTypePickup, CustomerName: "  ", PaymentMethod: model.PaymentPix},
			field: "customer_name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := catalogRepo()
			svc := NewService(repo, cart.NewMemoryStore(), nil, nil, nil)
			fillCart(t, svc)

			_, err := svc.PlaceOrder(context.Background(), userID, tt.req)
			var fe *checkout.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
			assert.Nil(t, repo.createdOrder)
		})
	}
}

func TestPlaceOrder_RejectsConcurrentSubmission(t *testing.T) {
	svc := NewService(catalogRepo(), cart.NewMemoryStore(), nil, nil, nil)
	fillCart(t, svc)

	svc.submitting.Store(userID, struct{}{})

	_, err := svc.PlaceOrder(context.Background(), userID, checkout.Request{Type: model.OrderTypePickup, CustomerName: "Ana", PaymentMethod: model.PaymentPix})
	assert.ErrorIs(t, err, ErrSubmitInProgress)
}

func TestPlaceOrder_KeepsCartOnFailure(t *testing.T) {
	repo := catalogRepo()
	repo.createErr = repository.ErrInsufficientCoins
	carts := cart.NewMemoryStore()
	svc := NewService(repo, carts, nil, nil, nil)
	fillCart(t, svc)

	_, err := svc.PlaceOrder(context.Background(), userID, checkout.Request{Type: model.OrderTypePickup, CustomerName: "Ana", PaymentMethod: model.PaymentPix})
	assert.ErrorIs(t, err, repository.ErrInsufficientCoins)

	c, err := carts.Load(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, c.Lines, 2)

	_, err = svc.PlaceOrder(context.Background(), userID, checkout.Request{Type: model.OrderTypePickup, CustomerName: "Ana", PaymentMethod: model.PaymentPix})
	assert.ErrorIs(t, err, repository.ErrInsufficientCoins, "guard is released after a failed submission")
}
