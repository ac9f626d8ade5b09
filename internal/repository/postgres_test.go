package repository

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/ondeir/internal/model"
)

func newTestRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN is not set")
	}

	repo, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func seedMarket(t *testing.T, repo *PostgresRepository) (marketID, productID string) {
	t.Helper()
	ctx := context.Background()

	err := repo.pool.QueryRow(ctx,
		`INSERT INTO markets (name, phone, delivery_fee, coin_balance) VALUES ('Pizzaria', '+55 11 5555-0000', 700, 1000) RETURNING id::text`,
	).Scan(&marketID)
	require.NoError(t, err)

	err = repo.pool.QueryRow(ctx,
		`INSERT INTO menu_items (market_id, name, price) VALUES ($1, 'Pizza', 4000) RETURNING id::text`,
		marketID,
	).Scan(&productID)
	require.NoError(t, err)

	var groupID string
	err = repo.pool.QueryRow(ctx,
		`INSERT INTO addon_groups (menu_item_id, name, min_select, max_select, required) VALUES ($1, 'Borda', 1, 1, TRUE) RETURNING id::text`,
		productID,
	).Scan(&groupID)
	require.NoError(t, err)

	_, err = repo.pool.Exec(ctx,
		`INSERT INTO addon_items (group_id, name, price, display_order) VALUES ($1, 'Catupiry', 500, 1), ($1, 'Cheddar', 600, 2)`,
		groupID,
	)
	require.NoError(t, err)

	return marketID, productID
}

func seedUser(t *testing.T, repo *PostgresRepository, coins int64) int64 {
	t.Helper()
	ctx := context.Background()

	id, err := repo.CreateUser(ctx, fmt.Sprintf("user-%s", uuid.NewString()), []byte("hash"))
	require.NoError(t, err)

	_, err = repo.pool.Exec(ctx, `UPDATE users SET coins = $2 WHERE id = $1`, id, coins)
	require.NoError(t, err)

	return id
}

func newOrder(userID int64, marketID, productID string, coins int64) *model.Order {
	id := uuid.NewString()
	return &model.Order{
		ID:            id,
		MarketID:      marketID,
		UserID:        userID,
		CustomerName:  "Ana",
		Type:          model.OrderTypePickup,
		Status:        model.OrderStatusPending,
		PaymentMethod: model.PaymentPix,
		PaymentStatus: model.PaymentStatusPending,
		Subtotal:      4500,
		Total:         4500 - model.Cents(coins)*5,
		Discount:      model.Cents(coins) * 5,
		CoinsUsed:     coins,
		DeliveryCode:  "1230",
		Items: []model.OrderItem{{
			ID:         uuid.NewString(),
			MarketID:   marketID,
			ProductID:  productID,
			Name:       "Pizza",
			Quantity:   1,
			UnitPrice:  4500,
			TotalPrice: 4500,
			Notes:      "Borda: Catupiry",
		}},
	}
}

func TestPostgres_GetProductWithAddons(t *testing.T) {
	repo := newTestRepository(t)
	marketID, productID := seedMarket(t, repo)

	p, err := repo.GetProduct(context.Background(), marketID, productID)
	require.NoError(t, err)
	require.Len(t, p.Addons, 1)
	assert.True(t, p.Addons[0].Required)
	require.Len(t, p.Addons[0].Items, 2)
	assert.Equal(t, "Catupiry", p.Addons[0].Items[0].Name)

	_, err = repo.GetProduct(context.Background(), marketID, "not-a-uuid")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestPostgres_CreateOrderDebitsCoins(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	marketID, productID := seedMarket(t, repo)
	userID := seedUser(t, repo, 100)

	o := newOrder(userID, marketID, productID, 60)
	require.NoError(t, repo.CreateOrder(ctx, o))

	coins, err := repo.GetCoinBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), coins)

	got, err := repo.GetOrder(ctx, userID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pizzaria", got.MarketName)
	require.Len(t, got.Items, 1)
	assert.Equal(t, model.Cents(4500), got.Items[0].TotalPrice)

	err = repo.CreateOrder(ctx, newOrder(userID, marketID, productID, 60))
	assert.ErrorIs(t, err, ErrInsufficientCoins)
}

func TestPostgres_ConcurrentOrdersNeverOverdraw(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	marketID, productID := seedMarket(t, repo)
	userID := seedUser(t, repo, 100)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.CreateOrder(ctx, newOrder(userID, marketID, productID, 40)); err == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, oks)
	coins, err := repo.GetCoinBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), coins)
}

func TestPostgres_CancelOrder(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	marketID, productID := seedMarket(t, repo)
	userID := seedUser(t, repo, 50)

	o := newOrder(userID, marketID, productID, 50)
	require.NoError(t, repo.CreateOrder(ctx, o))

	require.NoError(t, repo.CancelOrder(ctx, userID, o.ID))
	coins, err := repo.GetCoinBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), coins, "coins are refunded on cancel")

	assert.ErrorIs(t, repo.CancelOrder(ctx, userID, o.ID), ErrOrderNotCancelable)
	assert.ErrorIs(t, repo.CancelOrder(ctx, userID, uuid.NewString()), ErrOrderNotFound)
}

func TestPostgres_UpdateOrderStatusRewardsOnce(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	marketID, productID := seedMarket(t, repo)
	userID := seedUser(t, repo, 0)

	o := newOrder(userID, marketID, productID, 0)
	require.NoError(t, repo.CreateOrder(ctx, o))

	courierID := "c-1"
	require.NoError(t, repo.UpdateOrderStatus(ctx, StatusUpdate{
		OrderID: o.ID, From: model.OrderStatusPending, To: model.OrderStatusReady,
		CourierID: &courierID, CourierName: "João",
	}))

	err := repo.UpdateOrderStatus(ctx, StatusUpdate{
		OrderID: o.ID, From: model.OrderStatusPending, To: model.OrderStatusPreparing,
	})
	assert.ErrorIs(t, err, ErrStatusConflict)

	require.NoError(t, repo.UpdateOrderStatus(ctx, StatusUpdate{
		OrderID: o.ID, From: model.OrderStatusReady, To: model.OrderStatusDelivered, Reward: 45,
	}))

	coins, err := repo.GetCoinBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(45), coins)

	got, err := repo.GetOrder(ctx, userID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "João", got.CourierName)
	require.NotNil(t, got.CourierID)
	assert.Equal(t, "c-1", *got.CourierID)
	assert.Equal(t, model.PaymentStatusPaid, got.PaymentStatus)

	latest, err := repo.GetLatestOrderWithStatus(ctx, userID, []model.OrderStatus{model.OrderStatusDelivered}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, o.ID, latest.ID)
}

func TestPostgres_Reviews(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	marketID, productID := seedMarket(t, repo)
	userID := seedUser(t, repo, 0)

	o := newOrder(userID, marketID, productID, 0)
	require.NoError(t, repo.CreateOrder(ctx, o))

	rv := &model.Review{OrderID: o.ID, UserID: userID, TargetType: model.ReviewTargetPlatform, Rating: 5}
	require.NoError(t, repo.CreateReview(ctx, rv))
	assert.NotEmpty(t, rv.ID)

	err := repo.CreateReview(ctx, &model.Review{OrderID: o.ID, UserID: userID, TargetType: model.ReviewTargetPlatform, Rating: 4})
	assert.ErrorIs(t, err, ErrReviewExists)

	reviewed, err := repo.ReviewedTargets(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, reviewed[model.ReviewTargetPlatform])
	assert.False(t, reviewed[model.ReviewTargetDriver])
}

func TestPostgres_ClaimOrderEffects(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	marketID, productID := seedMarket(t, repo)
	userID := seedUser(t, repo, 0)

	o := newOrder(userID, marketID, productID, 0)
	require.NoError(t, repo.CreateOrder(ctx, o))

	claimed, err := repo.ClaimOrderEffects(ctx, o.ID, []string{"reveal_code"})
	require.NoError(t, err)
	assert.Equal(t, []string{"reveal_code"}, claimed)

	claimed, err = repo.ClaimOrderEffects(ctx, o.ID, []string{"reveal_code", "coin_reward"})
	require.NoError(t, err)
	assert.Equal(t, []string{"coin_reward"}, claimed)

	claimed, err = repo.ClaimOrderEffects(ctx, o.ID, []string{"coin_reward"})
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestPostgres_Addresses(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	userID := seedUser(t, repo, 0)

	a := &model.Address{UserID: userID, Name: "Casa", Street: "Rua A", Number: "10", Neighborhood: "Centro"}
	require.NoError(t, repo.CreateAddress(ctx, a))

	got, err := repo.GetAddress(ctx, userID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rua A", got.Street)

	_, err = repo.GetAddress(ctx, userID+1, a.ID)
	assert.ErrorIs(t, err, ErrAddressNotFound)

	require.NoError(t, repo.DeleteAddress(ctx, userID, a.ID))
	assert.ErrorIs(t, repo.DeleteAddress(ctx, userID, a.ID), ErrAddressNotFound)
}
