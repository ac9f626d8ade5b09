package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/ondeir/internal/cart"
	"github.com/mmeshcher/ondeir/internal/fulfillment"
	"github.com/mmeshcher/ondeir/internal/model"
	"github.com/mmeshcher/ondeir/internal/realtime"
	"github.com/mmeshcher/ondeir/internal/repository"
)

type stubRepo struct {
	mu sync.Mutex

	createUserID  int64
	createUserErr error

	user       *model.User
	getUserErr error

	coins    int64
	coinsErr error

	market   *model.Market
	products map[string]*model.Product

	addresses map[string]*model.Address

	orders        map[string]*model.Order
	createdOrder  *model.Order
	createErr     error
	cancelErr     error
	latest        *model.Order
	fulfillment   []repository.OrderForFulfillment
	statusUpdates []repository.StatusUpdate

	reviewed map[string]map[model.ReviewTarget]bool
	reviews  []model.Review

	effects  map[string]map[string]bool
	claimErr error
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return s.user, s.getUserErr
}

func (s *stubRepo) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.user, s.getUserErr
}

func (s *stubRepo) GetCoinBalance(ctx context.Context, userID int64) (int64, error) {
	return s.coins, s.coinsErr
}

func (s *stubRepo) GetMarket(ctx context.Context, marketID string) (*model.Market, error) {
	if s.market == nil || s.market.ID != marketID {
		return nil, repository.ErrMarketNotFound
	}
	return s.market, nil
}

func (s *stubRepo) GetProduct(ctx context.Context, marketID, productID string) (*model.Product, error) {
	p, ok := s.products[productID]
	if !ok || p.MarketID != marketID {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (s *stubRepo) ListAddresses(ctx context.Context, userID int64) ([]model.Address, error) {
	var res []model.Address
	for _, a := range s.addresses {
		res = append(res, *a)
	}
	return res, nil
}

func (s *stubRepo) GetAddress(ctx context.Context, userID int64, addressID string) (*model.Address, error) {
	a, ok := s.addresses[addressID]
	if !ok || a.UserID != userID {
		return nil, repository.ErrAddressNotFound
	}
	return a, nil
}

func (s *stubRepo) CreateAddress(ctx context.Context, a *model.Address) error {
	a.ID = "addr-new"
	return nil
}

func (s *stubRepo) DeleteAddress(ctx context.Context, userID int64, addressID string) error {
	return nil
}

func (s *stubRepo) CreateOrder(ctx context.Context, o *model.Order) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createdOrder = o
	return nil
}

func (s *stubRepo) GetOrder(ctx context.Context, userID int64, orderID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *stubRepo) setStatus(orderID string, status model.OrderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[orderID].Status = status
}

func (s *stubRepo) ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return nil, nil
}

func (s *stubRepo) GetLatestOrderWithStatus(ctx context.Context, userID int64, statuses []model.OrderStatus, since time.Time) (*model.Order, error) {
	if s.latest == nil {
		return nil, repository.ErrOrderNotFound
	}
	return s.latest, nil
}

func (s *stubRepo) CancelOrder(ctx context.Context, userID int64, orderID string) error {
	return s.cancelErr
}

func (s *stubRepo) GetOrdersForFulfillment(ctx context.Context, statuses []model.OrderStatus, limit int) ([]repository.OrderForFulfillment, error) {
	return s.fulfillment, nil
}

func (s *stubRepo) UpdateOrderStatus(ctx context.Context, u repository.StatusUpdate) error {
	s.statusUpdates = append(s.statusUpdates, u)
	return nil
}

func (s *stubRepo) ReviewedTargets(ctx context.Context, orderID string) (map[model.ReviewTarget]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make(map[model.ReviewTarget]bool)
	for k, v := range s.reviewed[orderID] {
		res[k] = v
	}
	return res, nil
}

func (s *stubRepo) CreateReview(ctx context.Context, rv *model.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reviewed == nil {
		s.reviewed = make(map[string]map[model.ReviewTarget]bool)
	}
	if s.reviewed[rv.OrderID] == nil {
		s.reviewed[rv.OrderID] = make(map[model.ReviewTarget]bool)
	}
	s.reviewed[rv.OrderID][rv.TargetType] = true
	s.reviews = append(s.reviews, *rv)
	return nil
}

func (s *stubRepo) ClaimOrderEffects(ctx context.Context, orderID string, kinds []string) ([]string, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.effects == nil {
		s.effects = make(map[string]map[string]bool)
	}
	if s.effects[orderID] == nil {
		s.effects[orderID] = make(map[string]bool)
	}

	var claimed []string
	for _, k := range kinds {
		if !s.effects[orderID][k] {
			s.effects[orderID][k] = true
			claimed = append(claimed, k)
		}
	}
	return claimed, nil
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{createUserErr: repository.ErrUserExists}
	svc := NewService(repo, cart.NewMemoryStore(), nil, nil, nil)

	_, err := svc.RegisterUser(context.Background(), "login", "pass")
	assert.ErrorIs(t, err, repository.ErrUserExists)
}

func TestAuthenticateUser(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &stubRepo{user: &model.User{ID: 1, Login: "user", PasswordHash: hashed}}
	svc := NewService(repo, cart.NewMemoryStore(), nil, nil, nil)

	id, err := svc.AuthenticateUser(context.Background(), "user", "correct")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = svc.AuthenticateUser(context.Background(), "user", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	repo.user, repo.getUserErr = nil, repository.ErrUserNotFound
	_, err = svc.AuthenticateUser(context.Background(), "ghost", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGetBalance_ConvertsCoinsToValue(t *testing.T) {
	svc := NewService(&stubRepo{coins: 250}, cart.NewMemoryStore(), nil, nil, nil)

	balance, err := svc.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(250), balance.Coins)
	assert.Equal(t, 12.5, balance.Value)
}

func TestCreateAddress_RequiresFields(t *testing.T) {
	svc := NewService(&stubRepo{}, cart.NewMemoryStore(), nil, nil, nil)

	_, err := svc.CreateAddress(context.Background(), 1, AddressInput{Street: "Rua A", Number: " "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "number")

	a, err := svc.CreateAddress(context.Background(), 1, AddressInput{Street: " Rua A ", Number: "10", Neighborhood: "Centro"})
	require.NoError(t, err)
	assert.Equal(t, "Rua A", a.Street)
	assert.Equal(t, "addr-new", a.ID)
}

type stubFulfillment struct {
	reports map[string]*fulfillment.Report
	errs    map[string]error
	calls   []string
}

func (s *stubFulfillment) Configured() bool { return true }

func (s *stubFulfillment) GetReport(ctx context.Context, orderID string) (*fulfillment.Report, error) {
	s.calls = append(s.calls, orderID)
	if err, ok := s.errs[orderID]; ok {
		return nil, err
	}
	return s.reports[orderID], nil
}

func TestProcessFulfillmentBatch(t *testing.T) {
	repo := &stubRepo{
		fulfillment: []repository.OrderForFulfillment{
			{ID: "advance", Status: model.OrderStatusPending, Total: 4599},
			{ID: "deliver", Status: model.OrderStatusReady, Total: 6599},
			{ID: "backwards", Status: model.OrderStatusReady},
			{ID: "same", Status: model.OrderStatusPreparing},
			{ID: "unknown", Status: model.OrderStatusPreparing},
			{ID: "unregistered", Status: model.OrderStatusPending},
		},
	}
	client := &stubFulfillment{
		reports: map[string]*fulfillment.Report{
			"advance":   {Order: "advance", Status: "PREPARING"},
			"deliver":   {Order: "deliver", Status: "DELIVERED", Courier: &fulfillment.Courier{ID: "c-1", Name: "João"}},
			"backwards": {Order: "backwards", Status: "PREPARING"},
			"same":      {Order: "same", Status: "PREPARING"},
			"unknown":   {Order: "unknown", Status: "LOST"},
		},
		errs: map[string]error{"unregistered": fulfillment.ErrNotRegistered},
	}

	svc := NewService(repo, cart.NewMemoryStore(), nil, client, nil)
	svc.processFulfillmentBatch(context.Background())

	require.Len(t, repo.statusUpdates, 2)

	assert.Equal(t, repository.StatusUpdate{OrderID: "advance", From: model.OrderStatusPending, To: model.OrderStatusPreparing}, repo.statusUpdates[0])

	delivered := repo.statusUpdates[1]
	assert.Equal(t, model.OrderStatusDelivered, delivered.To)
	assert.Equal(t, int64(65), delivered.Reward)
	require.NotNil(t, delivered.CourierID)
	assert.Equal(t, "c-1", *delivered.CourierID)
	assert.Equal(t, "João", delivered.CourierName)
}

func TestProcessFulfillmentBatch_ChecksConfirmationCode(t *testing.T) {
	repo := &stubRepo{
		fulfillment: []repository.OrderForFulfillment{
			{ID: "matching", Status: model.OrderStatusReady, Total: 1000, DeliveryCode: "1230"},
			{ID: "checksum", Status: model.OrderStatusReady, Total: 1000, DeliveryCode: "1230"},
			{ID: "other", Status: model.OrderStatusReady, Total: 1000, DeliveryCode: "1230"},
		},
	}
	client := &stubFulfillment{
		reports: map[string]*fulfillment.Report{
			"matching": {Order: "matching", Status: "DELIVERED", ConfirmationCode: "1230"},
			"checksum": {Order: "checksum", Status: "DELIVERED", ConfirmationCode: "1231"},
			"other":    {Order: "other", Status: "DELIVERED", ConfirmationCode: "0000"},
		},
	}

	svc := NewService(repo, cart.NewMemoryStore(), nil, client, nil)
	svc.processFulfillmentBatch(context.Background())

	require.Len(t, repo.statusUpdates, 1)
	assert.Equal(t, "matching", repo.statusUpdates[0].OrderID)
	assert.Equal(t, model.OrderStatusDelivered, repo.statusUpdates[0].To)
}

func TestProcessFulfillmentBatch_StopsOnRateLimit(t *testing.T) {
	repo := &stubRepo{
		fulfillment: []repository.OrderForFulfillment{
			{ID: "a", Status: model.OrderStatusPending},
			{ID: "b", Status: model.OrderStatusPending},
		},
	}
	client := &stubFulfillment{errs: map[string]error{"a": &fulfillment.RateLimitError{}}}

	svc := NewService(repo, cart.NewMemoryStore(), nil, client, nil)
	svc.processFulfillmentBatch(context.Background())

	assert.Equal(t, []string{"a"}, client.calls)
	assert.Empty(t, repo.statusUpdates)
}

func TestStartFulfillmentUpdates_NoClient(t *testing.T) {
	svc := &Service{}

	done := make(chan struct{})
	go func() {
		svc.StartFulfillmentUpdates(context.Background(), time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("StartFulfillmentUpdates did not return without client")
	}
}

type stubFeed struct {
	mu       sync.Mutex
	orders   map[string]chan realtime.Event
	users    map[int64]chan realtime.Event
	err      error
	canceled int

	// subscribed вызывается сразу после оформления подписки.
	subscribed func()
}

func (f *stubFeed) cancelFunc() func() {
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.canceled++
	}
}

func (f *stubFeed) SubscribeOrder(orderID string) (<-chan realtime.Event, func(), error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	f.mu.Lock()
	ch := make(chan realtime.Event, 4)
	if f.orders == nil {
		f.orders = make(map[string]chan realtime.Event)
	}
	f.orders[orderID] = ch
	f.mu.Unlock()

	if f.subscribed != nil {
		f.subscribed()
	}
	return ch, f.cancelFunc(), nil
}

func (f *stubFeed) SubscribeUser(userID int64) (<-chan realtime.Event, func(), error) {
	if f.err != nil || f.users == nil {
		return nil, nil, realtime.ErrFeedUnavailable
	}
	f.mu.Lock()
	ch := make(chan realtime.Event, 4)
	f.users[userID] = ch
	f.mu.Unlock()

	if f.subscribed != nil {
		f.subscribed()
	}
	return ch, f.cancelFunc(), nil
}

func (f *stubFeed) publish(ev realtime.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[ev.OrderID] <- ev
}

var errBoom = errors.New("boom")
