// Package service реализует бизнес-логику сервиса доставки Ondeir.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/ondeir/internal/cart"
	"github.com/mmeshcher/ondeir/internal/checkout"
	"github.com/mmeshcher/ondeir/internal/fulfillment"
	"github.com/mmeshcher/ondeir/internal/model"
	"github.com/mmeshcher/ondeir/internal/realtime"
	"github.com/mmeshcher/ondeir/internal/repository"
)

var (
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSubmitInProgress возвращается, пока предыдущее оформление заказа пользователя не завершилось.
	ErrSubmitInProgress = errors.New("order submission already in progress")
	// ErrCancelNotAllowed возвращается при попытке отменить заказ, который заведение уже приняло.
	ErrCancelNotAllowed = errors.New("order can only be canceled while pending")
	// ErrReviewNotAllowed возвращается, если объект сейчас нельзя оценить.
	ErrReviewNotAllowed = errors.New("review is not allowed for this order")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	GetCoinBalance(ctx context.Context, userID int64) (int64, error)

	GetMarket(ctx context.Context, marketID string) (*model.Market, error)
	GetProduct(ctx context.Context, marketID, productID string) (*model.Product, error)

	ListAddresses(ctx context.Context, userID int64) ([]model.Address, error)
	GetAddress(ctx context.Context, userID int64, addressID string) (*model.Address, error)
	CreateAddress(ctx context.Context, a *model.Address) error
	DeleteAddress(ctx context.Context, userID int64, addressID string) error

	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, userID int64, orderID string) (*model.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetLatestOrderWithStatus(ctx context.Context, userID int64, statuses []model.OrderStatus, since time.Time) (*model.Order, error)
	CancelOrder(ctx context.Context, userID int64, orderID string) error
	GetOrdersForFulfillment(ctx context.Context, statuses []model.OrderStatus, limit int) ([]repository.OrderForFulfillment, error)
	UpdateOrderStatus(ctx context.Context, u repository.StatusUpdate) error

	ReviewedTargets(ctx context.Context, orderID string) (map[model.ReviewTarget]bool, error)
	CreateReview(ctx context.Context, rv *model.Review) error

	ClaimOrderEffects(ctx context.Context, orderID string, kinds []string) ([]string, error)
}

// Feed описывает ленту изменений заказов.
type Feed interface {
	SubscribeOrder(orderID string) (<-chan realtime.Event, func(), error)
	SubscribeUser(userID int64) (<-chan realtime.Event, func(), error)
}

// FulfillmentClient описывает клиент внешней системы исполнения заказов.
type FulfillmentClient interface {
	Configured() bool
	GetReport(ctx context.Context, orderID string) (*fulfillment.Report, error)
}

// Service содержит бизнес-логику сервиса доставки.
type Service struct {
	repo        Repository
	carts       cart.Store
	feed        Feed
	fulfillment FulfillmentClient
	logger      *zap.Logger
	now         func() time.Time

	// submitting хранит пользователей, чей заказ сейчас оформляется.
	submitting sync.Map
}

// NewService создаёт сервис. feed и fulfillment могут быть nil: тогда живые обновления
// и опрос системы исполнения отключены.
func NewService(repo Repository, carts cart.Store, feed Feed, fulfillmentClient FulfillmentClient, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		carts:       carts,
		feed:        feed,
		fulfillment: fulfillmentClient,
		logger:      logger,
		now:         time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

// GetBalance возвращает баланс монет пользователя и его стоимость.
func (s *Service) GetBalance(ctx context.Context, userID int64) (*model.Balance, error) {
	coins, err := s.repo.GetCoinBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.Balance{
		Coins: coins,
		Value: (model.Cents(coins) * checkout.CoinUnitValue).Float(),
	}, nil
}

// coinBalance читает баланс для расчёта заказа; ошибка означает нулевой баланс.
func (s *Service) coinBalance(ctx context.Context, userID int64) int64 {
	coins, err := s.repo.GetCoinBalance(ctx, userID)
	if err != nil {
		s.logger.Warn("coin balance unavailable, assuming zero", zap.Int64("userID", userID), zap.Error(err))
		return 0
	}
	return coins
}

// AddressInput содержит данные нового адреса.
type AddressInput struct {
	Name         string
	Street       string
	Number       string
	Neighborhood string
	Complement   string
}

// ListAddresses возвращает адресную книгу пользователя.
func (s *Service) ListAddresses(ctx context.Context, userID int64) ([]model.Address, error) {
	return s.repo.ListAddresses(ctx, userID)
}

// CreateAddress проверяет и сохраняет новый адрес.
func (s *Service) CreateAddress(ctx context.Context, userID int64, in AddressInput) (*model.Address, error) {
	switch {
	case strings.TrimSpace(in.Street) == "":
		return nil, &checkout.FieldError{Field: "street", Message: "Informe a rua"}
	case strings.TrimSpace(in.Number) == "":
		return nil, &checkout.FieldError{Field: "number", Message: "Informe o número"}
	case strings.TrimSpace(in.Neighborhood) == "":
		return nil, &checkout.FieldError{Field: "neighborhood", Message: "Informe o bairro"}
	}

	a := &model.Address{
		UserID:       userID,
		Name:         strings.TrimSpace(in.Name),
		Street:       strings.TrimSpace(in.Street),
		Number:       strings.TrimSpace(in.Number),
		Neighborhood: strings.TrimSpace(in.Neighborhood),
		Complement:   strings.TrimSpace(in.Complement),
	}
	if err := s.repo.CreateAddress(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// DeleteAddress удаляет адрес пользователя.
func (s *Service) DeleteAddress(ctx context.Context, userID int64, addressID string) error {
	return s.repo.DeleteAddress(ctx, userID, addressID)
}
