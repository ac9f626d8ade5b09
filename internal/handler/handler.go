// Package handler содержит HTTP-обработчики API сервиса доставки Ondeir.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/ondeir/internal/addon"
	"github.com/mmeshcher/ondeir/internal/cart"
	"github.com/mmeshcher/ondeir/internal/checkout"
	"github.com/mmeshcher/ondeir/internal/middleware"
	"github.com/mmeshcher/ondeir/internal/model"
	"github.com/mmeshcher/ondeir/internal/repository"
	"github.com/mmeshcher/ondeir/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	GetBalance(ctx context.Context, userID int64) (*model.Balance, error)

	GetProduct(ctx context.Context, marketID, productID string) (*model.Product, error)
	Configure(ctx context.Context, marketID, productID string, req service.ConfigureRequest) (*service.Configuration, error)

	GetCart(ctx context.Context, userID int64) (*cart.Cart, error)
	AddToCart(ctx context.Context, userID int64, req service.AddLineRequest) (*cart.Cart, error)
	UpdateCartLine(ctx context.Context, userID int64, lineID string, qty int) (*cart.Cart, error)
	RemoveCartLine(ctx context.Context, userID int64, lineID string) (*cart.Cart, error)
	ClearCart(ctx context.Context, userID int64) error

	Quote(ctx context.Context, userID int64, orderType model.OrderType, useCoins bool) (*service.CheckoutQuote, error)
	PlaceOrder(ctx context.Context, userID int64, req checkout.Request) (*model.Order, error)

	ListOrders(ctx context.Context, userID int64) ([]model.Order, error)
	GetOrder(ctx context.Context, userID int64, orderID string) (*model.Order, error)
	CancelOrder(ctx context.Context, userID int64, orderID string) error
	ActiveOrder(ctx context.Context, userID int64) (*model.Order, error)
	WatchOrder(ctx context.Context, userID int64, orderID string) (<-chan service.TrackingUpdate, error)
	WatchActiveOrder(ctx context.Context, userID int64) (<-chan service.ActiveOrderUpdate, error)

	PendingReviews(ctx context.Context, userID int64, orderID string) ([]model.ReviewTarget, error)
	SubmitReview(ctx context.Context, userID int64, orderID string, req service.ReviewRequest) (*service.ReviewResult, error)
	PendingRestaurantReview(ctx context.Context, userID int64) (*model.Order, error)

	ListAddresses(ctx context.Context, userID int64) ([]model.Address, error)
	CreateAddress(ctx context.Context, userID int64, in service.AddressInput) (*model.Address, error)
	DeleteAddress(ctx context.Context, userID int64, addressID string) error
}

// Handler реализует HTTP-обработчики API сервиса доставки.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type errorResponse struct {
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
	GroupID  string `json:"group_id,omitempty"`
	Code     string `json:"code,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// userID возвращает пользователя сессии. Маршруты с userID всегда закрыты AuthMiddleware.
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		w.Header().Set(middleware.LoginRedirectHeader, middleware.LoginRedirect(r.URL.RequestURI()))
		writeStatus(w, http.StatusUnauthorized)
	}
	return id, ok
}

// confirmed проверяет явное подтверждение разрушающего действия.
func confirmed(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Query().Get("confirm") == "true" {
		return true
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Message: "Confirme a ação para continuar",
		Code:    "confirmation_required",
	})
	return false
}

// writeError переводит ошибку бизнес-логики в HTTP-ответ. Неизвестные ошибки пишутся в журнал.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var (
		fieldErr *checkout.FieldError
		selErr   *addon.SelectionError
	)

	switch {
	case errors.As(err, &fieldErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Field: fieldErr.Field, Message: fieldErr.Message})
	case errors.As(err, &selErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Field:   "selections",
			GroupID: selErr.GroupID,
			Message: "Escolha as opções obrigatórias",
		})

	case errors.Is(err, repository.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "Pedido não encontrado", Redirect: "/"})
	case errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrMarketNotFound),
		errors.Is(err, repository.ErrAddressNotFound),
		errors.Is(err, cart.ErrLineNotFound):
		writeStatus(w, http.StatusNotFound)

	case errors.Is(err, cart.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, errorResponse{Field: "quantity", Message: "Quantidade inválida"})
	case errors.Is(err, cart.ErrMarketConflict):
		writeJSON(w, http.StatusConflict, errorResponse{
			Code:    "market_conflict",
			Message: "Sua sacola tem itens de outro restaurante. Deseja limpar a sacola?",
		})
	case errors.Is(err, cart.ErrConcurrentUpdate):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "cart_busy", Message: "Sua sacola foi alterada, tente novamente"})
	case errors.Is(err, service.ErrSubmitInProgress):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "submit_in_progress", Message: "Seu pedido já está sendo enviado"})
	case errors.Is(err, repository.ErrInsufficientCoins):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "insufficient_coins", Message: "Saldo de moedas insuficiente"})
	case errors.Is(err, service.ErrCancelNotAllowed):
		writeJSON(w, http.StatusConflict, errorResponse{
			Code:    "cancel_not_allowed",
			Message: "O pedido já foi aceito. Entre em contato com o suporte para cancelar",
		})
	case errors.Is(err, repository.ErrReviewExists):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "review_exists", Message: "Você já avaliou"})
	case errors.Is(err, service.ErrReviewNotAllowed):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "review_not_allowed", Message: "Avaliação indisponível para este pedido"})

	default:
		fields := []zap.Field{zap.Error(err), zap.String("path", r.URL.Path)}
		if id, ok := middleware.GetUserIDFromContext(r.Context()); ok {
			fields = append(fields, zap.Int64("userID", id))
		}
		h.logger.Error(msg, fields...)
		writeStatus(w, http.StatusInternalServerError)
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя и открывает сессию.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil || req.Login == "" || req.Password == "" {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			writeStatus(w, http.StatusConflict)
			return
		}
		h.writeError(w, r, err, "register user error")
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и открывает сессию.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil || req.Login == "" || req.Password == "" {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeStatus(w, http.StatusUnauthorized)
			return
		}
		h.writeError(w, r, err, "login user error")
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Logout закрывает сессию.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

// GetBalance возвращает баланс монет текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err, "get balance error")
		return
	}

	writeJSON(w, http.StatusOK, balance)
}
