// Package realtime раздаёт уведомления об изменениях заказов, полученные через LISTEN/NOTIFY PostgreSQL.
//
// Событие означает только «заказ изменился»: подписчик всегда перечитывает заказ целиком,
// поэтому повторная или пропущенная доставка события безопасна.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mmeshcher/ondeir/internal/model"
)

// Channel задаёт канал уведомлений, в который пишет триггер таблицы orders.
const Channel = "order_changes"

const (
	subscriberBuffer = 4
	reconnectDelay   = time.Second
)

// ErrFeedUnavailable возвращается при подписке, пока соединение с лентой изменений не установлено.
var ErrFeedUnavailable = errors.New("order change feed is unavailable")

// Event описывает уведомление об изменении заказа.
type Event struct {
	OrderID string            `json:"id"`
	UserID  int64             `json:"user_id"`
	Status  model.OrderStatus `json:"status"`
}

type subscribers[K comparable] map[K]map[uint64]chan Event

func (s subscribers[K]) add(key K, id uint64, ch chan Event) {
	if s[key] == nil {
		s[key] = make(map[uint64]chan Event)
	}
	s[key][id] = ch
}

func (s subscribers[K]) remove(key K, id uint64) bool {
	chs, ok := s[key]
	if !ok {
		return false
	}
	ch, ok := chs[id]
	if !ok {
		return false
	}
	close(ch)
	delete(chs, id)
	if len(chs) == 0 {
		delete(s, key)
	}
	return true
}

func (s subscribers[K]) send(key K, ev Event) {
	for _, ch := range s[key] {
		// Событие означает только сигнал перечитать заказ: если в буфере уже есть необработанный сигнал, новый не нужен.
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s subscribers[K]) closeAll() {
	for key, chs := range s {
		for _, ch := range chs {
			close(ch)
		}
		delete(s, key)
	}
}

// Hub держит одно LISTEN-соединение и раздаёт события подписчикам по заказу и по пользователю.
type Hub struct {
	pool   *pgxpool.Pool
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	nextID  uint64
	byOrder subscribers[string]
	byUser  subscribers[int64]
}

// NewHub создаёт хаб поверх пула соединений.
func NewHub(pool *pgxpool.Pool, logger *zap.Logger) *Hub {
	return &Hub{
		pool:    pool,
		logger:  logger,
		byOrder: make(subscribers[string]),
		byUser:  make(subscribers[int64]),
	}
}

// Run слушает канал уведомлений до отмены контекста, переподключаясь при обрыве соединения.
// При обрыве все подписки закрываются: подписчики остаются с последним полученным состоянием.
func (h *Hub) Run(ctx context.Context) error {
	for {
		err := h.listen(ctx)
		h.setRunning(false)

		if ctx.Err() != nil {
			return nil
		}

		h.logger.Warn("order change feed interrupted", zap.Error(err))

		timer := time.NewTimer(reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (h *Hub) listen(ctx context.Context) error {
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	// LISTEN-соединение не возвращаем в пул.
	listener := conn.Hijack()
	defer listener.Close(context.Background())

	if _, err := listener.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	h.setRunning(true)
	h.logger.Info("order change feed started")

	for {
		n, err := listener.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		var ev Event
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			h.logger.Warn("bad order change payload", zap.String("payload", n.Payload), zap.Error(err))
			continue
		}

		h.Publish(ev)
	}
}

func (h *Hub) setRunning(running bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.running = running
	if !running {
		h.byOrder.closeAll()
		h.byUser.closeAll()
	}
}

// Publish раздаёт событие подписчикам заказа и его владельца. Медленный подписчик не блокирует остальных.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.byOrder.send(ev.OrderID, ev)
	h.byUser.send(ev.UserID, ev)
}

// SubscribeOrder подписывает на изменения одного заказа. cancel закрывает канал и идемпотентна.
func (h *Hub) SubscribeOrder(orderID string) (<-chan Event, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return nil, nil, ErrFeedUnavailable
	}

	h.nextID++
	id := h.nextID
	ch := make(chan Event, subscriberBuffer)
	h.byOrder.add(orderID, id, ch)

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.byOrder.remove(orderID, id)
	}, nil
}

// SubscribeUser подписывает на изменения всех заказов пользователя.
func (h *Hub) SubscribeUser(userID int64) (<-chan Event, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return nil, nil, ErrFeedUnavailable
	}

	h.nextID++
	id := h.nextID
	ch := make(chan Event, subscriberBuffer)
	h.byUser.add(userID, id, ch)

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.byUser.remove(userID, id)
	}, nil
}
