package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// keyPrefix задаёт пространство имён ключей корзины.
	keyPrefix = "ondeir_cart:"

	maxUpdateAttempts = 10
)

// ErrConcurrentUpdate возвращается, если корзину так и не удалось изменить из-за параллельных записей.
var ErrConcurrentUpdate = errors.New("cart was modified concurrently")

// Store описывает хранилище корзин, привязанных к владельцу.
type Store interface {
	Load(ctx context.Context, owner int64) (*Cart, error)
	// Update атомарно читает корзину, применяет fn и сохраняет результат. Ошибка fn возвращается
	// без изменений, и корзина не сохраняется.
	Update(ctx context.Context, owner int64, fn func(c *Cart) error) (*Cart, error)
	Delete(ctx context.Context, owner int64) error
}

func key(owner int64) string {
	return keyPrefix + strconv.FormatInt(owner, 10)
}

// RedisStore хранит корзины в Redis в виде JSON {"items": [...], "marketId": ...}.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore создаёт хранилище корзин поверх клиента Redis. Нулевой ttl означает хранение без срока.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Load возвращает корзину владельца или пустую корзину, если она не сохранялась.
func (s *RedisStore) Load(ctx context.Context, owner int64) (*Cart, error) {
	return s.get(ctx, s.client, key(owner))
}

// getter покрывает и клиент, и транзакцию под WATCH.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, cmd getter, k string) (*Cart, error) {
	raw, err := cmd.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &Cart{}, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	var c Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		// Повреждённая запись не должна блокировать пользователя.
		return &Cart{}, nil
	}
	return &c, nil
}

// Update изменяет корзину под WATCH: если ключ поменялся до EXEC, попытка повторяется.
func (s *RedisStore) Update(ctx context.Context, owner int64, fn func(c *Cart) error) (*Cart, error) {
	k := key(owner)

	var res *Cart
	txf := func(tx *redis.Tx) error {
		c, err := s.get(ctx, tx, k)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}

		raw, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal cart: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, raw, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		res = c
		return nil
	}

	for i := 0; i < maxUpdateAttempts; i++ {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrConcurrentUpdate
}

// Delete удаляет корзину владельца.
func (s *RedisStore) Delete(ctx context.Context, owner int64) error {
	if err := s.client.Del(ctx, key(owner)).Err(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

// MemoryStore хранит корзины в памяти процесса.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string][]byte
}

// NewMemoryStore создаёт пустое хранилище корзин в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string][]byte)}
}

// Load возвращает копию корзины владельца.
func (s *MemoryStore) Load(_ context.Context, owner int64) (*Cart, error) {
	s.mu.Lock()
	raw, ok := s.carts[key(owner)]
	s.mu.Unlock()

	if !ok {
		return &Cart{}, nil
	}

	var c Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &c, nil
}

// Update применяет fn к корзине владельца под блокировкой хранилища.
func (s *MemoryStore) Update(_ context.Context, owner int64, fn func(c *Cart) error) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c Cart
	if raw, ok := s.carts[key(owner)]; ok {
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("unmarshal cart: %w", err)
		}
	}
	if err := fn(&c); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal cart: %w", err)
	}
	s.carts[key(owner)] = raw

	return &c, nil
}

// Delete удаляет корзину владельца.
func (s *MemoryStore) Delete(_ context.Context, owner int64) error {
	s.mu.Lock()
	delete(s.carts, key(owner))
	s.mu.Unlock()
	return nil
}
