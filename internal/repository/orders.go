package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/ondeir/internal/model"
)

const orderColumns = `o.id::text, o.market_id::text, m.name, m.phone, o.user_id, o.customer_name,
	o.order_type, o.status, o.payment_method, o.payment_status, o.change_for,
	o.subtotal, o.delivery_fee, o.discount, o.total_amount, o.coins_used,
	o.address_street, o.address_number, o.address_neighborhood, o.address_complement,
	o.delivery_code, o.courier_id, COALESCE(c.name, ''), o.created_at`

const orderFrom = `FROM orders o
	JOIN markets m ON m.id = o.market_id
	LEFT JOIN couriers c ON c.id = o.courier_id`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.ID, &o.MarketID, &o.MarketName, &o.MarketPhone, &o.UserID, &o.CustomerName,
		&o.Type, &o.Status, &o.PaymentMethod, &o.PaymentStatus, &o.ChangeFor,
		&o.Subtotal, &o.DeliveryFee, &o.Discount, &o.Total, &o.CoinsUsed,
		&o.Address.Street, &o.Address.Number, &o.Address.Neighborhood, &o.Address.Complement,
		&o.DeliveryCode, &o.CourierID, &o.CourierName, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOrder атомарно создаёт заказ вместе со всеми строками. Если в заказе используются монеты,
// баланс пользователя блокируется, проверяется и списывается в той же транзакции.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	return r.withRetry(ctx, func() error {
		return r.createOrder(ctx, o)
	})
}

func (r *PostgresRepository) createOrder(ctx context.Context, o *model.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if o.CoinsUsed > 0 {
		// Блокируем строку пользователя, чтобы параллельные заказы не списали монеты дважды.
		var coins int64
		err = tx.QueryRow(ctx, `SELECT coins FROM users WHERE id = $1 FOR UPDATE`, o.UserID).Scan(&coins)
		if err != nil {
			return fmt.Errorf("lock user for update: %w", err)
		}
		if coins < o.CoinsUsed {
			return ErrInsufficientCoins
		}

		if _, err := tx.Exec(ctx, `UPDATE users SET coins = coins - $2 WHERE id = $1`, o.UserID, o.CoinsUsed); err != nil {
			return fmt.Errorf("debit coins: %w", err)
		}
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO orders (
			id, market_id, user_id, customer_name, order_type, status, payment_method, payment_status,
			change_for, subtotal, delivery_fee, discount, total_amount, coins_used,
			address_street, address_number, address_neighborhood, address_complement, delivery_code
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING created_at`,
		o.ID, o.MarketID, o.UserID, o.CustomerName, string(o.Type), string(o.Status),
		string(o.PaymentMethod), string(o.PaymentStatus), o.ChangeFor,
		int64(o.Subtotal), int64(o.DeliveryFee), int64(o.Discount), int64(o.Total), o.CoinsUsed,
		o.Address.Street, o.Address.Number, o.Address.Neighborhood, o.Address.Complement, o.DeliveryCode,
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, it := range o.Items {
		batch.Queue(
			`INSERT INTO order_items (id, order_id, market_id, menu_item_id, name, quantity, unit_price, total_price, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			it.ID, o.ID, it.MarketID, it.ProductID, it.Name, it.Quantity,
			int64(it.UnitPrice), int64(it.TotalPrice), it.Notes,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range o.Items {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetOrder возвращает заказ пользователя вместе с заведением, курьером и строками.
func (r *PostgresRepository) GetOrder(ctx context.Context, userID int64, orderID string) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` `+orderFrom+` WHERE o.id = $1 AND o.user_id = $2`,
		orderID, userID,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id::text, order_id::text, market_id::text, menu_item_id::text, name, quantity, unit_price, total_price, notes
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY name`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MarketID, &it.ProductID, &it.Name, &it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.Notes); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return o, nil
}

// ListOrdersByUser возвращает историю заказов пользователя без строк.
func (r *PostgresRepository) ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` `+orderFrom+` WHERE o.user_id = $1 ORDER BY o.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// GetLatestOrderWithStatus возвращает последний заказ пользователя в одном из статусов,
// созданный не раньше since. Нулевой since снимает ограничение по времени.
func (r *PostgresRepository) GetLatestOrderWithStatus(ctx context.Context, userID int64, statuses []model.OrderStatus, since time.Time) (*model.Order, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}

	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` `+orderFrom+`
		 WHERE o.user_id = $1 AND o.status = ANY($2) AND o.created_at >= $3
		 ORDER BY o.created_at DESC
		 LIMIT 1`,
		userID, names, since,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get latest order: %w", err)
	}
	return o, nil
}

// CancelOrder отменяет заказ пользователя, пока он ожидает принятия, и возвращает списанные монеты.
func (r *PostgresRepository) CancelOrder(ctx context.Context, userID int64, orderID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var coinsUsed int64
	err = tx.QueryRow(ctx,
		`UPDATE orders SET status = $3
		 WHERE id = $1 AND user_id = $2 AND status = $4
		 RETURNING coins_used`,
		orderID, userID, string(model.OrderStatusCanceled), string(model.OrderStatusPending),
	).Scan(&coinsUsed)
	if err != nil {
		if !isNoRows(err) {
			return fmt.Errorf("cancel order: %w", err)
		}

		var exists bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1 AND user_id = $2)`,
			orderID, userID,
		).Scan(&exists)
		if err != nil {
			if isNoRows(err) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("check order: %w", err)
		}
		if !exists {
			return ErrOrderNotFound
		}
		return ErrOrderNotCancelable
	}

	if coinsUsed > 0 {
		if _, err := tx.Exec(ctx, `UPDATE users SET coins = coins + $2 WHERE id = $1`, userID, coinsUsed); err != nil {
			return fmt.Errorf("refund coins: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// OrderForFulfillment описывает незавершённый заказ, статус которого нужно запросить у системы исполнения.
type OrderForFulfillment struct {
	ID           string
	Status       model.OrderStatus
	Total        model.Cents
	DeliveryCode string
}

// GetOrdersForFulfillment возвращает незавершённые заказы в порядке создания.
func (r *PostgresRepository) GetOrdersForFulfillment(ctx context.Context, statuses []model.OrderStatus, limit int) ([]OrderForFulfillment, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id::text, status, total_amount, delivery_code
		 FROM orders
		 WHERE status = ANY($1)
		 ORDER BY created_at
		 LIMIT $2`,
		names, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders for fulfillment: %w", err)
	}
	defer rows.Close()

	var res []OrderForFulfillment
	for rows.Next() {
		var (
			o      OrderForFulfillment
			status string
			total  int64
		)
		if err := rows.Scan(&o.ID, &status, &total, &o.DeliveryCode); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		o.Total = model.Cents(total)
		res = append(res, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// StatusUpdate описывает переход статуса, полученный от системы исполнения.
type StatusUpdate struct {
	OrderID     string
	From        model.OrderStatus
	To          model.OrderStatus
	CourierID   *string
	CourierName string
	// Reward содержит монеты, начисляемые при доставке.
	Reward int64
}

// UpdateOrderStatus применяет переход статуса, если заказ всё ещё в статусе From.
// При доставке начисляет награду ровно один раз, при отмене возвращает списанные монеты.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, u StatusUpdate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if u.CourierID != nil {
		_, err := tx.Exec(ctx,
			`INSERT INTO couriers (id, name) VALUES ($1, $2)
			 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
			*u.CourierID, u.CourierName,
		)
		if err != nil {
			return fmt.Errorf("upsert courier: %w", err)
		}
	}

	var (
		userID    int64
		coinsUsed int64
	)
	err = tx.QueryRow(ctx,
		`UPDATE orders
		 SET status = $3,
		     courier_id = COALESCE($4::text, courier_id),
		     payment_status = CASE WHEN $3 = 'delivered' THEN 'paid' ELSE payment_status END
		 WHERE id = $1 AND status = $2
		 RETURNING user_id, coins_used`,
		u.OrderID, string(u.From), string(u.To), u.CourierID,
	).Scan(&userID, &coinsUsed)
	if err != nil {
		if isNoRows(err) {
			return ErrStatusConflict
		}
		return fmt.Errorf("update order status: %w", err)
	}

	switch u.To {
	case model.OrderStatusDelivered:
		if u.Reward > 0 {
			tag, err := tx.Exec(ctx,
				`UPDATE orders SET coins_rewarded = TRUE WHERE id = $1 AND NOT coins_rewarded`,
				u.OrderID,
			)
			if err != nil {
				return fmt.Errorf("mark reward: %w", err)
			}
			if tag.RowsAffected() == 1 {
				if _, err := tx.Exec(ctx, `UPDATE users SET coins = coins + $2 WHERE id = $1`, userID, u.Reward); err != nil {
					return fmt.Errorf("credit reward: %w", err)
				}
			}
		}
	case model.OrderStatusCanceled:
		if coinsUsed > 0 {
			if _, err := tx.Exec(ctx, `UPDATE users SET coins = coins + $2 WHERE id = $1`, userID, coinsUsed); err != nil {
				return fmt.Errorf("refund coins: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
