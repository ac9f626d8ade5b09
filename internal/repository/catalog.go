package repository

import (
	"context"
	"fmt"

	"github.com/mmeshcher/ondeir/internal/model"
)

// GetMarket возвращает настройки заведения.
func (r *PostgresRepository) GetMarket(ctx context.Context, marketID string) (*model.Market, error) {
	var m model.Market
	err := r.pool.QueryRow(ctx,
		`SELECT id::text, name, phone, delivery_fee, delivery_time_min, delivery_time_max, coin_balance
		 FROM markets
		 WHERE id = $1`,
		marketID,
	).Scan(&m.ID, &m.Name, &m.Phone, &m.DeliveryFee, &m.DeliveryTimeMin, &m.DeliveryTimeMax, &m.CoinBalance)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("get market: %w", err)
	}
	return &m, nil
}

// GetProduct возвращает активную позицию меню вместе с группами дополнений.
// Группы упорядочены по display_order, дополнения по display_order и цене; неактивные дополнения не попадают в выборку.
func (r *PostgresRepository) GetProduct(ctx context.Context, marketID, productID string) (*model.Product, error) {
	var p model.Product
	err := r.pool.QueryRow(ctx,
		`SELECT id::text, market_id::text, name, description, price, image_url
		 FROM menu_items
		 WHERE id = $1 AND market_id = $2 AND is_active`,
		productID, marketID,
	).Scan(&p.ID, &p.MarketID, &p.Name, &p.Description, &p.Price, &p.ImageURL)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT g.id::text, g.name, g.min_select, g.max_select, g.required,
		        i.id::text, i.name, i.price
		 FROM addon_groups g
		 LEFT JOIN addon_items i ON i.group_id = g.id AND i.is_active
		 WHERE g.menu_item_id = $1
		 ORDER BY g.display_order, g.id, i.display_order, i.price`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("select addons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			g         model.AddonGroup
			itemID    *string
			itemName  *string
			itemPrice *int64
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.MinSelect, &g.MaxSelect, &g.Required, &itemID, &itemName, &itemPrice); err != nil {
			return nil, fmt.Errorf("scan addon: %w", err)
		}

		if n := len(p.Addons); n == 0 || p.Addons[n-1].ID != g.ID {
			p.Addons = append(p.Addons, g)
		}

		if itemID == nil {
			continue
		}

		last := &p.Addons[len(p.Addons)-1]
		last.Items = append(last.Items, model.AddonItem{
			ID:      *itemID,
			GroupID: g.ID,
			Name:    *itemName,
			Price:   model.Cents(*itemPrice),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &p, nil
}

// ListAddresses возвращает адреса пользователя, начиная с последнего добавленного.
func (r *PostgresRepository) ListAddresses(ctx context.Context, userID int64) ([]model.Address, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, user_id, name, street, number, neighborhood, complement, created_at
		 FROM user_addresses
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select addresses: %w", err)
	}
	defer rows.Close()

	var res []model.Address
	for rows.Next() {
		var a model.Address
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Street, &a.Number, &a.Neighborhood, &a.Complement, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetAddress возвращает адрес пользователя.
func (r *PostgresRepository) GetAddress(ctx context.Context, userID int64, addressID string) (*model.Address, error) {
	var a model.Address
	err := r.pool.QueryRow(ctx,
		`SELECT id::text, user_id, name, street, number, neighborhood, complement, created_at
		 FROM user_addresses
		 WHERE id = $1 AND user_id = $2`,
		addressID, userID,
	).Scan(&a.ID, &a.UserID, &a.Name, &a.Street, &a.Number, &a.Neighborhood, &a.Complement, &a.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return &a, nil
}

// CreateAddress сохраняет новый адрес и заполняет его идентификатор и дату создания.
func (r *PostgresRepository) CreateAddress(ctx context.Context, a *model.Address) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO user_addresses (user_id, name, street, number, neighborhood, complement)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id::text, created_at`,
		a.UserID, a.Name, a.Street, a.Number, a.Neighborhood, a.Complement,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	return nil
}

// DeleteAddress удаляет адрес пользователя. Заказы хранят копию адреса и не затрагиваются.
func (r *PostgresRepository) DeleteAddress(ctx context.Context, userID int64, addressID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_addresses WHERE id = $1 AND user_id = $2`,
		addressID, userID,
	)
	if err != nil {
		if isNoRows(err) {
			return ErrAddressNotFound
		}
		return fmt.Errorf("delete address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAddressNotFound
	}
	return nil
}
