package repository

import (
	"context"
	"fmt"

	"github.com/mmeshcher/ondeir/internal/model"
)

// ReviewedTargets возвращает объекты, уже оценённые по заказу.
func (r *PostgresRepository) ReviewedTargets(ctx context.Context, orderID string) (map[model.ReviewTarget]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT target_type FROM reviews WHERE order_id = $1`, orderID)
	if err != nil {
		if isNoRows(err) {
			return map[model.ReviewTarget]bool{}, nil
		}
		return nil, fmt.Errorf("select reviews: %w", err)
	}
	defer rows.Close()

	res := make(map[model.ReviewTarget]bool)
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		res[model.ReviewTarget(target)] = true
	}

	if err := rows.Err(); err != nil {
		if isNoRows(err) {
			return map[model.ReviewTarget]bool{}, nil
		}
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateReview сохраняет отзыв. Повторная оценка того же объекта по заказу возвращает ErrReviewExists.
func (r *PostgresRepository) CreateReview(ctx context.Context, rv *model.Review) error {
	tags := rv.Tags
	if tags == nil {
		tags = []string{}
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO reviews (order_id, user_id, target_type, target_id, rating, tags, comment)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id::text, created_at`,
		rv.OrderID, rv.UserID, string(rv.TargetType), rv.TargetID, rv.Rating, tags, rv.Comment,
	).Scan(&rv.ID, &rv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrReviewExists
		}
		if isNoRows(err) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// ClaimOrderEffects отмечает однократные эффекты заказа как показанные и возвращает только те виды,
// которые до этого вызова ещё не отмечались.
func (r *PostgresRepository) ClaimOrderEffects(ctx context.Context, orderID string, kinds []string) ([]string, error) {
	if len(kinds) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx,
		`INSERT INTO order_effects (order_id, kind)
		 SELECT $1, unnest($2::text[])
		 ON CONFLICT DO NOTHING
		 RETURNING kind`,
		orderID, kinds,
	)
	if err != nil {
		return nil, fmt.Errorf("claim order effects: %w", err)
	}
	defer rows.Close()

	var claimed []string
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, fmt.Errorf("scan effect: %w", err)
		}
		claimed = append(claimed, kind)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return claimed, nil
}
