package service

import (
	"context"
	"errors"
	"strings"

	"github.com/mmeshcher/ondeir/internal/checkout"
	"github.com/mmeshcher/ondeir/internal/lifecycle"
	"github.com/mmeshcher/ondeir/internal/model"
	"github.com/mmeshcher/ondeir/internal/repository"
)

// ReviewRequest содержит оценку одного объекта по заказу.
type ReviewRequest struct {
	Target  model.ReviewTarget
	Rating  int
	Tags    []string
	Comment string
}

// ReviewResult содержит сохранённый отзыв и следующий шаг оценки, если он есть.
type ReviewResult struct {
	Review model.Review
	Next   *model.ReviewTarget
}

// PendingReviews возвращает объекты, которые ещё можно оценить по доставленному заказу, в порядке показа.
func (s *Service) PendingReviews(ctx context.Context, userID int64, orderID string) ([]model.ReviewTarget, error) {
	o, err := s.repo.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != model.OrderStatusDelivered {
		return []model.ReviewTarget{}, nil
	}

	reviewed, err := s.repo.ReviewedTargets(ctx, orderID)
	if err != nil {
		return nil, err
	}

	pending := []model.ReviewTarget{}
	for f := lifecycle.NewReviewFlow(o.CourierID != nil, reviewed); !f.Done(); f.Advance() {
		step, _ := f.Current()
		pending = append(pending, step)
	}

	if !reviewed[model.ReviewTargetRestaurant] && lifecycle.WithinReviewWindow(o.CreatedAt, s.now()) {
		pending = append(pending, model.ReviewTargetRestaurant)
	}

	return pending, nil
}

// SubmitReview сохраняет оценку. Курьер оценивается раньше платформы, заведение оценивается в течение
// недели после заказа; повторная оценка того же объекта отклоняется.
func (s *Service) SubmitReview(ctx context.Context, userID int64, orderID string, req ReviewRequest) (*ReviewResult, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, &checkout.FieldError{Field: "rating", Message: "Escolha uma nota de 1 a 5"}
	}

	o, err := s.repo.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != model.OrderStatusDelivered {
		return nil, ErrReviewNotAllowed
	}

	reviewed, err := s.repo.ReviewedTargets(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if reviewed[req.Target] {
		return nil, repository.ErrReviewExists
	}

	rv := model.Review{
		OrderID:    orderID,
		UserID:     userID,
		TargetType: req.Target,
		Rating:     req.Rating,
		Tags:       req.Tags,
		Comment:    strings.TrimSpace(req.Comment),
	}

	var flow *lifecycle.ReviewFlow

	switch req.Target {
	case model.ReviewTargetDriver, model.ReviewTargetPlatform:
		flow = lifecycle.NewReviewFlow(o.CourierID != nil, reviewed)
		if step, ok := flow.Current(); !ok || step != req.Target {
			return nil, ErrReviewNotAllowed
		}
		if req.Target == model.ReviewTargetDriver {
			rv.TargetID = o.CourierID
		}
	case model.ReviewTargetRestaurant:
		if !lifecycle.WithinReviewWindow(o.CreatedAt, s.now()) {
			return nil, ErrReviewNotAllowed
		}
		marketID := o.MarketID
		rv.TargetID = &marketID
	default:
		return nil, &checkout.FieldError{Field: "target_type", Message: "Tipo de avaliação inválido"}
	}

	if err := s.repo.CreateReview(ctx, &rv); err != nil {
		if errors.Is(err, repository.ErrReviewExists) {
			return nil, repository.ErrReviewExists
		}
		return nil, err
	}

	res := &ReviewResult{Review: rv}
	if flow != nil {
		flow.Advance()
		if next, ok := flow.Current(); ok {
			res.Next = &next
		}
	}
	return res, nil
}

// PendingRestaurantReview возвращает последний доставленный за неделю заказ, заведение которого ещё не оценено.
// Если такого заказа нет, возвращается nil.
func (s *Service) PendingRestaurantReview(ctx context.Context, userID int64) (*model.Order, error) {
	since := s.now().Add(-lifecycle.RestaurantReviewWindow)

	o, err := s.repo.GetLatestOrderWithStatus(ctx, userID, []model.OrderStatus{model.OrderStatusDelivered}, since)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}

	reviewed, err := s.repo.ReviewedTargets(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if reviewed[model.ReviewTargetRestaurant] {
		return nil, nil
	}
	return o, nil
}
