package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmeshcher/ondeir/internal/addon"
	"github.com/mmeshcher/ondeir/internal/cart"
	"github.com/mmeshcher/ondeir/internal/model"
)

// GetProduct возвращает позицию меню с группами дополнений.
func (s *Service) GetProduct(ctx context.Context, marketID, productID string) (*model.Product, error) {
	return s.repo.GetProduct(ctx, marketID, productID)
}

// ConfigureRequest описывает одно изменение выбора дополнений в карточке позиции.
// Пустой GroupID только пересчитывает текущий выбор.
type ConfigureRequest struct {
	Selections addon.Selections
	GroupID    string
	ItemID     string
	Delta      int
	Notes      string
}

// Configuration содержит состояние карточки позиции после изменения.
type Configuration struct {
	Selections  addon.Selections
	UnitPrice   model.Cents
	Valid       bool
	Description string
	// Warning заполняется, когда изменение отклонено из-за максимума группы.
	Warning string
}

// Configure применяет изменение выбора дополнений и пересчитывает цену.
func (s *Service) Configure(ctx context.Context, marketID, productID string, req ConfigureRequest) (*Configuration, error) {
	p, err := s.repo.GetProduct(ctx, marketID, productID)
	if err != nil {
		return nil, err
	}

	sel := req.Selections.Clone()
	if err := addon.ValidatePartial(p.Addons, sel); err != nil {
		return nil, err
	}

	var warning string
	if req.GroupID != "" {
		g, ok := findGroup(p.Addons, req.GroupID)
		if !ok {
			return nil, &addon.SelectionError{GroupID: req.GroupID, Reason: "unknown group"}
		}
		if !hasItem(g, req.ItemID) {
			return nil, &addon.SelectionError{GroupID: req.GroupID, Reason: "unknown item " + req.ItemID}
		}

		if err := sel.ApplyDelta(g, req.ItemID, req.Delta); err != nil {
			if !errors.Is(err, addon.ErrGroupFull) {
				return nil, err
			}
			warning = fmt.Sprintf("Você pode escolher no máximo %d em %s", g.MaxSelect, g.Name)
		}
	}

	return &Configuration{
		Selections:  sel,
		UnitPrice:   addon.UnitPrice(p.Price, p.Addons, sel),
		Valid:       addon.IsValid(p.Addons, sel),
		Description: addon.Describe(p.Addons, sel, req.Notes),
		Warning:     warning,
	}, nil
}

func findGroup(groups []model.AddonGroup, id string) (model.AddonGroup, bool) {
	for _, g := range groups {
		if g.ID == id {
			return g, true
		}
	}
	return model.AddonGroup{}, false
}

func hasItem(g model.AddonGroup, itemID string) bool {
	for _, item := range g.Items {
		if item.ID == itemID {
			return true
		}
	}
	return false
}

// AddLineRequest описывает добавление позиции в корзину.
type AddLineRequest struct {
	MarketID   string
	ProductID  string
	Quantity   int
	Selections addon.Selections
	Notes      string
	// ReplaceCart подтверждает очистку корзины с позициями другого заведения.
	ReplaceCart bool
}

// GetCart возвращает корзину пользователя.
func (s *Service) GetCart(ctx context.Context, userID int64) (*cart.Cart, error) {
	return s.carts.Load(ctx, userID)
}

// AddToCart проверяет выбор дополнений, фиксирует цену единицы и описание выбора и добавляет строку в корзину.
func (s *Service) AddToCart(ctx context.Context, userID int64, req AddLineRequest) (*cart.Cart, error) {
	p, err := s.repo.GetProduct(ctx, req.MarketID, req.ProductID)
	if err != nil {
		return nil, err
	}

	if err := addon.Validate(p.Addons, req.Selections); err != nil {
		return nil, err
	}

	line := cart.Line{
		ProductID: p.ID,
		MarketID:  p.MarketID,
		Name:      p.Name,
		Price:     addon.UnitPrice(p.Price, p.Addons, req.Selections),
		Quantity:  req.Quantity,
		Notes:     addon.Describe(p.Addons, req.Selections, req.Notes),
		ImageURL:  p.ImageURL,
	}
	return s.mutateCart(ctx, userID, func(c *cart.Cart) error {
		_, err := c.Add(line, req.ReplaceCart)
		return err
	})
}

// UpdateCartLine меняет количество строки корзины.
func (s *Service) UpdateCartLine(ctx context.Context, userID int64, lineID string, qty int) (*cart.Cart, error) {
	return s.mutateCart(ctx, userID, func(c *cart.Cart) error {
		return c.SetQuantity(lineID, qty)
	})
}

// RemoveCartLine удаляет строку корзины.
func (s *Service) RemoveCartLine(ctx context.Context, userID int64, lineID string) (*cart.Cart, error) {
	return s.mutateCart(ctx, userID, func(c *cart.Cart) error {
		return c.Remove(lineID)
	})
}

// ClearCart удаляет корзину пользователя.
func (s *Service) ClearCart(ctx context.Context, userID int64) error {
	return s.carts.Delete(ctx, userID)
}

func (s *Service) mutateCart(ctx context.Context, userID int64, fn func(c *cart.Cart) error) (*cart.Cart, error) {
	return s.carts.Update(ctx, userID, fn)
}
