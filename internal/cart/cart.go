// Package cart содержит корзину пользователя и её хранилища.
package cart

import (
	"errors"

	"github.com/google/uuid"

	"github.com/mmeshcher/ondeir/internal/model"
)

var (
	// ErrMarketConflict возвращается при добавлении позиции другого заведения без подтверждения очистки корзины.
	ErrMarketConflict = errors.New("cart holds items from another market")
	// ErrLineNotFound возвращается, если строка корзины не найдена.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrInvalidQuantity возвращается при количестве меньше единицы.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// Line описывает одну позицию корзины. LineID отличается от ProductID, так как одна и та же позиция
// может лежать в корзине дважды с разными дополнениями или примечаниями.
type Line struct {
	LineID    string      `json:"cartItemId"`
	ProductID string      `json:"id"`
	MarketID  string      `json:"marketId"`
	Name      string      `json:"name"`
	Price     model.Cents `json:"price"`
	Quantity  int         `json:"quantity"`
	Notes     string      `json:"notes,omitempty"`
	ImageURL  string      `json:"image_url,omitempty"`
}

// Cart описывает корзину пользователя. Все строки принадлежат одному заведению.
type Cart struct {
	Lines    []Line  `json:"items"`
	MarketID *string `json:"marketId"`
}

// Add добавляет строку в корзину. Если корзина содержит позиции другого заведения,
// без replace возвращается ErrMarketConflict, с replace корзина очищается.
func (c *Cart) Add(line Line, replace bool) (Line, error) {
	if line.Quantity < 1 {
		return Line{}, ErrInvalidQuantity
	}

	if c.MarketID != nil && *c.MarketID != line.MarketID {
		if !replace {
			return Line{}, ErrMarketConflict
		}
		c.Lines = nil
	}

	marketID := line.MarketID
	c.MarketID = &marketID

	line.LineID = uuid.NewString()
	c.Lines = append(c.Lines, line)

	return line, nil
}

// SetQuantity меняет количество позиции.
func (c *Cart) SetQuantity(lineID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	for i := range c.Lines {
		if c.Lines[i].LineID == lineID {
			c.Lines[i].Quantity = qty
			return nil
		}
	}
	return ErrLineNotFound
}

// Remove удаляет строку. Опустевшая корзина освобождается для другого заведения.
func (c *Cart) Remove(lineID string) error {
	for i := range c.Lines {
		if c.Lines[i].LineID == lineID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			if len(c.Lines) == 0 {
				c.MarketID = nil
			}
			return nil
		}
	}
	return ErrLineNotFound
}

// Clear полностью очищает корзину.
func (c *Cart) Clear() {
	c.Lines = nil
	c.MarketID = nil
}

// IsEmpty сообщает, пуста ли корзина.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Subtotal возвращает сумму всех позиций.
func (c *Cart) Subtotal() model.Cents {
	var total model.Cents
	for _, l := range c.Lines {
		total += l.Price * model.Cents(l.Quantity)
	}
	return total
}

// ItemCount возвращает количество единиц товара в корзине.
func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}
