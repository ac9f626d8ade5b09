// Package addon реализует выбор дополнений к позиции меню: ограничения групп,
// расчёт цены единицы и текстовое описание выбора для примечаний заказа.
package addon

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmeshcher/ondeir/internal/model"
)

// ErrGroupFull возвращается, когда в группе уже выбрано максимальное количество дополнений.
// Это предупреждение для пользователя: состояние выбора не меняется.
var ErrGroupFull = errors.New("addon group is full")

// Selections хранит выбранные количества: группа -> дополнение -> количество.
// Нулевые количества не хранятся.
type Selections map[string]map[string]int

// Clone возвращает независимую копию выбора.
func (s Selections) Clone() Selections {
	out := make(Selections, len(s))
	for groupID, items := range s {
		copied := make(map[string]int, len(items))
		for itemID, qty := range items {
			copied[itemID] = qty
		}
		out[groupID] = copied
	}
	return out
}

// GroupTotal возвращает суммарное количество выбранных дополнений группы.
func (s Selections) GroupTotal(groupID string) int {
	total := 0
	for _, qty := range s[groupID] {
		total += qty
	}
	return total
}

// ApplyDelta изменяет количество дополнения itemID в группе group на delta.
// Увеличение, после которого сумма группы превысит максимум, отклоняется целиком с ErrGroupFull.
func (s Selections) ApplyDelta(group model.AddonGroup, itemID string, delta int) error {
	if group.MaxSelect == 1 && delta > 0 {
		s[group.ID] = map[string]int{itemID: 1}
		return nil
	}

	if delta > 0 && group.MaxSelect > 0 && s.GroupTotal(group.ID)+delta > group.MaxSelect {
		return fmt.Errorf("%w: %s allows at most %d", ErrGroupFull, group.Name, group.MaxSelect)
	}

	items := s[group.ID]
	next := items[itemID] + delta
	if next <= 0 {
		delete(items, itemID)
		if len(items) == 0 {
			delete(s, group.ID)
		}
		return nil
	}

	if items == nil {
		items = make(map[string]int)
		s[group.ID] = items
	}
	items[itemID] = next

	return nil
}

// UnitPrice возвращает цену единицы с учётом выбранных дополнений.
func UnitPrice(base model.Cents, groups []model.AddonGroup, s Selections) model.Cents {
	price := base
	for _, g := range groups {
		selected := s[g.ID]
		if len(selected) == 0 {
			continue
		}
		for _, item := range g.Items {
			price += item.Price * model.Cents(selected[item.ID])
		}
	}
	return price
}

// IsValid сообщает, удовлетворены ли минимумы всех обязательных групп.
func IsValid(groups []model.AddonGroup, s Selections) bool {
	for _, g := range groups {
		if g.Required && s.GroupTotal(g.ID) < g.MinSelect {
			return false
		}
	}
	return true
}

// SelectionError описывает нарушение ограничений группы дополнений.
type SelectionError struct {
	GroupID string
	Reason  string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("addon group %s: %s", e.GroupID, e.Reason)
}

// Validate проверяет выбор, полученный от клиента целиком: группы и дополнения должны
// принадлежать позиции, количества должны быть положительными и не превышать максимум группы,
// а обязательные группы должны быть заполнены.
func Validate(groups []model.AddonGroup, s Selections) error {
	if err := ValidatePartial(groups, s); err != nil {
		return err
	}

	for _, g := range groups {
		if g.Required && s.GroupTotal(g.ID) < g.MinSelect {
			return &SelectionError{GroupID: g.ID, Reason: "at least " + strconv.Itoa(g.MinSelect) + " required"}
		}
	}

	return nil
}

// ValidatePartial проверяет незавершённый выбор: всё, что проверяет Validate, кроме минимумов обязательных групп.
func ValidatePartial(groups []model.AddonGroup, s Selections) error {
	byID := make(map[string]model.AddonGroup, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}

	for groupID, items := range s {
		g, ok := byID[groupID]
		if !ok {
			return &SelectionError{GroupID: groupID, Reason: "unknown group"}
		}

		known := make(map[string]struct{}, len(g.Items))
		for _, item := range g.Items {
			known[item.ID] = struct{}{}
		}

		total := 0
		for itemID, qty := range items {
			if _, ok := known[itemID]; !ok {
				return &SelectionError{GroupID: groupID, Reason: "unknown item " + itemID}
			}
			if qty <= 0 {
				return &SelectionError{GroupID: groupID, Reason: "quantity must be positive"}
			}
			total += qty
		}

		if g.MaxSelect > 0 && total > g.MaxSelect {
			return &SelectionError{GroupID: groupID, Reason: "at most " + strconv.Itoa(g.MaxSelect) + " allowed"}
		}
	}

	return nil
}

// Describe формирует строку для примечаний строки заказа, например
// "Queijo: Cheddar | Extras: 2 x Bacon, Ovo | Obs: sem cebola".
func Describe(groups []model.AddonGroup, s Selections, notes string) string {
	parts := make([]string, 0, len(groups))

	for _, g := range groups {
		selected := s[g.ID]
		if len(selected) == 0 {
			continue
		}

		names := make([]string, 0, len(selected))
		for _, item := range g.Items {
			qty := selected[item.ID]
			switch {
			case qty > 1:
				names = append(names, strconv.Itoa(qty)+" x "+item.Name)
			case qty == 1:
				names = append(names, item.Name)
			}
		}
		if len(names) == 0 {
			continue
		}

		parts = append(parts, g.Name+": "+strings.Join(names, ", "))
	}

	desc := strings.Join(parts, " | ")

	notes = strings.TrimSpace(notes)
	if notes == "" {
		return desc
	}
	if desc == "" {
		return "Obs: " + notes
	}
	return desc + " | Obs: " + notes
}
