package checkout

import (
	"fmt"
	"strings"

	"github.com/mmeshcher/ondeir/internal/model"
)

// FieldError описывает ошибку валидации конкретного поля формы оформления заказа.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Request содержит данные формы оформления заказа.
type Request struct {
	Type          model.OrderType
	AddressID     string
	CustomerName  string
	PaymentMethod model.PaymentMethod
	ChangeFor     *model.Cents
	UseCoins      bool
}

var paymentMethods = map[model.PaymentMethod]struct{}{
	model.PaymentCredit: {},
	model.PaymentDebit:  {},
	model.PaymentPix:    {},
	model.PaymentCash:   {},
}

// Validate проверяет форму до обращения к хранилищу. Возвращает первую найденную *FieldError.
func Validate(req Request, lines int, q Quote) error {
	if lines == 0 {
		return &FieldError{Field: "cart", Message: "Sua sacola está vazia"}
	}

	switch req.Type {
	case model.OrderTypeDelivery:
		if strings.TrimSpace(req.AddressID) == "" {
			return &FieldError{Field: "address_id", Message: "Selecione um endereço"}
		}
	case model.OrderTypePickup:
	default:
		return &FieldError{Field: "order_type", Message: "Tipo de pedido inválido"}
	}

	if strings.TrimSpace(req.CustomerName) == "" {
		return &FieldError{Field: "customer_name", Message: "Informe seu nome"}
	}

	if !q.PaymentRequired {
		return nil
	}

	if _, ok := paymentMethods[req.PaymentMethod]; !ok {
		return &FieldError{Field: "payment_method", Message: "Selecione a forma de pagamento"}
	}

	if req.PaymentMethod == model.PaymentCash && req.ChangeFor != nil && *req.ChangeFor < q.Total {
		return &FieldError{Field: "change_for", Message: "O troco deve ser maior que o total do pedido"}
	}

	return nil
}

// PaymentMethodFor возвращает способ оплаты, который будет записан в заказ.
// Если платить нечего, выбор пользователя игнорируется.
func PaymentMethodFor(req Request, q Quote) model.PaymentMethod {
	if !q.PaymentRequired {
		return model.PaymentCoins
	}
	return req.PaymentMethod
}
