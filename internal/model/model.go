// Package model содержит доменные сущности сервиса доставки Ondeir.
package model

import (
	"math"
	"time"
)

// Cents хранит денежную сумму в сотых долях валюты. Все суммы накапливаются в Cents,
// округление выполняется только при отображении.
type Cents int64

// Float возвращает сумму в единицах валюты.
func (c Cents) Float() float64 {
	return float64(c) / 100
}

// CentsFromFloat переводит сумму в единицах валюты в Cents с округлением до ближайшего цента.
func CentsFromFloat(v float64) Cents {
	return Cents(math.Round(v * 100))
}

// User представляет зарегистрированного пользователя.
type User struct {
	ID           int64
	Login        string
	DisplayName  string
	PasswordHash []byte
	Coins        int64
	CreatedAt    time.Time
}

// Market описывает заведение: ресторан или магазин со своим меню и настройками доставки.
type Market struct {
	ID              string
	Name            string
	Phone           string
	DeliveryFee     Cents
	DeliveryTimeMin int
	DeliveryTimeMax int
	// CoinBalance хранит собственный баланс монет заведения.
	CoinBalance int64
}

// AcceptsCoins сообщает, участвует ли заведение в списании монет.
func (m Market) AcceptsCoins() bool {
	return m.CoinBalance > 0
}

// Product описывает позицию меню заведения.
type Product struct {
	ID          string
	MarketID    string
	Name        string
	Description string
	Price       Cents
	ImageURL    string
	Addons      []AddonGroup
}

// AddonGroup описывает именованную группу дополнений к позиции меню.
type AddonGroup struct {
	ID        string
	Name      string
	MinSelect int
	MaxSelect int
	Required  bool
	Items     []AddonItem
}

// AddonItem описывает одно дополнение внутри группы.
type AddonItem struct {
	ID      string
	GroupID string
	Name    string
	Price   Cents
}

// Address представляет запись адресной книги пользователя.
type Address struct {
	ID           string
	UserID       int64
	Name         string
	Street       string
	Number       string
	Neighborhood string
	Complement   string
	CreatedAt    time.Time
}

// Snapshot возвращает копию адреса для сохранения в заказе.
func (a Address) Snapshot() AddressSnapshot {
	return AddressSnapshot{
		Street:       a.Street,
		Number:       a.Number,
		Neighborhood: a.Neighborhood,
		Complement:   a.Complement,
	}
}

// AddressSnapshot содержит адрес, зафиксированный в заказе на момент оформления.
type AddressSnapshot struct {
	Street       string
	Number       string
	Neighborhood string
	Complement   string
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCanceled  OrderStatus = "canceled"
)

// OrderType описывает способ получения заказа.
type OrderType string

const (
	OrderTypeDelivery OrderType = "delivery"
	OrderTypePickup   OrderType = "pickup"
)

// PaymentMethod описывает способ оплаты.
type PaymentMethod string

const (
	PaymentCredit PaymentMethod = "credit"
	PaymentDebit  PaymentMethod = "debit"
	PaymentPix    PaymentMethod = "pix"
	PaymentCash   PaymentMethod = "cash"
	// PaymentCoins используется, когда монеты покрывают всю сумму заказа.
	PaymentCoins PaymentMethod = "coins"
)

// PaymentStatus описывает статус оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// Order описывает оформленный заказ.
type Order struct {
	ID            string
	MarketID      string
	MarketName    string
	MarketPhone   string
	UserID        int64
	CustomerName  string
	Type          OrderType
	Status        OrderStatus
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	ChangeFor     *Cents
	Subtotal      Cents
	DeliveryFee   Cents
	Discount      Cents
	Total         Cents
	CoinsUsed     int64
	Address       AddressSnapshot
	DeliveryCode  string
	CourierID     *string
	CourierName   string
	Items         []OrderItem
	CreatedAt     time.Time
}

// OrderItem описывает строку заказа: снимок позиции корзины на момент оформления.
type OrderItem struct {
	ID         string
	OrderID    string
	MarketID   string
	ProductID  string
	Name       string
	Quantity   int
	UnitPrice  Cents
	TotalPrice Cents
	Notes      string
}

// ReviewTarget описывает объект отзыва.
type ReviewTarget string

const (
	ReviewTargetDriver     ReviewTarget = "driver"
	ReviewTargetPlatform   ReviewTarget = "platform"
	ReviewTargetRestaurant ReviewTarget = "restaurant"
)

// Review описывает отзыв пользователя по заказу.
type Review struct {
	ID         string
	OrderID    string
	UserID     int64
	TargetType ReviewTarget
	TargetID   *string
	Rating     int
	Tags       []string
	Comment    string
	CreatedAt  time.Time
}

// Balance содержит баланс монет пользователя.
type Balance struct {
	Coins int64   `json:"coins"`
	Value float64 `json:"value"`
}
