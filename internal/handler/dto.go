package handler

import (
	"time"

	"github.com/mmeshcher/ondeir/internal/addon"
	"github.com/mmeshcher/ondeir/internal/cart"
	"github.com/mmeshcher/ondeir/internal/lifecycle"
	"github.com/mmeshcher/ondeir/internal/model"
	"github.com/mmeshcher/ondeir/internal/service"
)

// Суммы в ответах API передаются в единицах валюты, внутри сервиса используется model.Cents.

type addonItemResponse struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type addonGroupResponse struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	MinSelect int                 `json:"min_select"`
	MaxSelect int                 `json:"max_select"`
	Required  bool                `json:"required"`
	Items     []addonItemResponse `json:"items"`
}

type productResponse struct {
	ID          string               `json:"id"`
	MarketID    string               `json:"market_id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Price       float64              `json:"price"`
	ImageURL    string               `json:"image_url,omitempty"`
	AddonGroups []addonGroupResponse `json:"addon_groups"`
}

func newProductResponse(p *model.Product) productResponse {
	res := productResponse{
		ID:          p.ID,
		MarketID:    p.MarketID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.Float(),
		ImageURL:    p.ImageURL,
		AddonGroups: make([]addonGroupResponse, 0, len(p.Addons)),
	}
	for _, g := range p.Addons {
		gr := addonGroupResponse{
			ID:        g.ID,
			Name:      g.Name,
			MinSelect: g.MinSelect,
			MaxSelect: g.MaxSelect,
			Required:  g.Required,
			Items:     make([]addonItemResponse, 0, len(g.Items)),
		}
		for _, it := range g.Items {
			gr.Items = append(gr.Items, addonItemResponse{ID: it.ID, Name: it.Name, Price: it.Price.Float()})
		}
		res.AddonGroups = append(res.AddonGroups, gr)
	}
	return res
}

type configureRequest struct {
	Selections addon.Selections `json:"selections"`
	GroupID    string           `json:"group_id"`
	ItemID     string           `json:"item_id"`
	Delta      int              `json:"delta"`
	Notes      string           `json:"notes"`
}

type configurationResponse struct {
	Selections  addon.Selections `json:"selections"`
	UnitPrice   float64          `json:"unit_price"`
	Valid       bool             `json:"valid"`
	Description string           `json:"description"`
	Warning     string           `json:"warning,omitempty"`
}

type cartLineResponse struct {
	LineID    string  `json:"cartItemId"`
	ProductID string  `json:"id"`
	MarketID  string  `json:"marketId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Notes     string  `json:"notes,omitempty"`
	ImageURL  string  `json:"image_url,omitempty"`
}

type cartResponse struct {
	Items     []cartLineResponse `json:"items"`
	MarketID  *string            `json:"marketId"`
	Subtotal  float64            `json:"subtotal"`
	ItemCount int                `json:"item_count"`
}

func newCartResponse(c *cart.Cart) cartResponse {
	res := cartResponse{
		Items:     make([]cartLineResponse, 0, len(c.Lines)),
		MarketID:  c.MarketID,
		Subtotal:  c.Subtotal().Float(),
		ItemCount: c.ItemCount(),
	}
	for _, l := range c.Lines {
		res.Items = append(res.Items, cartLineResponse{
			LineID:    l.LineID,
			ProductID: l.ProductID,
			MarketID:  l.MarketID,
			Name:      l.Name,
			Price:     l.Price.Float(),
			Quantity:  l.Quantity,
			Notes:     l.Notes,
			ImageURL:  l.ImageURL,
		})
	}
	return res
}

type addLineRequest struct {
	MarketID    string           `json:"market_id"`
	ProductID   string           `json:"product_id"`
	Quantity    int              `json:"quantity"`
	Selections  addon.Selections `json:"selections"`
	Notes       string           `json:"notes"`
	ReplaceCart bool             `json:"replace_cart"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type quoteRequest struct {
	OrderType model.OrderType `json:"order_type"`
	UseCoins  bool            `json:"use_coins"`
}

type quoteResponse struct {
	MarketID        string  `json:"market_id"`
	MarketName      string  `json:"market_name"`
	CustomerName    string  `json:"customer_name"`
	CoinBalance     int64   `json:"coin_balance"`
	Subtotal        float64 `json:"subtotal"`
	DeliveryFee     float64 `json:"delivery_fee"`
	MaxCoins        int64   `json:"max_coins"`
	CoinsToUse      int64   `json:"coins_to_use"`
	Discount        float64 `json:"discount"`
	Total           float64 `json:"total"`
	PaymentRequired bool    `json:"payment_required"`
	CoinsAccepted   bool    `json:"coins_accepted"`
	DeliveryTimeMin int     `json:"delivery_time_min"`
	DeliveryTimeMax int     `json:"delivery_time_max"`
}

func newQuoteResponse(q *service.CheckoutQuote) quoteResponse {
	return quoteResponse{
		MarketID:        q.MarketID,
		MarketName:      q.MarketName,
		CustomerName:    q.CustomerName,
		CoinBalance:     q.CoinBalance,
		Subtotal:        q.Subtotal.Float(),
		DeliveryFee:     q.DeliveryFee.Float(),
		MaxCoins:        q.MaxCoins,
		CoinsToUse:      q.CoinsToUse,
		Discount:        q.Discount.Float(),
		Total:           q.Total.Float(),
		PaymentRequired: q.PaymentRequired,
		CoinsAccepted:   q.CoinsAccepted,
		DeliveryTimeMin: q.DeliveryTimeMin,
		DeliveryTimeMax: q.DeliveryTimeMax,
	}
}

type checkoutRequest struct {
	OrderType     model.OrderType     `json:"order_type"`
	AddressID     string              `json:"address_id"`
	CustomerName  string              `json:"customer_name"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	ChangeFor     *float64            `json:"change_for"`
	UseCoins      bool                `json:"use_coins"`
}

type addressSnapshotResponse struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Neighborhood string `json:"neighborhood"`
	Complement   string `json:"complement,omitempty"`
}

type orderItemResponse struct {
	ID         string  `json:"id"`
	ProductID  string  `json:"product_id"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
	Notes      string  `json:"notes,omitempty"`
}

type orderResponse struct {
	ID            string                   `json:"id"`
	MarketID      string                   `json:"market_id"`
	MarketName    string                   `json:"market_name"`
	MarketPhone   string                   `json:"market_phone,omitempty"`
	CustomerName  string                   `json:"customer_name"`
	OrderType     model.OrderType          `json:"order_type"`
	Status        model.OrderStatus        `json:"status"`
	Step          int                      `json:"step"`
	CanCancel     bool                     `json:"can_cancel"`
	PaymentMethod model.PaymentMethod      `json:"payment_method"`
	PaymentStatus model.PaymentStatus      `json:"payment_status"`
	ChangeFor     *float64                 `json:"change_for,omitempty"`
	Subtotal      float64                  `json:"subtotal"`
	DeliveryFee   float64                  `json:"delivery_fee"`
	Discount      float64                  `json:"discount"`
	Total         float64                  `json:"total"`
	CoinsUsed     int64                    `json:"coins_used"`
	Address       *addressSnapshotResponse `json:"address,omitempty"`
	DeliveryCode  string                   `json:"delivery_code"`
	CourierName   string                   `json:"courier_name,omitempty"`
	Items         []orderItemResponse      `json:"items,omitempty"`
	CreatedAt     string                   `json:"created_at"`
}

func newOrderResponse(o *model.Order) orderResponse {
	res := orderResponse{
		ID:            o.ID,
		MarketID:      o.MarketID,
		MarketName:    o.MarketName,
		MarketPhone:   o.MarketPhone,
		CustomerName:  o.CustomerName,
		OrderType:     o.Type,
		Status:        o.Status,
		Step:          lifecycle.Step(o.Status),
		CanCancel:     lifecycle.CanCustomerCancel(o.Status),
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Subtotal:      o.Subtotal.Float(),
		DeliveryFee:   o.DeliveryFee.Float(),
		Discount:      o.Discount.Float(),
		Total:         o.Total.Float(),
		CoinsUsed:     o.CoinsUsed,
		DeliveryCode:  o.DeliveryCode,
		CourierName:   o.CourierName,
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
	}
	if o.ChangeFor != nil {
		v := o.ChangeFor.Float()
		res.ChangeFor = &v
	}
	if o.Type == model.OrderTypeDelivery {
		res.Address = &addressSnapshotResponse{
			Street:       o.Address.Street,
			Number:       o.Address.Number,
			Neighborhood: o.Address.Neighborhood,
			Complement:   o.Address.Complement,
		}
	}
	for _, it := range o.Items {
		res.Items = append(res.Items, orderItemResponse{
			ID:         it.ID,
			ProductID:  it.ProductID,
			Name:       it.Name,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice.Float(),
			TotalPrice: it.TotalPrice.Float(),
			Notes:      it.Notes,
		})
	}
	return res
}

type effectResponse struct {
	Kind         lifecycle.EffectKind `json:"kind"`
	DeliveryCode string               `json:"delivery_code,omitempty"`
	ReviewSteps  []model.ReviewTarget `json:"review_steps,omitempty"`
	Reward       int64                `json:"reward,omitempty"`
	DwellMillis  int64                `json:"dwell_ms,omitempty"`
	MarketPhone  string               `json:"market_phone,omitempty"`
}

type trackingResponse struct {
	Order   orderResponse    `json:"order"`
	Effects []effectResponse `json:"effects"`
	Live    bool             `json:"live"`
}

func newTrackingResponse(u service.TrackingUpdate) trackingResponse {
	res := trackingResponse{
		Order:   newOrderResponse(&u.Order),
		Effects: make([]effectResponse, 0, len(u.Effects)),
		Live:    u.Live,
	}
	// Шкала не откатывается назад, даже если заказ вернулся на предыдущий шаг.
	res.Order.Step = u.Step
	for _, e := range u.Effects {
		res.Effects = append(res.Effects, effectResponse{
			Kind:         e.Kind,
			DeliveryCode: e.DeliveryCode,
			ReviewSteps:  e.ReviewSteps,
			Reward:       e.Reward,
			DwellMillis:  e.Dwell.Milliseconds(),
			MarketPhone:  e.MarketPhone,
		})
	}
	return res
}

type activeOrderResponse struct {
	Order *orderResponse `json:"order"`
	Live  bool           `json:"live"`
}

func newActiveOrderResponse(u service.ActiveOrderUpdate) activeOrderResponse {
	res := activeOrderResponse{Live: u.Live}
	if u.Order != nil {
		o := newOrderResponse(u.Order)
		res.Order = &o
	}
	return res
}

type reviewRequest struct {
	TargetType model.ReviewTarget `json:"target_type"`
	Rating     int                `json:"rating"`
	Tags       []string           `json:"tags"`
	Comment    string             `json:"comment"`
}

type reviewResponse struct {
	ID         string              `json:"id"`
	TargetType model.ReviewTarget  `json:"target_type"`
	Rating     int                 `json:"rating"`
	Tags       []string            `json:"tags,omitempty"`
	Comment    string              `json:"comment,omitempty"`
	Next       *model.ReviewTarget `json:"next"`
}

type pendingReviewsResponse struct {
	Pending []model.ReviewTarget `json:"pending"`
}

type addressRequest struct {
	Name         string `json:"name"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	Neighborhood string `json:"neighborhood"`
	Complement   string `json:"complement"`
}

type addressResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	Neighborhood string `json:"neighborhood"`
	Complement   string `json:"complement,omitempty"`
}

func newAddressResponse(a model.Address) addressResponse {
	return addressResponse{
		ID:           a.ID,
		Name:         a.Name,
		Street:       a.Street,
		Number:       a.Number,
		Neighborhood: a.Neighborhood,
		Complement:   a.Complement,
	}
}
