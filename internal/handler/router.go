package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/ondeir/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса доставки.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/markets/{marketID}/products/{productID}", func(r chi.Router) {
		r.Get("/", h.GetProduct)
		r.Post("/configure", h.Configure)
	})

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/balance", h.GetBalance)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Delete("/", h.ClearCart)
				r.Post("/lines", h.AddCartLine)
				r.Patch("/lines/{lineID}", h.UpdateCartLine)
				r.Delete("/lines/{lineID}", h.RemoveCartLine)
			})

			r.Post("/checkout/quote", h.Quote)
			r.Post("/checkout", h.Checkout)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.ListOrders)
				r.Get("/active", h.ActiveOrder)
				r.Get("/events", h.ActiveOrderEvents)

				r.Route("/{orderID}", func(r chi.Router) {
					r.Get("/", h.GetOrder)
					r.Post("/cancel", h.CancelOrder)
					r.Get("/events", h.OrderEvents)
					r.Get("/reviews/pending", h.PendingReviews)
					r.Post("/reviews", h.SubmitReview)
				})
			})

			r.Get("/reviews/pending-restaurant", h.PendingRestaurantReview)

			r.Route("/addresses", func(r chi.Router) {
				r.Get("/", h.ListAddresses)
				r.Post("/", h.CreateAddress)
				r.Delete("/{addressID}", h.DeleteAddress)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
