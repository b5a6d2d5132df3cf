// Package httpapi mounts the domain handlers under /api.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"printshop/internal/catalog"
	"printshop/internal/lockout"
	"printshop/internal/membership"
	"printshop/internal/order"
	"printshop/internal/store"
	"printshop/internal/voucher"
	"printshop/internal/web"
)

// Services is everything the router serves.
type Services struct {
	Store      *store.Store
	Membership membership.Service
	Voucher    voucher.Service
	Lockout    lockout.Service
	Order      order.Service
	Catalog    catalog.Service
}

func NewRouter(svc Services, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	members := membership.NewHandler(svc.Membership)
	vouchers := voucher.NewHandler(svc.Voucher)
	locks := lockout.NewHandler(svc.Lockout)
	orders := order.NewHandler(svc.Order)
	products := catalog.NewHandler(svc.Catalog)

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recoverer(logger))
	r.Use(Security)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			web.JSON(w, http.StatusOK, map[string]any{
				"status":   "ok",
				"revision": svc.Store.Revision(),
			})
		})
		r.Post("/auth/register", members.HandleRegister)
		r.Post("/auth/login", members.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(svc.Membership))

			r.Post("/auth/logout", members.HandleLogout)
			r.Get("/me", members.HandleMe)
			r.Put("/me/profile", members.HandleUpdateProfile)

			r.Get("/users", members.HandleListUsers)
			r.Post("/users/staff", members.HandleCreateStaff)
			r.Post("/users/{userID}/unblock", locks.HandleUnblock)
			r.Get("/block-events", locks.HandleEvents)

			r.Route("/codes", func(r chi.Router) {
				r.Get("/", vouchers.HandleList)
				r.Post("/generate", vouchers.HandleGenerate)
				r.Post("/redeem", vouchers.HandleRedeem)
				r.Get("/stats", vouchers.HandleStats)
				r.Get("/stats.xlsx", vouchers.HandleExportStats)
				r.Put("/{codeID}/visibility", vouchers.HandleSetVisibility)
				r.Post("/{codeID}/hide", vouchers.HandleHide)
				r.Post("/{codeID}/sell", vouchers.HandleMarkSold)
			})

			r.Route("/products", func(r chi.Router) {
				r.Get("/", products.HandleList)
				r.Post("/", products.HandleCreate)
				r.Get("/admin", products.HandleAdminList)
				r.Put("/{productID}", products.HandleUpdate)
				r.Delete("/{productID}", products.HandleDelete)
				r.Get("/{productID}/quote", products.HandleQuote)
			})

			r.Get("/branches/{branch}/settings", products.HandleBranchConfig)
			r.Put("/branches/{branch}/settings", products.HandleUpdateBranchConfig)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", orders.HandleList)
				r.Post("/", orders.HandleCreate)
				r.Post("/{orderID}/printed", orders.HandleMarkPrinted)
			})
		})
	})

	return r
}
