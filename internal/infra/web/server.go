package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
	"github.com/storeseo/pointsledger/internal/infra/redis"
	"github.com/storeseo/pointsledger/internal/usecase"
)

// lock TTL for per-user serialization at the edge; the DB row lock is the
// actual correctness boundary.
const userLockTTL = 10 * time.Second

type Server struct {
	pointsUC   usecase.PointsUseCase
	purchaseUC usecase.PurchaseUseCase
	promoUC    usecase.PromoUseCase
	pricingUC  usecase.PricingUseCase
	subUC      usecase.SubscriptionUseCase
	packages   repository.PackageRepository
	locker     redis.Locker
	adminToken string
	log        *zerolog.Logger
}

func NewServer(
	pointsUC usecase.PointsUseCase,
	purchaseUC usecase.PurchaseUseCase,
	promoUC usecase.PromoUseCase,
	pricingUC usecase.PricingUseCase,
	subUC usecase.SubscriptionUseCase,
	packages repository.PackageRepository,
	locker redis.Locker,
	adminToken string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		pointsUC:   pointsUC,
		purchaseUC: purchaseUC,
		promoUC:    promoUC,
		pricingUC:  pricingUC,
		subUC:      subUC,
		packages:   packages,
		locker:     locker,
		adminToken: adminToken,
		log:        logger,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router(timeout time.Duration) *chi.Mux {
	r := chi.NewRouter()

	r.Use(TraceID())
	r.Use(Recover(s.log))
	r.Use(RequestLog(s.log))
	r.Use(Timeout(timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/points/consume", s.consumeHandler)
		r.Get("/users/{userID}/balance", s.balanceHandler)
		r.Get("/users/{userID}/history", s.historyHandler)
		r.Get("/users/{userID}/purchases", s.purchasesListHandler)
		r.Get("/users/{userID}/subscription", s.subscriptionGetHandler)

		r.Get("/packages", s.packagesListHandler)
		r.Get("/pricing", s.pricingListHandler)

		r.Post("/purchases", s.purchaseInitiateHandler)
		r.Get("/purchases/{id}", s.purchaseGetHandler)
		r.Post("/purchases/{id}/confirm", s.purchaseConfirmHandler)
		r.Post("/purchases/{id}/cancel", s.purchaseCancelHandler)

		// provider redirect/callback; resolves the purchase by reference
		r.Get("/payment/callback", s.paymentCallbackHandler)

		r.Post("/promo/validate", s.promoValidateHandler)

		r.Post("/subscriptions", s.subscribeHandler)
		r.Post("/subscriptions/{id}/cancel", s.subscriptionCancelHandler)
		r.Post("/subscriptions/{id}/pause", s.subscriptionPauseHandler)
		r.Post("/subscriptions/{id}/resume", s.subscriptionResumeHandler)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/credit", s.adminCreditHandler)
			r.Post("/debit", s.adminDebitHandler)
			r.Post("/purchases/{id}/refund", s.refundHandler)
			r.Get("/revenue", s.revenueHandler)
			r.Put("/pricing/{service}", s.pricingSetHandler)
			r.Delete("/pricing/{service}", s.pricingDeactivateHandler)
		})
	})

	return r
}

// authMiddleware provides simple Bearer token authentication for the admin API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			s.log.Error().Msg("Admin API token is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.adminToken {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
