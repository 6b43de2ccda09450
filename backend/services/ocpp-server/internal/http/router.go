// Package httpserver exposes the OCPP WebSocket endpoint and the operator REST API.
package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"evcharge/backend/services/ocpp-server/internal/http/handlers"
)

// RouterDeps collects handler dependencies. A nil Auth leaves the API open.
type RouterDeps struct {
	Chargers     *handlers.ChargersHandlers
	Transactions *handlers.TransactionsHandlers
	Messages     *handlers.MessagesHandlers
	Health       http.HandlerFunc
	Metrics      http.Handler
	OCPP         http.HandlerFunc
	Auth         func(http.Handler) http.Handler
	Logger       *zap.Logger
}

// NewRouter wires HTTP routes with middleware.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	if deps.OCPP != nil {
		r.Get("/ocpp", deps.OCPP)
		r.Get("/ocpp/*", deps.OCPP)
	}

	r.Group(func(r chi.Router) {
		r.Use(requestLogger(logger))

		r.Get("/health", deps.Health)
		if deps.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", deps.Metrics)
		}

		r.Group(func(r chi.Router) {
			if deps.Auth != nil {
				r.Use(deps.Auth)
			}

			r.Route("/chargers", func(r chi.Router) {
				r.Get("/", deps.Chargers.List)
				r.Get("/active", deps.Chargers.Active)
				r.Post("/{stationID}/start", deps.Chargers.Start)
				r.Post("/{stationID}/stop", deps.Chargers.Stop)
				r.Post("/{stationID}/configure", deps.Chargers.Configure)
			})
			r.Get("/transactions", deps.Transactions.List)
			r.Get("/transactions/{stationID}", deps.Transactions.ListByStation)
			r.Get("/messages/{stationID}", deps.Messages.ListByStation)
		})
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}
