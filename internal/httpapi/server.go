// Package httpapi exposes the card-generation and checkout endpoints over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/printmint/cardpress/internal/models"
	"github.com/printmint/cardpress/internal/service"
)

const sessionSweepInterval = time.Hour

type generationAPI interface {
	Generate(ctx context.Context, req service.GenerationRequest) (*service.GenerationResult, error)
	ListImages(ctx context.Context, userID string, limit int) ([]models.ImageMetadata, error)
}

type orderAPI interface {
	CreateCheckout(ctx context.Context, userID string, items []service.OrderItem, clientTotalCents int) (*service.CheckoutResult, error)
	MarkPaid(ctx context.Context, paymentSessionID string) error
	UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus) (*models.OrderDetail, error)
	List(ctx context.Context) ([]models.OrderDetail, error)
	Get(ctx context.Context, orderID string) (*models.OrderDetail, error)
}

type webhookVerifier interface {
	ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

type sessionSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

type Server struct {
	addr          string
	adminUsername string
	adminPassword string
	log           *slog.Logger
	generation    generationAPI
	orders        orderAPI
	webhooks      webhookVerifier
	sessions      sessionStore
	sweeper       sessionSweeper
	router        *chi.Mux
}

func NewServer(addr, adminUsername, adminPassword string, log *slog.Logger, generation generationAPI, orders orderAPI, webhooks webhookVerifier, sessions sessionStore, sweeper sessionSweeper) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:          addr,
		adminUsername: adminUsername,
		adminPassword: adminPassword,
		log:           log,
		generation:    generation,
		orders:        orders,
		webhooks:      webhooks,
		sessions:      sessions,
		sweeper:       sweeper,
		router:        r,
	}

	r.Post("/webhook/stripe", s.handleStripeWebhook)

	r.Group(func(authed chi.Router) {
		authed.Use(s.sessionAuthMiddleware())
		authed.Post("/api/generate-image", s.handleGenerateImage)
		authed.Get("/api/generated-images", s.handleListImages)
		authed.Post("/api/checkout-session", s.handleCheckoutSession)
	})

	r.Group(func(admin chi.Router) {
		admin.Use(s.basicAuthMiddleware())
		admin.Route("/api/orders", func(r chi.Router) {
			r.Get("/", s.handleListOrders)
			r.Get("/{id}", s.handleGetOrder)
			r.Post("/{id}/status", s.handleUpdateOrderStatus)
		})
	})

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go s.sweepSessions(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

// sweepSessions periodically clears expired sessions until the context ends.
func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sweeper.DeleteExpired(ctx)
			if err != nil {
				s.log.Error("sweep expired sessions", "err", err)
				continue
			}
			if n > 0 {
				s.log.Info("expired sessions removed", "count", n)
			}
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
