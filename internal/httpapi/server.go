// Package httpapi serves the local front-end API of a till.
//
// The presentation layer reads the cache and status through it and submits
// bookings. It listens on a local address only; the central authority is
// never reached through it except for balance lookups and the background
// flush a booking may start.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/tillsync/internal/engine"
	"github.com/roach88/tillsync/internal/model"
	"github.com/roach88/tillsync/internal/store"
)

const (
	requestTimeout  = 15 * time.Second
	shutdownTimeout = 5 * time.Second
	maxBodyBytes    = 1 << 20
)

// Engine is the part of *engine.Engine the API drives.
type Engine interface {
	SubmitBookingNow(ctx context.Context, memberID string, items []model.LineItem, total model.Money) (model.Booking, error)
	ForceRefresh() bool
	MemberBalance(ctx context.Context, memberID string) (model.Money, bool)
	Status() engine.Status
}

// Store is the part of *store.Store the API reads.
type Store interface {
	FindMemberByToken(ctx context.Context, token string) (model.Member, error)
	FindProductByBarcode(ctx context.Context, barcode string) (model.Product, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// Handler serves the local API.
type Handler struct {
	Engine Engine
	Store  Store
}

// NewRouter returns the API router.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	h.Register(r)
	return r
}

// Register mounts the API routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/status", h.status)
	r.Get("/members/by-token/{token}", h.memberByToken)
	r.Get("/members/{id}/balance", h.memberBalance)
	r.Get("/products/by-barcode/{barcode}", h.productByBarcode)
	r.Post("/bookings", h.createBooking)
	r.Post("/refresh", h.refresh)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return ServeListener(ctx, ln, handler)
}

// ServeListener serves on ln until ctx is done.
func ServeListener(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("local api listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve local api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown local api: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve local api: %w", err)
	}
	slog.Info("local api stopped")
	return ctx.Err()
}
