package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/tillsync/internal/engine"
	"github.com/roach88/tillsync/internal/model"
	"github.com/roach88/tillsync/internal/store"
)

type statusResp struct {
	Online             bool       `json:"online"`
	LastSyncAt         *time.Time `json:"last_sync_at"`
	LastCacheRefreshAt *time.Time `json:"last_cache_refresh_at"`
	PendingBookings    int        `json:"pending_bookings"`
	ShowMemberBalance  bool       `json:"show_member_balance"`
}

type balanceResp struct {
	OpenAmount *model.Money `json:"open_amount"`
}

type createBookingReq struct {
	MemberID string           `json:"member_id"`
	Items    []model.LineItem `json:"items"`
}

type createBookingResp struct {
	ID         string      `json:"id"`
	TotalPrice model.Money `json:"total_price"`
	BookedAt   time.Time   `json:"booked_at"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	st := h.Engine.Status()
	stats, err := h.Store.Stats(r.Context())
	if err != nil {
		slog.Error("read store stats", "error", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, statusResp{
		Online:             st.Online,
		LastSyncAt:         timePtr(st.LastSyncAt),
		LastCacheRefreshAt: timePtr(st.LastCacheRefreshAt),
		PendingBookings:    stats.Undelivered,
		ShowMemberBalance:  st.ShowMemberBalance,
	})
}

func (h *Handler) memberByToken(w http.ResponseWriter, r *http.Request) {
	m, err := h.Store.FindMemberByToken(r.Context(), chi.URLParam(r, "token"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown token")
		return
	}
	if err != nil {
		slog.Error("find member by token", "error", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) productByBarcode(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.FindProductByBarcode(r.Context(), chi.URLParam(r, "barcode"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown barcode")
		return
	}
	if err != nil {
		slog.Error("find product by barcode", "error", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) memberBalance(w http.ResponseWriter, r *http.Request) {
	var resp balanceResp
	if balance, ok := h.Engine.MemberBalance(r.Context(), chi.URLParam(r, "id")); ok {
		resp.OpenAmount = &balance
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	total, err := model.Total(req.Items)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.Engine.SubmitBookingNow(r.Context(), req.MemberID, req.Items, total)
	if errors.Is(err, engine.ErrInvalidBooking) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, engine.ErrStopped) {
		writeError(w, http.StatusServiceUnavailable, "till is shutting down")
		return
	}
	if err != nil {
		slog.Error("submit booking", "member_id", req.MemberID, "error", err)
		writeError(w, http.StatusInternalServerError, "booking not saved")
		return
	}
	writeJSON(w, http.StatusCreated, createBookingResp{
		ID:         b.ID,
		TotalPrice: b.TotalPrice,
		BookedAt:   b.BookedAt,
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	started := h.Engine.ForceRefresh()
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": started})
}
