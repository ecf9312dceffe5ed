package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/storeseo/pointsledger/internal/domain"
	"github.com/storeseo/pointsledger/internal/domain/model"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
)

// writeJSON is the single JSON response path.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error     string `json:"error"`
	Required  int64  `json:"required,omitempty"`
	Available int64  `json:"available,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// writeError maps domain errors onto HTTP statuses. Insufficient balance and
// promo rejections carry structured detail so clients can react.
func writeError(w http.ResponseWriter, err error) {
	var insuff *domain.InsufficientBalanceError
	if errors.As(err, &insuff) {
		writeJSON(w, http.StatusPaymentRequired, errorResponse{
			Error:     domain.ErrInsufficientBalance.Error(),
			Required:  insuff.Required,
			Available: insuff.Available,
		})
		return
	}
	var promoErr *domain.PromoInvalidError
	if errors.As(err, &promoErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  domain.ErrPromoInvalid.Error(),
			Reason: string(promoErr.Reason),
		})
		return
	}

	var status int
	switch {
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrUnknownService):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConcurrencyConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrPaymentFailed):
		status = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrPaymentGateway):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrLockNotAcquired):
		status = http.StatusTooManyRequests
	default:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func pageParams(r *http.Request) (limit, offset int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50 // Default page size
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// withUserLock serializes bursts per user when a locker is configured.
func (s *Server) withUserLock(r *http.Request, userID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := "lock:user:" + userID
	token, err := s.locker.TryLock(r.Context(), key, userLockTTL)
	if err != nil {
		return nil, err
	}
	ctx := r.Context()
	return func() { _ = s.locker.Unlock(ctx, key, token) }, nil
}

// ---------------- points ----------------

type consumeRequest struct {
	UserID      string                 `json:"user_id"`
	Service     string                 `json:"service"`
	ReferenceID string                 `json:"reference_id"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
}

func (s *Server) consumeHandler(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	unlock, err := s.withUserLock(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unlock()

	tx, err := s.pointsUC.Consume(r.Context(), req.UserID, model.ServiceID(req.Service), req.ReferenceID, req.Meta)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) balanceHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	acct, err := s.pointsUC.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit, offset := pageParams(r)

	var f repository.TransactionFilter
	q := r.URL.Query()
	f.Kind = model.TransactionKind(q.Get("kind"))
	f.RefKind = q.Get("ref_kind")
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid 'since' timestamp", http.StatusBadRequest)
			return
		}
		f.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid 'until' timestamp", http.StatusBadRequest)
			return
		}
		f.Until = t
	}

	txs, err := s.pointsUC.History(r.Context(), userID, f, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// ---------------- catalog ----------------

func (s *Server) packagesListHandler(w http.ResponseWriter, r *http.Request) {
	pkgs, err := s.packages.ListActive(r.Context(), repository.NoTX)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pkgs)
}

func (s *Server) pricingListHandler(w http.ResponseWriter, r *http.Request) {
	prices, err := s.pricingUC.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

type pricingSetRequest struct {
	Cost     int64  `json:"cost"`
	Category string `json:"category"`
}

func (s *Server) pricingSetHandler(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")

	var req pricingSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	price, err := s.pricingUC.Set(r.Context(), model.ServiceID(service), req.Cost, req.Category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, price)
}

func (s *Server) pricingDeactivateHandler(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	if err := s.pricingUC.Deactivate(r.Context(), model.ServiceID(service)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------- purchases ----------------

type purchaseInitiateRequest struct {
	UserID    string `json:"user_id"`
	PackageID string `json:"package_id"`
	PromoCode string `json:"promo_code,omitempty"`
}

type purchaseInitiateResponse struct {
	Purchase   *model.Purchase `json:"purchase"`
	PayURL     string          `json:"pay_url"`
	PaymentRef string          `json:"payment_ref"`
}

func (s *Server) purchaseInitiateHandler(w http.ResponseWriter, r *http.Request) {
	var req purchaseInitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	unlock, err := s.withUserLock(r, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer unlock()

	res, err := s.purchaseUC.Initiate(r.Context(), req.UserID, req.PackageID, req.PromoCode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, purchaseInitiateResponse{
		Purchase:   res.Purchase,
		PayURL:     res.PayURL,
		PaymentRef: res.PaymentRef,
	})
}

func (s *Server) purchaseGetHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.purchaseUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) purchaseConfirmHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.purchaseUC.Confirm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) purchaseCancelHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.purchaseUC.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) purchasesListHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit, offset := pageParams(r)
	list, err := s.purchaseUC.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// paymentCallbackHandler handles the provider redirect. Confirmation is
// idempotent, so a replayed callback is harmless.
func (s *Server) paymentCallbackHandler(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("reference")
	if ref == "" {
		http.Error(w, "missing reference", http.StatusBadRequest)
		return
	}

	p, err := s.purchaseUC.ConfirmByRef(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type refundRequest struct {
	Amount string `json:"amount,omitempty"` // empty or "0" = full refund
	Reason string `json:"reason"`
}

func (s *Server) refundHandler(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	amount := decimal.Zero
	if req.Amount != "" {
		var err error
		amount, err = decimal.NewFromString(req.Amount)
		if err != nil || amount.IsNegative() {
			http.Error(w, "invalid amount", http.StatusBadRequest)
			return
		}
	}

	p, err := s.purchaseUC.Refund(r.Context(), chi.URLParam(r, "id"), amount, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) revenueHandler(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "month"
	}
	total, err := s.purchaseUC.Revenue(r.Context(), period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"period": period,
		"total":  total.StringFixed(2),
	})
}

// ---------------- promo ----------------

type promoValidateRequest struct {
	Code      string `json:"code"`
	UserID    string `json:"user_id"`
	PackageID string `json:"package_id"`
	Subtotal  string `json:"subtotal"`
}

func (s *Server) promoValidateHandler(w http.ResponseWriter, r *http.Request) {
	var req promoValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	subtotal, err := decimal.NewFromString(req.Subtotal)
	if err != nil {
		http.Error(w, "invalid subtotal", http.StatusBadRequest)
		return
	}

	d, err := s.promoUC.Validate(r.Context(), req.Code, req.UserID, req.PackageID, subtotal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"code":     d.Code,
		"discount": d.Amount.StringFixed(2),
	})
}

// ---------------- subscriptions ----------------

type subscribeRequest struct {
	UserID    string `json:"user_id"`
	PackageID string `json:"package_id"`
}

func (s *Server) subscribeHandler(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sub, err := s.subUC.Subscribe(r.Context(), req.UserID, req.PackageID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) subscriptionGetHandler(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subUC.GetActive(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) subscriptionCancelHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.subUC.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) subscriptionPauseHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.subUC.Pause(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) subscriptionResumeHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.subUC.Resume(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------- admin points ----------------

type adminAdjustRequest struct {
	UserID  string `json:"user_id"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
	ActorID string `json:"actor_id"`
}

func (s *Server) adminCreditHandler(w http.ResponseWriter, r *http.Request) {
	var req adminAdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := s.pointsUC.AdminCredit(r.Context(), req.UserID, req.Amount, req.Reason, req.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) adminDebitHandler(w http.ResponseWriter, r *http.Request) {
	var req adminAdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := s.pointsUC.AdminDebit(r.Context(), req.UserID, req.Amount, req.Reason, req.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}
