package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/storeseo/pointsledger/internal/domain"
	"github.com/storeseo/pointsledger/internal/domain/model"
	"github.com/storeseo/pointsledger/internal/domain/ports/adapter"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
	"github.com/storeseo/pointsledger/internal/infra/metrics"
)

// gatewayTimeout bounds every call to the external payment provider. On
// timeout the purchase stays pending and the caller retries or polls.
const gatewayTimeout = 15 * time.Second

// InitiateResult is what checkout initiation hands back to the client.
type InitiateResult struct {
	Purchase   *model.Purchase
	PayURL     string
	PaymentRef string
}

// PurchaseUseCase coordinates the purchase lifecycle:
// pending -> completed | failed | cancelled; completed -> refunded.
// Points are never granted before the gateway confirms settlement.
type PurchaseUseCase interface {
	Initiate(ctx context.Context, userID, packageID, promoCode string) (*InitiateResult, error)

	// Confirm verifies settlement with the gateway (authoritative, not a
	// webhook claim) and credits points exactly once. Idempotent under
	// at-least-once delivery.
	Confirm(ctx context.Context, purchaseID string) (*model.Purchase, error)

	// ConfirmByRef resolves the purchase from the provider reference; used by
	// the payment callback.
	ConfirmByRef(ctx context.Context, paymentRef string) (*model.Purchase, error)

	// Refund reverses a completed purchase. amount zero means full refund.
	// Concurrent requests race for the refunding claim, so the gateway sees
	// at most one refund per purchase. The point clawback is capped at the
	// current balance; any shortfall is recorded in the reversal
	// transaction's metadata, never dropped.
	Refund(ctx context.Context, purchaseID string, amount decimal.Decimal, reason string) (*model.Purchase, error)

	// Cancel abandons a pending purchase.
	Cancel(ctx context.Context, purchaseID string) (*model.Purchase, error)

	Get(ctx context.Context, purchaseID string) (*model.Purchase, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Purchase, error)
	Revenue(ctx context.Context, period string) (decimal.Decimal, error)
}

var _ PurchaseUseCase = (*purchaseUC)(nil)

type purchaseUC struct {
	purchases repository.PurchaseRepository
	packages  repository.PackageRepository
	ledger    repository.LedgerRepository
	points    PointsUseCase
	promo     PromoUseCase
	gateway   adapter.PaymentGateway
	tx        repository.TransactionManager
	vatRate   decimal.Decimal // e.g. 0.20 for 20%
	currency  string
	callback  string
	log       *zerolog.Logger
	now       func() time.Time
}

func NewPurchaseUseCase(
	purchases repository.PurchaseRepository,
	packages repository.PackageRepository,
	ledger repository.LedgerRepository,
	points PointsUseCase,
	promo PromoUseCase,
	gateway adapter.PaymentGateway,
	tx repository.TransactionManager,
	vatRate decimal.Decimal,
	currency string,
	callbackURL string,
	logger *zerolog.Logger,
) *purchaseUC {
	return &purchaseUC{
		purchases: purchases,
		packages:  packages,
		ledger:    ledger,
		points:    points,
		promo:     promo,
		gateway:   gateway,
		tx:        tx,
		vatRate:   vatRate,
		currency:  currency,
		callback:  callbackURL,
		log:       logger,
		now:       time.Now,
	}
}

func (u *purchaseUC) Initiate(ctx context.Context, userID, packageID, promoCode string) (*InitiateResult, error) {
	if userID == "" || packageID == "" {
		return nil, domain.ErrInvalidArgument
	}
	pkg, err := u.packages.FindByID(ctx, repository.NoTX, packageID)
	if err != nil {
		return nil, err
	}
	if !pkg.Active {
		return nil, domain.ErrNotFound
	}

	subtotal := pkg.Price
	discount := decimal.Zero
	var promoPtr *string
	if promoCode != "" {
		d, err := u.promo.Validate(ctx, promoCode, userID, packageID, subtotal)
		if err != nil {
			return nil, err
		}
		discount = d.Amount
		promoPtr = &d.Code
	}
	net := subtotal.Sub(discount)
	vat := net.Mul(u.vatRate).Round(2)
	total := net.Add(vat).Round(2)

	now := u.now()
	p := &model.Purchase{
		ID:        uuid.NewString(),
		UserID:    userID,
		PackageID: pkg.ID,
		Points:    pkg.Points,
		Price:     subtotal,
		Discount:  discount,
		VAT:       vat,
		Total:     total,
		Currency:  u.currency,
		PromoCode: promoPtr,
		Status:    model.PurchaseStatusPending,
		Meta:      map[string]interface{}{"package_name": pkg.Name},
		CreatedAt: now,
		UpdatedAt: now,
	}

	gctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()
	ref, payURL, err := u.gateway.CreatePayment(gctx, total, u.currency,
		"points package "+pkg.Name, u.callback, map[string]interface{}{"purchase_id": p.ID})
	if err != nil {
		return nil, &domain.PaymentGatewayError{Op: "create", Err: err}
	}
	p.PaymentRef = ref
	if err := u.purchases.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	metrics.IncPurchase(string(model.PurchaseStatusPending))
	u.log.Info().Str("purchase_id", p.ID).Str("user_id", userID).
		Str("package_id", pkg.ID).Str("total", total.String()).Msg("purchase initiated")
	return &InitiateResult{Purchase: p, PayURL: payURL, PaymentRef: ref}, nil
}

func (u *purchaseUC) Confirm(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	p, err := u.purchases.FindByID(ctx, repository.NoTX, purchaseID)
	if err != nil {
		return nil, err
	}
	return u.confirm(ctx, p)
}

func (u *purchaseUC) ConfirmByRef(ctx context.Context, paymentRef string) (*model.Purchase, error) {
	p, err := u.purchases.FindByPaymentRef(ctx, repository.NoTX, paymentRef)
	if err != nil {
		return nil, err
	}
	return u.confirm(ctx, p)
}

func (u *purchaseUC) confirm(ctx context.Context, p *model.Purchase) (*model.Purchase, error) {
	switch p.Status {
	case model.PurchaseStatusCompleted, model.PurchaseStatusRefunding, model.PurchaseStatusRefunded:
		// duplicate confirmation: no-op, no double credit
		return p, nil
	case model.PurchaseStatusFailed, model.PurchaseStatusCancelled:
		return nil, domain.ErrInvalidTransition
	case model.PurchaseStatusPending:
	}

	gctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()
	ok, gatewayTx, err := u.gateway.VerifyPayment(gctx, p.PaymentRef, p.Total, p.Currency)
	if err != nil {
		// transport failure: stays pending, caller retries
		return nil, &domain.PaymentGatewayError{Op: "verify", Err: err}
	}
	now := u.now()
	if !ok {
		won, err := u.purchases.UpdateStatus(ctx, repository.NoTX, p.ID,
			model.PurchaseStatusPending, model.PurchaseStatusFailed, "", now)
		if err != nil {
			return nil, err
		}
		if !won {
			// a concurrent confirmation moved the purchase first; report what
			// it settled on instead of a stale failure
			cur, err := u.purchases.FindByID(ctx, repository.NoTX, p.ID)
			if err != nil {
				return nil, err
			}
			switch cur.Status {
			case model.PurchaseStatusFailed:
				return cur, domain.ErrPaymentFailed
			case model.PurchaseStatusCancelled:
				return nil, domain.ErrInvalidTransition
			}
			return cur, nil
		}
		p.Status = model.PurchaseStatusFailed
		metrics.IncPurchase(string(model.PurchaseStatusFailed))
		return p, domain.ErrPaymentFailed
	}

	var won bool
	err = u.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
		var err error
		won, err = u.purchases.UpdateStatus(ctx, qx, p.ID,
			model.PurchaseStatusPending, model.PurchaseStatusCompleted, gatewayTx, now)
		if err != nil {
			return err
		}
		if !won {
			// a concurrent confirmation already completed it
			return nil
		}
		if _, err := u.points.GrantIn(ctx, qx, p.UserID, p.Points,
			model.TransactionKindPurchase, "purchase", p.ID,
			"purchase completed", map[string]interface{}{"payment_ref": p.PaymentRef, "gateway_tx": gatewayTx}); err != nil {
			return err
		}
		if p.PromoCode != nil {
			if err := u.promo.Apply(ctx, qx, *p.PromoCode, p.UserID, p.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.Status = model.PurchaseStatusCompleted
	p.GatewayTx = gatewayTx
	p.PaidAt = &now
	if won {
		metrics.IncPurchase(string(model.PurchaseStatusCompleted))
		metrics.AddRevenue(p.Currency, p.Total)
		u.log.Info().Str("purchase_id", p.ID).Str("user_id", p.UserID).
			Int64("points", p.Points).Msg("purchase completed")
	}
	return p, nil
}

func (u *purchaseUC) Refund(ctx context.Context, purchaseID string, amount decimal.Decimal, reason string) (*model.Purchase, error) {
	p, err := u.purchases.FindByID(ctx, repository.NoTX, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.Status == model.PurchaseStatusRefunded {
		return p, nil
	}
	if p.Status == model.PurchaseStatusRefunding {
		return nil, domain.ErrConcurrencyConflict
	}
	if p.Status != model.PurchaseStatusCompleted {
		return nil, domain.ErrInvalidTransition
	}
	if amount.IsZero() {
		amount = p.Total
	}
	if amount.IsNegative() || amount.GreaterThan(p.Total) {
		return nil, domain.ErrInvalidAmount
	}

	// Claim the refund before touching the provider. Only the caller that
	// wins completed -> refunding may fire the monetary refund, so duplicate
	// requests never reach the gateway twice.
	now := u.now()
	won, err := u.purchases.UpdateStatus(ctx, repository.NoTX, p.ID,
		model.PurchaseStatusCompleted, model.PurchaseStatusRefunding, "", now)
	if err != nil {
		return nil, err
	}
	if !won {
		cur, err := u.purchases.FindByID(ctx, repository.NoTX, p.ID)
		if err != nil {
			return nil, err
		}
		if cur.Status == model.PurchaseStatusRefunded {
			return cur, nil
		}
		if cur.Status == model.PurchaseStatusRefunding {
			return nil, domain.ErrConcurrencyConflict
		}
		return nil, domain.ErrInvalidTransition
	}

	gctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()
	refundID, err := u.gateway.RefundPayment(gctx, p.PaymentRef, amount, p.Currency, reason)
	if err != nil {
		// hand the purchase back so a later attempt can claim it again
		if _, rerr := u.purchases.UpdateStatus(ctx, repository.NoTX, p.ID,
			model.PurchaseStatusRefunding, model.PurchaseStatusCompleted, "", u.now()); rerr != nil {
			u.log.Error().Err(rerr).Str("purchase_id", p.ID).Msg("refund claim revert failed")
		}
		return nil, &domain.PaymentGatewayError{Op: "refund", Err: err}
	}

	// Points to reverse: proportional to the monetary share refunded.
	requested := p.Points
	if !amount.Equal(p.Total) && p.Total.IsPositive() {
		requested = decimal.NewFromInt(p.Points).Mul(amount).Div(p.Total).IntPart()
	}

	now = u.now()
	err = u.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
		if _, err := u.purchases.UpdateStatus(ctx, qx, p.ID,
			model.PurchaseStatusRefunding, model.PurchaseStatusRefunded, refundID, now); err != nil {
			return err
		}
		acct, err := u.ledger.CreateIfAbsent(ctx, qx, p.UserID)
		if err != nil {
			return err
		}
		// Monetary refund already went through; the point clawback is capped
		// at whatever is still unspent. The shortfall is recorded, not
		// silently dropped.
		clawback := requested
		if clawback > acct.Balance {
			clawback = acct.Balance
		}
		_, err = u.ledger.Append(ctx, qx, p.UserID, repository.LedgerEntry{
			Kind:        model.TransactionKindRefund,
			Amount:      -clawback,
			RefKind:     "purchase",
			RefID:       p.ID,
			Description: "refund: " + reason,
			Meta: map[string]interface{}{
				"refund_id":        refundID,
				"refund_amount":    amount.String(),
				"requested_points": requested,
				"clawed_back":      clawback,
				"shortfall_points": requested - clawback,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	p.Status = model.PurchaseStatusRefunded
	p.RefundedAt = &now
	metrics.IncRefund(p.Currency)
	u.log.Info().Str("purchase_id", p.ID).Str("user_id", p.UserID).
		Str("amount", amount.String()).Str("reason", reason).Msg("purchase refunded")
	return p, nil
}

func (u *purchaseUC) Cancel(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	p, err := u.purchases.FindByID(ctx, repository.NoTX, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.Status == model.PurchaseStatusCancelled {
		return p, nil
	}
	won, err := u.purchases.UpdateStatus(ctx, repository.NoTX, p.ID,
		model.PurchaseStatusPending, model.PurchaseStatusCancelled, "", u.now())
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, domain.ErrInvalidTransition
	}
	p.Status = model.PurchaseStatusCancelled
	metrics.IncPurchase(string(model.PurchaseStatusCancelled))
	return p, nil
}

func (u *purchaseUC) Get(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	return u.purchases.FindByID(ctx, repository.NoTX, purchaseID)
}

func (u *purchaseUC) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Purchase, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return u.purchases.ListByUser(ctx, repository.NoTX, userID, limit, offset)
}

func (u *purchaseUC) Revenue(ctx context.Context, period string) (decimal.Decimal, error) {
	switch period {
	case "day", "week", "month", "year":
	default:
		return decimal.Zero, domain.ErrInvalidArgument
	}
	return u.purchases.SumRevenueByPeriod(ctx, repository.NoTX, period)
}
