// Package sales implements the purchase offer lifecycle.
package sales

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-marketplace/internal/commission"
	"github.com/ukydev/vehicle-marketplace/internal/db"
	"github.com/ukydev/vehicle-marketplace/internal/events"
	"github.com/ukydev/vehicle-marketplace/internal/models"
)

var (
	ErrInvalidState = errors.New("invalid transaction state")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
)

// ExpiredReason is stored on offers cancelled by the sweep.
const ExpiredReason = "offer expired"

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   string
	Role models.Role
}

// System acts on behalf of the platform, e.g. in scheduled jobs.
var System = Actor{ID: "system", Role: models.RoleAdmin}

// IsAdmin reports whether the actor has administrative rights.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// Quoter computes the commission for a sale.
type Quoter interface {
	Resolve(ctx context.Context, price decimal.Decimal, role *models.Role) (commission.Breakdown, error)
}

// UserLookup finds accounts.
type UserLookup interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Vehicles     db.VehicleCollection
	Transactions db.TransactionCollection
	Commissions  db.CommissionCollection
	Users        UserLookup
	Quoter       Quoter
	Tx           db.TxRunner
	Events       events.Publisher
	Now          func() time.Time
	Rand         *rand.Rand
}

// ListingEvicter is implemented by listing caches. Writes made inside a
// database transaction are only visible after commit, so the listing is
// evicted again once the unit of work returns.
type ListingEvicter interface {
	Evict(ctx context.Context, id string)
}

// Service runs the transaction lifecycle.
type Service struct {
	vehicles     db.VehicleCollection
	transactions db.TransactionCollection
	commissions  db.CommissionCollection
	users        UserLookup
	quoter       Quoter
	tx           db.TxRunner
	events       events.Publisher
	now          func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewService builds a Service. Missing clock, random source, tx runner and
// publisher get working defaults.
func NewService(d Deps) *Service {
	s := &Service{
		vehicles:     d.Vehicles,
		transactions: d.Transactions,
		commissions:  d.Commissions,
		users:        d.Users,
		quoter:       d.Quoter,
		tx:           d.Tx,
		events:       d.Events,
		now:          d.Now,
		rng:          d.Rand,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.tx == nil {
		s.tx = &db.MongoTxRunner{}
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	return s
}

// OfferRequest is a buyer's offer on a listing. A nil Price offers the
// listing price.
type OfferRequest struct {
	VehicleID string           `json:"vehicle_id"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Notes     string           `json:"notes,omitempty"`
}

// Quote previews the commission for a price and seller role.
func (s *Service) Quote(ctx context.Context, price decimal.Decimal, role *models.Role) (commission.Breakdown, error) {
	return s.quoter.Resolve(ctx, price, role)
}

// CreateOffer reserves the listing and opens a pending transaction.
func (s *Service) CreateOffer(ctx context.Context, actor Actor, req OfferRequest) (*models.Transaction, error) {
	if !models.RoleHasPermission(actor.Role, models.ActionMakeOffer) {
		return nil, fmt.Errorf("%w: role %s cannot make offers", ErrForbidden, actor.Role)
	}
	if req.VehicleID == "" {
		return nil, fmt.Errorf("%w: vehicle_id is required", ErrValidation)
	}

	vehicle, err := s.vehicles.FindVehicleByID(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}
	if vehicle.SellerID == actor.ID {
		return nil, fmt.Errorf("%w: cannot make an offer on your own listing", ErrValidation)
	}
	if vehicle.Status != models.VehicleAvailable {
		return nil, fmt.Errorf("%w: vehicle is %s", ErrInvalidState, vehicle.Status)
	}

	price := vehicle.Price
	if req.Price != nil {
		price = *req.Price
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: offer price must be positive", ErrValidation)
	}

	role, err := s.sellerRole(ctx, vehicle.SellerID)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.quoter.Resolve(ctx, price, role)
	if err != nil {
		return nil, err
	}

	now := s.now()
	txn := models.Transaction{
		ID:                uuid.NewString(),
		TransactionNumber: s.transactionNumber(now),
		VehicleID:         vehicle.ID,
		BuyerID:           actor.ID,
		SellerID:          vehicle.SellerID,
		Price:             price,
		CommissionAmount:  breakdown.Amount,
		NetAmount:         breakdown.Net(price),
		Status:            models.TransactionPending,
		Notes:             req.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.vehicles.ReserveVehicle(ctx, vehicle.ID, txn.ID); err != nil {
			return stateError(err, "vehicle is no longer available")
		}
		return s.transactions.InsertTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, vehicle.ID)

	log.WithFields(log.Fields{
		"transaction_id":     txn.ID,
		"transaction_number": txn.TransactionNumber,
		"vehicle_id":         txn.VehicleID,
		"buyer_id":           txn.BuyerID,
	}).Info("Offer created")
	s.publish(ctx, &txn)
	return &txn, nil
}

// Process moves a pending transaction to processing.
func (s *Service) Process(ctx context.Context, actor Actor, id string) (*models.Transaction, error) {
	txn, err := s.transactions.FindTransactionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != txn.SellerID {
		return nil, fmt.Errorf("%w: only the seller can process a transaction", ErrForbidden)
	}
	if !txn.CanBeProcessed() {
		return nil, fmt.Errorf("%w: cannot process a %s transaction", ErrInvalidState, txn.Status)
	}

	updated, err := s.transactions.TransitionTransaction(ctx, id,
		[]models.TransactionStatus{models.TransactionPending},
		db.TransactionChange{To: models.TransactionProcessing, At: s.now()})
	if err != nil {
		return nil, stateError(err, "transaction changed concurrently")
	}

	log.WithField("transaction_id", id).Info("Transaction processing")
	s.publish(ctx, updated)
	return updated, nil
}

// Complete finalizes a processing transaction, marks the listing sold and
// records the commission.
func (s *Service) Complete(ctx context.Context, actor Actor, id, paymentReference string) (*models.Transaction, error) {
	txn, err := s.transactions.FindTransactionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != txn.SellerID {
		return nil, fmt.Errorf("%w: only the seller can complete a transaction", ErrForbidden)
	}
	if !txn.CanBeCompleted() {
		return nil, fmt.Errorf("%w: cannot complete a %s transaction", ErrInvalidState, txn.Status)
	}

	role, err := s.sellerRole(ctx, txn.SellerID)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.quoter.Resolve(ctx, txn.Price, role)
	if err != nil {
		return nil, err
	}
	amount := breakdown.Amount
	net := breakdown.Net(txn.Price)
	now := s.now()

	var updated *models.Transaction
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.transactions.TransitionTransaction(ctx, id,
			[]models.TransactionStatus{models.TransactionProcessing},
			db.TransactionChange{
				To:               models.TransactionCompleted,
				At:               now,
				PaymentReference: paymentReference,
				CommissionAmount: &amount,
				NetAmount:        &net,
			})
		if err != nil {
			return stateError(err, "transaction changed concurrently")
		}

		if err := s.vehicles.MarkVehicleSold(ctx, txn.VehicleID, id, now); err != nil {
			return stateError(err, "vehicle is not reserved by this transaction")
		}

		return s.commissions.InsertCommission(ctx, models.Commission{
			ID:            uuid.NewString(),
			TransactionID: id,
			RuleID:        breakdown.RuleID,
			Amount:        breakdown.Amount,
			Percentage:    breakdown.Percentage,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, txn.VehicleID)

	log.WithFields(log.Fields{
		"transaction_id": id,
		"vehicle_id":     txn.VehicleID,
		"commission":     amount.String(),
	}).Info("Transaction completed")
	s.publish(ctx, updated)
	return updated, nil
}

// Cancel cancels an open transaction and releases its listing.
func (s *Service) Cancel(ctx context.Context, actor Actor, id, reason string) (*models.Transaction, error) {
	txn, err := s.transactions.FindTransactionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !txn.IsParticipant(actor.ID) {
		return nil, fmt.Errorf("%w: not a participant of this transaction", ErrForbidden)
	}
	if !txn.CanBeCancelled() {
		return nil, fmt.Errorf("%w: cannot cancel a %s transaction", ErrInvalidState, txn.Status)
	}

	now := s.now()
	var updated *models.Transaction
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.transactions.TransitionTransaction(ctx, id,
			[]models.TransactionStatus{models.TransactionPending, models.TransactionProcessing},
			db.TransactionChange{To: models.TransactionCancelled, At: now, CancellationReason: reason})
		if err != nil {
			return stateError(err, "transaction changed concurrently")
		}

		err = s.vehicles.ReleaseVehicle(ctx, txn.VehicleID, id)
		if errors.Is(err, db.ErrConflict) || errors.Is(err, db.ErrNotFound) {
			// The listing is no longer held by this transaction.
			log.WithFields(log.Fields{
				"transaction_id": id,
				"vehicle_id":     txn.VehicleID,
			}).Warn("Cancelled transaction did not hold its vehicle")
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, txn.VehicleID)

	log.WithFields(log.Fields{
		"transaction_id": id,
		"actor":          actor.ID,
	}).Info("Transaction cancelled")
	s.publish(ctx, updated)
	return updated, nil
}

// Get returns a transaction visible to actor.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (*models.Transaction, error) {
	txn, err := s.transactions.FindTransactionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !txn.IsParticipant(actor.ID) {
		return nil, fmt.Errorf("%w: not a participant of this transaction", ErrForbidden)
	}
	return txn, nil
}

// List returns the actor's transactions. Admins see all of them.
func (s *Service) List(ctx context.Context, actor Actor, filter db.TransactionFilter) ([]models.Transaction, int64, error) {
	if filter.Status != "" && !models.IsValidTransactionStatus(filter.Status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	if !actor.IsAdmin() {
		filter.UserID = actor.ID
	}
	return s.transactions.FindTransactions(ctx, filter)
}

// SweepExpiredOffers cancels pending offers older than maxAge and returns how
// many were cancelled.
func (s *Service) SweepExpiredOffers(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	stale, err := s.transactions.FindStalePending(ctx, cutoff, 100)
	if err != nil {
		return 0, fmt.Errorf("failed to find stale offers: %w", err)
	}

	cancelled := 0
	for _, txn := range stale {
		if ctx.Err() != nil {
			return cancelled, ctx.Err()
		}
		_, err := s.Cancel(ctx, System, txn.ID, ExpiredReason)
		switch {
		case err == nil:
			cancelled++
		case errors.Is(err, ErrInvalidState):
			// Moved on since the query.
		default:
			log.WithError(err).WithField("transaction_id", txn.ID).Error("Failed to expire offer")
		}
	}
	return cancelled, nil
}

// sellerRole returns nil for a seller that no longer exists. Any other lookup
// failure is returned so a fee is never resolved against the wrong rules.
func (s *Service) sellerRole(ctx context.Context, sellerID string) (*models.Role, error) {
	if s.users == nil {
		return nil, nil
	}
	seller, err := s.users.FindUserByID(ctx, sellerID)
	if errors.Is(err, db.ErrNotFound) {
		log.WithField("seller_id", sellerID).Warn("Seller not found, resolving commission without role")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up seller: %w", err)
	}
	role := seller.Role
	return &role, nil
}

func (s *Service) transactionNumber(now time.Time) string {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return models.NewTransactionNumber(now, s.rng)
}

func (s *Service) committed(ctx context.Context, vehicleID string) {
	if evicter, ok := s.vehicles.(ListingEvicter); ok {
		evicter.Evict(ctx, vehicleID)
	}
}

func (s *Service) publish(ctx context.Context, txn *models.Transaction) {
	s.events.Publish(ctx, events.TransactionTopic(txn.Status), txn)
}

// stateError maps a lost compare-and-swap to ErrInvalidState.
func stateError(err error, msg string) error {
	if errors.Is(err, db.ErrConflict) {
		return fmt.Errorf("%w: %s", ErrInvalidState, msg)
	}
	return err
}
