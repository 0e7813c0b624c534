package sales

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ukydev/vehicle-marketplace/internal/db"
	"github.com/ukydev/vehicle-marketplace/internal/models"
)

// memVehicles is an in-memory db.VehicleCollection with the same
// compare-and-swap semantics as the MongoDB one.
type memVehicles struct {
	mu   sync.Mutex
	byID map[string]models.Vehicle
}

func newMemVehicles(vehicles ...models.Vehicle) *memVehicles {
	m := &memVehicles{byID: map[string]models.Vehicle{}}
	for _, v := range vehicles {
		m.byID[v.ID] = v
	}
	return m
}

func (m *memVehicles) get(id string) models.Vehicle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memVehicles) InsertVehicle(_ context.Context, v models.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[v.ID] = v
	return nil
}

func (m *memVehicles) FindVehicles(context.Context, models.VehicleFilter) ([]models.Vehicle, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Vehicle, 0, len(m.byID))
	for _, v := range m.byID {
		out = append(out, v)
	}
	return out, int64(len(out)), nil
}

func (m *memVehicles) FindVehicleByID(_ context.Context, id string) (*models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("vehicle %w", db.ErrNotFound)
	}
	return &v, nil
}

func (m *memVehicles) UpdateVehicle(_ context.Context, id string, v models.Vehicle) error {
	return m.cas(id, func(cur models.Vehicle) bool { return cur.Status != models.VehicleSold }, func(cur *models.Vehicle) {
		cur.Make, cur.Model, cur.Price = v.Make, v.Model, v.Price
	})
}

func (m *memVehicles) SetVehicleStatus(_ context.Context, id string, from []models.VehicleStatus, to models.VehicleStatus) error {
	return m.cas(id, func(cur models.Vehicle) bool {
		for _, s := range from {
			if cur.Status == s {
				return true
			}
		}
		return false
	}, func(cur *models.Vehicle) { cur.Status = to })
}

func (m *memVehicles) ReserveVehicle(_ context.Context, id, txnID string) error {
	return m.cas(id, func(cur models.Vehicle) bool { return cur.Status == models.VehicleAvailable }, func(cur *models.Vehicle) {
		cur.Status = models.VehicleReserved
		cur.ReservedBy = txnID
	})
}

func (m *memVehicles) ReleaseVehicle(_ context.Context, id, txnID string) error {
	return m.cas(id, reservedBy(txnID), func(cur *models.Vehicle) {
		cur.Status = models.VehicleAvailable
		cur.ReservedBy = ""
	})
}

func (m *memVehicles) MarkVehicleSold(_ context.Context, id, txnID string, soldAt time.Time) error {
	return m.cas(id, reservedBy(txnID), func(cur *models.Vehicle) {
		cur.Status = models.VehicleSold
		cur.SoldAt = &soldAt
	})
}

func (m *memVehicles) DeleteVehicle(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

func reservedBy(txnID string) func(models.Vehicle) bool {
	return func(cur models.Vehicle) bool {
		return cur.Status == models.VehicleReserved && cur.ReservedBy == txnID
	}
}

func (m *memVehicles) cas(id string, match func(models.Vehicle) bool, apply func(*models.Vehicle)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("vehicle %w", db.ErrNotFound)
	}
	if !match(cur) {
		return fmt.Errorf("vehicle %s: %w", id, db.ErrConflict)
	}
	apply(&cur)
	m.byID[id] = cur
	return nil
}

type memTransactions struct {
	mu   sync.Mutex
	byID map[string]models.Transaction
}

func newMemTransactions() *memTransactions {
	return &memTransactions{byID: map[string]models.Transaction{}}
}

func (m *memTransactions) get(id string) models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memTransactions) InsertTransaction(_ context.Context, txn models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[txn.ID] = txn
	return nil
}

func (m *memTransactions) FindTransactionByID(_ context.Context, id string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("transaction %w", db.ErrNotFound)
	}
	return &txn, nil
}

func (m *memTransactions) FindTransactions(_ context.Context, f db.TransactionFilter) ([]models.Transaction, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Transaction{}
	for _, txn := range m.byID {
		if f.UserID != "" && !txn.IsParticipant(f.UserID) {
			continue
		}
		if f.Status != "" && txn.Status != f.Status {
			continue
		}
		out = append(out, txn)
	}
	return out, int64(len(out)), nil
}

func (m *memTransactions) FindStalePending(_ context.Context, before time.Time, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Transaction{}
	for _, txn := range m.byID {
		if txn.Status == models.TransactionPending && txn.CreatedAt.Before(before) {
			out = append(out, txn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTransactions) TransitionTransaction(_ context.Context, id string, from []models.TransactionStatus, change db.TransactionChange) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("transaction %w", db.ErrNotFound)
	}
	matched := false
	for _, s := range from {
		matched = matched || txn.Status == s
	}
	if !matched {
		return nil, fmt.Errorf("transaction %s: %w", id, db.ErrConflict)
	}

	at := change.At
	txn.Status = change.To
	txn.UpdatedAt = at
	switch change.To {
	case models.TransactionProcessing:
		txn.ProcessedAt = &at
	case models.TransactionCompleted:
		txn.CompletedAt = &at
		txn.PaymentReference = change.PaymentReference
	case models.TransactionCancelled:
		txn.CancelledAt = &at
		txn.CancellationReason = change.CancellationReason
	}
	if change.CommissionAmount != nil {
		txn.CommissionAmount = *change.CommissionAmount
	}
	if change.NetAmount != nil {
		txn.NetAmount = *change.NetAmount
	}
	m.byID[id] = txn
	return &txn, nil
}

type memCommissions struct {
	mu   sync.Mutex
	list []models.Commission
}

func (m *memCommissions) all() []models.Commission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Commission(nil), m.list...)
}

func (m *memCommissions) InsertCommission(_ context.Context, c models.Commission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.list {
		if existing.TransactionID == c.TransactionID {
			return fmt.Errorf("commission: %w", db.ErrDuplicate)
		}
	}
	m.list = append(m.list, c)
	return nil
}

func (m *memCommissions) FindCommissionByTransaction(_ context.Context, txnID string) (*models.Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.list {
		if c.TransactionID == txnID {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("commission %w", db.ErrNotFound)
}

func (m *memCommissions) FindCommissions(context.Context, *bool) ([]models.Commission, error) {
	return m.all(), nil
}

func (m *memCommissions) MarkCommissionPaid(context.Context, string, time.Time) (*models.Commission, error) {
	return nil, fmt.Errorf("not implemented")
}

type memUsers map[string]models.User

func (m memUsers) FindUserByID(_ context.Context, id string) (*models.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("user %w", db.ErrNotFound)
	}
	return &u, nil
}

type staticRules []models.CommissionRule

func (r staticRules) FindActiveRules(context.Context) ([]models.CommissionRule, error) {
	return r, nil
}

type countingTx struct {
	mu     sync.Mutex
	calls  int
	active int
}

func (c *countingTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	c.mu.Lock()
	c.calls++
	c.active++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.active--
		c.mu.Unlock()
	}()
	return fn(ctx)
}

func (c *countingTx) inTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active > 0
}

// evictingVehicles records evictions made outside any unit of work.
type evictingVehicles struct {
	*memVehicles
	tx *countingTx

	mu        sync.Mutex
	committed []string
}

func (e *evictingVehicles) Evict(_ context.Context, id string) {
	if e.tx.inTransaction() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.committed = append(e.committed, id)
}

func (e *evictingVehicles) evictions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.committed...)
}

type failingUsers struct {
	err error
}

func (f failingUsers) FindUserByID(context.Context, string) (*models.User, error) {
	return nil, f.err
}

type recordedEvent struct {
	topic   string
	payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{topic: topic, payload: payload})
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.topic
	}
	return out
}
