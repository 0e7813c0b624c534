package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/vehicle-marketplace/internal/commission"
	"github.com/ukydev/vehicle-marketplace/internal/db"
	"github.com/ukydev/vehicle-marketplace/internal/middleware"
	"github.com/ukydev/vehicle-marketplace/internal/models"
	"github.com/ukydev/vehicle-marketplace/internal/sales"
)

// MockUserCollection is a mock implementation of UserCollection
type MockUserCollection struct {
	mock.Mock
}

func (m *MockUserCollection) InsertUser(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUsers(ctx context.Context, role models.Role) ([]models.User, error) {
	args := m.Called(ctx, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserCollection) UpdateUser(ctx context.Context, id string, user models.User) error {
	args := m.Called(ctx, id, user)
	return args.Error(0)
}

func (m *MockUserCollection) SetUserActive(ctx context.Context, id string, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

func (m *MockUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockVehicleCollection is a mock implementation of VehicleCollection
type MockVehicleCollection struct {
	mock.Mock
}

func (m *MockVehicleCollection) InsertVehicle(ctx context.Context, vehicle models.Vehicle) error {
	return m.Called(ctx, vehicle).Error(0)
}

func (m *MockVehicleCollection) FindVehicles(ctx context.Context, filter models.VehicleFilter) ([]models.Vehicle, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Vehicle), args.Get(1).(int64), args.Error(2)
}

func (m *MockVehicleCollection) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Vehicle), args.Error(1)
}

func (m *MockVehicleCollection) UpdateVehicle(ctx context.Context, id string, vehicle models.Vehicle) error {
	return m.Called(ctx, id, vehicle).Error(0)
}

func (m *MockVehicleCollection) SetVehicleStatus(ctx context.Context, id string, from []models.VehicleStatus, to models.VehicleStatus) error {
	return m.Called(ctx, id, from, to).Error(0)
}

func (m *MockVehicleCollection) ReserveVehicle(ctx context.Context, id, transactionID string) error {
	return m.Called(ctx, id, transactionID).Error(0)
}

func (m *MockVehicleCollection) ReleaseVehicle(ctx context.Context, id, transactionID string) error {
	return m.Called(ctx, id, transactionID).Error(0)
}

func (m *MockVehicleCollection) MarkVehicleSold(ctx context.Context, id, transactionID string, soldAt time.Time) error {
	return m.Called(ctx, id, transactionID, soldAt).Error(0)
}

func (m *MockVehicleCollection) DeleteVehicle(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// MockSalesService is a mock implementation of SalesService
type MockSalesService struct {
	mock.Mock
}

func (m *MockSalesService) txn(args mock.Arguments) (*models.Transaction, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockSalesService) CreateOffer(ctx context.Context, actor sales.Actor, req sales.OfferRequest) (*models.Transaction, error) {
	return m.txn(m.Called(ctx, actor, req))
}

func (m *MockSalesService) Process(ctx context.Context, actor sales.Actor, id string) (*models.Transaction, error) {
	return m.txn(m.Called(ctx, actor, id))
}

func (m *MockSalesService) Complete(ctx context.Context, actor sales.Actor, id, paymentReference string) (*models.Transaction, error) {
	return m.txn(m.Called(ctx, actor, id, paymentReference))
}

func (m *MockSalesService) Cancel(ctx context.Context, actor sales.Actor, id, reason string) (*models.Transaction, error) {
	return m.txn(m.Called(ctx, actor, id, reason))
}

func (m *MockSalesService) Get(ctx context.Context, actor sales.Actor, id string) (*models.Transaction, error) {
	return m.txn(m.Called(ctx, actor, id))
}

func (m *MockSalesService) List(ctx context.Context, actor sales.Actor, filter db.TransactionFilter) ([]models.Transaction, int64, error) {
	args := m.Called(ctx, actor, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Transaction), args.Get(1).(int64), args.Error(2)
}

// MockMessagingService is a mock implementation of MessagingService
type MockMessagingService struct {
	mock.Mock
}

func (m *MockMessagingService) Start(ctx context.Context, userID, vehicleID, body string) (*models.Conversation, error) {
	args := m.Called(ctx, userID, vehicleID, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockMessagingService) Send(ctx context.Context, senderID, conversationID, body string) (*models.Message, error) {
	args := m.Called(ctx, senderID, conversationID, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessagingService) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *MockMessagingService) History(ctx context.Context, userID, conversationID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, userID, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockMessagingService) Unread(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

// MockRuleCollection is a mock implementation of CommissionRuleCollection
type MockRuleCollection struct {
	mock.Mock
}

func (m *MockRuleCollection) InsertRule(ctx context.Context, rule models.CommissionRule) error {
	return m.Called(ctx, rule).Error(0)
}

func (m *MockRuleCollection) FindRuleByID(ctx context.Context, id string) (*models.CommissionRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CommissionRule), args.Error(1)
}

func (m *MockRuleCollection) FindRules(ctx context.Context) ([]models.CommissionRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CommissionRule), args.Error(1)
}

func (m *MockRuleCollection) FindActiveRules(ctx context.Context) ([]models.CommissionRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CommissionRule), args.Error(1)
}

func (m *MockRuleCollection) UpdateRule(ctx context.Context, id string, rule models.CommissionRule) error {
	return m.Called(ctx, id, rule).Error(0)
}

func (m *MockRuleCollection) DeleteRule(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// MockCommissionCollection is a mock implementation of CommissionCollection
type MockCommissionCollection struct {
	mock.Mock
}

func (m *MockCommissionCollection) InsertCommission(ctx context.Context, c models.Commission) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockCommissionCollection) FindCommissionByTransaction(ctx context.Context, transactionID string) (*models.Commission, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Commission), args.Error(1)
}

func (m *MockCommissionCollection) FindCommissions(ctx context.Context, paid *bool) ([]models.Commission, error) {
	args := m.Called(ctx, paid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Commission), args.Error(1)
}

func (m *MockCommissionCollection) MarkCommissionPaid(ctx context.Context, id string, paidAt time.Time) (*models.Commission, error) {
	args := m.Called(ctx, id, paidAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Commission), args.Error(1)
}

// MockQuoter is a mock implementation of sales.Quoter
type MockQuoter struct {
	mock.Mock
}

func (m *MockQuoter) Resolve(ctx context.Context, price decimal.Decimal, role *models.Role) (commission.Breakdown, error) {
	args := m.Called(ctx, price, role)
	return args.Get(0).(commission.Breakdown), args.Error(1)
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()
	if payload == nil {
		return httptest.NewRequest(method, target, nil)
	}
	if raw, ok := payload.(string); ok {
		return httptest.NewRequest(method, target, bytes.NewBufferString(raw))
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return httptest.NewRequest(method, target, bytes.NewBuffer(body))
}

// asUser attaches authenticated claims to the request.
func asUser(r *http.Request, id string, role models.Role) *http.Request {
	claims := &models.Claims{UserID: id, Username: id, Role: role}
	return r.WithContext(middleware.WithUser(r.Context(), claims))
}

// withParam sets a chi URL parameter on the request.
func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}
