package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/vehicle-marketplace/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// testDatabase returns a fresh database on MONGO_URI or skips the test.
func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" || uri == "uri" {
		t.Skip("MONGO_URI not set or invalid, skipping integration test")
	}
	client, err := ConnectMongo(uri)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	d := client.Database("test_marketplace_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = d.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return d
}

func TestConnectMongo_BadURI(t *testing.T) {
	client, err := ConnectMongo("mongodb://bad:uri")
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil, "vehicle"))

	err := mapError(mongo.ErrNoDocuments, "vehicle")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "vehicle not found", err.Error())

	other := errors.New("boom")
	assert.Equal(t, other, mapError(other, "vehicle"))
}

type priced struct {
	Price decimal.Decimal  `bson:"price"`
	Cap   *decimal.Decimal `bson:"cap,omitempty"`
}

func TestRuleOrder_EndsOnID(t *testing.T) {
	assert.Equal(t, bson.D{
		{Key: "priority", Value: -1},
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	}, ruleOrder)
}

func TestDecimalCodec_RoundTrip(t *testing.T) {
	reg := NewRegistry()
	ceiling := decimal.RequireFromString("99999.99")
	in := priced{Price: decimal.RequireFromString("20000.55"), Cap: &ceiling}

	raw, err := bson.MarshalWithRegistry(reg, in)
	require.NoError(t, err)

	var asDoc bson.M
	require.NoError(t, bson.Unmarshal(raw, &asDoc))
	_, isDecimal := asDoc["price"].(primitive.Decimal128)
	assert.True(t, isDecimal, "price should be stored as Decimal128")

	var out priced
	require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &out))
	assert.True(t, in.Price.Equal(out.Price))
	require.NotNil(t, out.Cap)
	assert.True(t, ceiling.Equal(*out.Cap))
}

func TestDecimalCodec_DecodesLegacyNumbers(t *testing.T) {
	reg := NewRegistry()
	cases := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"double", 12.5, "12.5"},
		{"int32", int32(7), "7"},
		{"int64", int64(20000), "20000"},
		{"string", "300.10", "300.1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := bson.Marshal(bson.M{"price": tc.value})
			require.NoError(t, err)

			var out priced
			require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &out))
			assert.True(t, decimal.RequireFromString(tc.want).Equal(out.Price), "got %s", out.Price)
		})
	}
}

func TestMongoTxRunner_DisabledRunsDirectly(t *testing.T) {
	called := false
	runner := &MongoTxRunner{Enabled: false}
	err := runner.WithTransaction(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)

	want := errors.New("fail")
	var nilRunner *MongoTxRunner
	assert.Equal(t, want, nilRunner.WithTransaction(context.Background(), func(context.Context) error { return want }))
}

func TestEnsureIndexes_Integration(t *testing.T) {
	d := testDatabase(t)
	ctx := context.Background()
	require.NoError(t, EnsureIndexes(ctx, d))

	users := &MongoUserCollection{Collection: d.Collection(UsersCollection)}
	require.NoError(t, users.InsertUser(ctx, models.User{Username: "dup", Email: "a@example.com"}))
	err := users.InsertUser(ctx, models.User{Username: "dup", Email: "b@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestNewStore_WiresCollections(t *testing.T) {
	d := testDatabase(t)
	store := NewStore(d.Client(), d.Name(), false)
	assert.Equal(t, VehiclesCollection, store.Vehicles.Collection.Name())
	assert.Equal(t, MessagesCollection, store.Messages.Collection.Name())
	assert.False(t, store.Tx.Enabled)

	called := false
	require.NoError(t, store.Tx.WithTransaction(context.Background(), func(context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)
}

func TestCommissionCollections_Integration(t *testing.T) {
	d := testDatabase(t)
	ctx := context.Background()
	rules := &MongoCommissionRuleCollection{Collection: d.Collection(CommissionRulesCollection)}
	commissions := &MongoCommissionCollection{Collection: d.Collection(CommissionsCollection)}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, r := range []models.CommissionRule{
		{ID: "low", Name: "low", Type: models.CommissionPercentage, Value: decimal.NewFromInt(2), Priority: 1, IsActive: true, CreatedAt: base},
		{ID: "high-late", Name: "high-late", Type: models.CommissionPercentage, Value: decimal.NewFromInt(3), Priority: 10, IsActive: true, CreatedAt: base.Add(time.Hour)},
		{ID: "high-early", Name: "high-early", Type: models.CommissionPercentage, Value: decimal.NewFromInt(4), Priority: 10, IsActive: true, CreatedAt: base},
		{ID: "off", Name: "off", Type: models.CommissionFixed, Value: decimal.NewFromInt(100), Priority: 50, IsActive: false, CreatedAt: base},
	} {
		require.NoError(t, rules.InsertRule(ctx, r), "rule %d", i)
	}

	active, err := rules.FindActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, "high-early", active[0].ID)
	assert.Equal(t, "high-late", active[1].ID)
	assert.Equal(t, "low", active[2].ID)

	all, err := rules.FindRules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	require.NoError(t, rules.DeleteRule(ctx, "off"))
	assert.ErrorIs(t, rules.DeleteRule(ctx, "off"), ErrNotFound)

	require.NoError(t, commissions.InsertCommission(ctx, models.Commission{
		ID: "c1", TransactionID: "t1", Amount: decimal.NewFromInt(600), Percentage: decimal.NewFromInt(3), CreatedAt: base,
	}))
	unpaid := false
	list, err := commissions.FindCommissions(ctx, &unpaid)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	paid, err := commissions.MarkCommissionPaid(ctx, "c1", base.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, paid.Paid)

	_, err = commissions.MarkCommissionPaid(ctx, "c1", base.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrConflict)
	_, err = commissions.MarkCommissionPaid(ctx, "missing", base)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationCollections_Integration(t *testing.T) {
	d := testDatabase(t)
	ctx := context.Background()
	conversations := &MongoConversationCollection{Collection: d.Collection(ConversationsCollection)}
	messages := &MongoMessageCollection{Collection: d.Collection(MessagesCollection)}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	conv := models.Conversation{ID: "conv", VehicleID: "v1", BuyerID: "b1", SellerID: "s1", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, conversations.InsertConversation(ctx, conv))

	found, err := conversations.FindConversation(ctx, "v1", "b1")
	require.NoError(t, err)
	assert.Equal(t, "conv", found.ID)

	require.NoError(t, messages.InsertMessage(ctx, models.Message{ID: "m1", ConversationID: "conv", SenderID: "b1", Body: "hello", CreatedAt: now}))
	require.NoError(t, conversations.RecordMessage(ctx, "conv", "hello", now, false))
	require.NoError(t, messages.InsertMessage(ctx, models.Message{ID: "m2", ConversationID: "conv", SenderID: "s1", Body: "hi", CreatedAt: now.Add(time.Minute)}))
	require.NoError(t, conversations.RecordMessage(ctx, "conv", "hi", now.Add(time.Minute), true))

	found, err = conversations.FindConversationByID(ctx, "conv")
	require.NoError(t, err)
	assert.Equal(t, 1, found.SellerUnread)
	assert.Equal(t, 1, found.BuyerUnread)
	assert.Equal(t, "hi", found.LastMessage)

	list, err := messages.FindMessages(ctx, "conv", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m1", list[0].ID)

	require.NoError(t, messages.MarkRead(ctx, "conv", "s1", now.Add(time.Hour)))
	require.NoError(t, conversations.ResetUnread(ctx, "conv", false))
	found, err = conversations.FindConversationByID(ctx, "conv")
	require.NoError(t, err)
	assert.Equal(t, 0, found.SellerUnread)

	mine, err := conversations.FindConversationsForUser(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	assert.ErrorIs(t, conversations.RecordMessage(ctx, "missing", "x", now, true), ErrNotFound)
}
