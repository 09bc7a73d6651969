package journal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ksred/tradejournal/internal/auth"
	"github.com/ksred/tradejournal/internal/journal"
	"github.com/ksred/tradejournal/internal/types"
)

type fakeLegacyStore struct {
	docs     []journal.LegacyTrade
	promoted map[string]*types.Trade
}

func (s *fakeLegacyStore) LegacyTrades(ctx context.Context) ([]journal.LegacyTrade, error) {
	return append([]journal.LegacyTrade(nil), s.docs...), nil
}

func (s *fakeLegacyStore) Promote(ctx context.Context, legacyID primitive.ObjectID, trade *types.Trade) error {
	if s.promoted == nil {
		s.promoted = make(map[string]*types.Trade)
	}
	s.promoted[trade.ID] = trade

	kept := s.docs[:0]
	for _, doc := range s.docs {
		if doc.ID != legacyID {
			kept = append(kept, doc)
		}
	}
	s.docs = kept
	return nil
}

type fakeOwners map[string]auth.User

func (o fakeOwners) FindByUsername(ctx context.Context, username string) (auth.User, error) {
	user, ok := o[username]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return user, nil
}

func legacyFixture() (*fakeLegacyStore, fakeOwners, primitive.ObjectID, primitive.ObjectID, primitive.ObjectID) {
	good, orphan, broken := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	created := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

	store := &fakeLegacyStore{docs: []journal.LegacyTrade{
		{ID: good, Username: "alice", Symbol: "msft", Side: "BUY", Qty: 5, Price: 410.25, CreatedAt: created},
		{ID: orphan, Username: "ghost", Symbol: "AAPL", Side: "SELL", Qty: 1, Price: 1, CreatedAt: created},
		{ID: broken, Username: "alice", Symbol: "AAPL", Side: "SELL", Qty: 0, Price: 1, CreatedAt: created},
	}}
	owners := fakeOwners{"alice": {ID: alice.ID, Username: "alice", OrgID: alice.OrgID}}
	return store, owners, good, orphan, broken
}

func TestMigrateLegacy_ConvertsFlatDocuments(t *testing.T) {
	svc, _, _ := newJournal(t)
	store, owners, good, orphan, broken := legacyFixture()

	report, err := svc.MigrateLegacy(context.Background(), store, owners, false)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 1, report.Migrated)
	assert.Contains(t, report.Skipped, orphan.Hex())
	assert.Contains(t, report.Skipped, broken.Hex())

	trade := store.promoted["legacy-"+good.Hex()]
	require.NotNil(t, trade)
	assert.Equal(t, alice.ID, trade.Tenant.UserID)
	assert.Equal(t, alice.OrgID, trade.Tenant.OrgID)
	assert.Equal(t, "MSFT", trade.Instrument.Underlying)
	assert.Equal(t, types.OptionEquity, trade.Instrument.OptionType)
	assert.Equal(t, types.SideBuy, trade.Side)
	assert.Equal(t, 5, trade.Quantity)
	assert.Equal(t, 410.25, trade.Price)
	assert.Equal(t, types.StatusOpen, trade.Status)
	assert.True(t, trade.Audit.CreatedAt.Equal(time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)))
	require.NotNil(t, trade.OpenTs)
	assert.True(t, trade.OpenTs.Equal(trade.Audit.CreatedAt))

	// skipped documents stay behind for a later run
	require.Len(t, store.docs, 2)

	again, err := svc.MigrateLegacy(context.Background(), store, owners, false)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Scanned)
	assert.Zero(t, again.Migrated)
}

func TestMigrateLegacy_DryRunWritesNothing(t *testing.T) {
	svc, _, _ := newJournal(t)
	store, owners, _, _, _ := legacyFixture()

	report, err := svc.MigrateLegacy(context.Background(), store, owners, true)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Migrated)
	assert.Empty(t, store.promoted)
	assert.Len(t, store.docs, 3)
}
