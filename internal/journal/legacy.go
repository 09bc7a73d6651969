package journal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ksred/tradejournal/internal/auth"
	"github.com/ksred/tradejournal/internal/docstore"
	"github.com/ksred/tradejournal/internal/types"
)

// legacyIDPrefix marks trades converted from flat documents. The suffix is
// the hex id of the source document, which makes conversion idempotent.
const legacyIDPrefix = "legacy-"

// LegacyTrade is the flat trade document written before trades carried a
// tenant envelope.
type LegacyTrade struct {
	ID        primitive.ObjectID `bson:"_id"`
	Username  string             `bson:"username"`
	Symbol    string             `bson:"symbol"`
	Side      string             `bson:"side"`
	Qty       int                `bson:"qty"`
	Price     float64            `bson:"price"`
	CreatedAt time.Time          `bson:"createdAt"`
}

// LegacyStore reads unconverted documents and swaps each for its converted
// trade.
type LegacyStore interface {
	LegacyTrades(ctx context.Context) ([]LegacyTrade, error)
	// Promote stores trade and removes the legacy document. Promoting the
	// same document twice must succeed.
	Promote(ctx context.Context, legacyID primitive.ObjectID, trade *types.Trade) error
}

// OwnerLookup resolves the username recorded on a legacy document.
type OwnerLookup interface {
	FindByUsername(ctx context.Context, username string) (auth.User, error)
}

// MigrationReport summarizes a legacy migration run.
type MigrationReport struct {
	Scanned  int               `json:"scanned"`
	Migrated int               `json:"migrated"`
	Skipped  map[string]string `json:"skipped,omitempty"`
	DryRun   bool              `json:"dry_run"`
}

func (r *MigrationReport) skip(id primitive.ObjectID, reason string) {
	if r.Skipped == nil {
		r.Skipped = make(map[string]string)
	}
	r.Skipped[id.Hex()] = reason
}

// MigrateLegacy converts every flat trade document into an enveloped equity
// trade owned by the user named on the document. Documents whose owner no
// longer exists, or whose fields fail validation, are left in place and
// reported. With dryRun set nothing is written.
func (s *Service) MigrateLegacy(ctx context.Context, store LegacyStore, owners OwnerLookup, dryRun bool) (MigrationReport, error) {
	logger := log.With().Str("component", "legacy_migration").Bool("dry_run", dryRun).Logger()
	report := MigrationReport{DryRun: dryRun}

	docs, err := store.LegacyTrades(ctx)
	if err != nil {
		return report, fmt.Errorf("read legacy trades: %w", err)
	}

	for _, doc := range docs {
		report.Scanned++

		owner, err := owners.FindByUsername(ctx, doc.Username)
		if errors.Is(err, auth.ErrUserNotFound) {
			report.skip(doc.ID, fmt.Sprintf("unknown user %q", doc.Username))
			continue
		}
		if err != nil {
			return report, err
		}

		trade, err := s.convertLegacy(doc, owner)
		if err != nil {
			report.skip(doc.ID, err.Error())
			continue
		}

		if !dryRun {
			if err := store.Promote(ctx, doc.ID, trade); err != nil {
				return report, fmt.Errorf("promote %s: %w", doc.ID.Hex(), err)
			}
		}
		report.Migrated++
		logger.Debug().Str("legacy_id", doc.ID.Hex()).Str("trade_id", trade.ID).Msg("converted legacy trade")
	}

	logger.Info().
		Int("scanned", report.Scanned).
		Int("migrated", report.Migrated).
		Int("skipped", len(report.Skipped)).
		Msg("legacy migration finished")

	return report, nil
}

// convertLegacy runs the legacy fields through the regular validator, so
// converted trades obey the same rules as submitted ones.
func (s *Service) convertLegacy(doc LegacyTrade, owner auth.User) (*types.Trade, error) {
	form := TradeForm{
		Underlying: RawValue(doc.Symbol),
		OptionType: RawValue(types.OptionEquity),
		Side:       RawValue(doc.Side),
		Quantity:   RawValue(strconv.Itoa(doc.Qty)),
		Price:      RawValue(strconv.FormatFloat(doc.Price, 'f', -1, 64)),
		Status:     RawValue(types.StatusOpen),
	}
	draft, err := s.validator.Validate(form)
	if err != nil {
		return nil, err
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	env, err := types.NewEnvelope(owner.OrgID, owner.ID, createdAt)
	if err != nil {
		return nil, err
	}

	openTs := env.Audit.CreatedAt
	draft.OpenTs = &openTs

	trade := newTrade(env, draft)
	trade.ID = legacyIDPrefix + doc.ID.Hex()
	return trade, nil
}

// MongoLegacyStore reads legacy documents from the trades collection. Legacy
// documents are the ones without a tenant field.
type MongoLegacyStore struct {
	coll *mongo.Collection
}

// NewMongoLegacyStore returns the legacy store for client. Memory clients
// never hold legacy documents and are rejected.
func NewMongoLegacyStore(client *docstore.Client) (*MongoLegacyStore, error) {
	if client.IsMemory() {
		return nil, errors.New("legacy migration requires a MongoDB document store")
	}
	return &MongoLegacyStore{coll: client.Database().Collection(TradesCollection)}, nil
}

func (s *MongoLegacyStore) LegacyTrades(ctx context.Context) ([]LegacyTrade, error) {
	cursor, err := s.coll.Find(ctx,
		bson.M{"tenant": bson.M{"$exists": false}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}

	var docs []LegacyTrade
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *MongoLegacyStore) Promote(ctx context.Context, legacyID primitive.ObjectID, trade *types.Trade) error {
	if _, err := s.coll.InsertOne(ctx, trade); err != nil && !mongo.IsDuplicateKeyError(err) {
		return err
	}
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": legacyID})
	return err
}
