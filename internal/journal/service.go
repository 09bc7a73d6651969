package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/ksred/tradejournal/internal/auth"
	"github.com/ksred/tradejournal/internal/config"
	"github.com/ksred/tradejournal/internal/docstore"
	"github.com/ksred/tradejournal/internal/types"
)

// TradesCollection is the document store collection holding trades.
const TradesCollection = "trades"

var ErrUnauthenticated = errors.New("authentication required")

var tradeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "journal_trade_writes_total",
	Help: "Trade writes by operation and outcome",
}, []string{"op", "outcome"})

// sortKeys maps the accepted list sort names onto document paths.
var sortKeys = map[string]string{
	"createdAt":  docstore.DefaultSortKey,
	"created_at": docstore.DefaultSortKey,
	"openTs":     "openTs",
	"open_ts":    "openTs",
	"closeTs":    "closeTs",
	"close_ts":   "closeTs",
	"underlying": "instrument.underlying",
}

// ListOptions controls trade listing order. An empty Sort lists newest first.
type ListOptions struct {
	Sort       string
	Descending bool
}

// Service handles journal operations. Every trade it persists is built by
// newTrade, so tenant and audit metadata are always populated.
type Service struct {
	trades    docstore.Repository[*types.Trade]
	validator *Validator
	now       func() time.Time
}

// NewService creates a journal service over the trades repository. A nil now
// defaults to time.Now.
func NewService(trades docstore.Repository[*types.Trade], validator *Validator, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		trades:    trades,
		validator: validator,
		now:       now,
	}
}

// Vocabulary returns the tag vocabularies trades are validated against.
func (s *Service) Vocabulary() config.Vocabulary {
	return s.validator.Vocabulary()
}

// Create validates form and records a new trade owned by the caller.
func (s *Service) Create(ctx context.Context, identity auth.Identity, form TradeForm) (*types.Trade, error) {
	owner, err := requireOwner(identity)
	if err != nil {
		return nil, err
	}

	draft, err := s.validator.Validate(form)
	if err != nil {
		tradeWrites.WithLabelValues("create", "invalid").Inc()
		return nil, err
	}

	env, err := types.NewEnvelope(owner.OrgID, owner.ID, s.now())
	if err != nil {
		return nil, err
	}

	trade, err := s.trades.Save(ctx, newTrade(env, draft))
	if err != nil {
		tradeWrites.WithLabelValues("create", "error").Inc()
		return nil, fmt.Errorf("save trade: %w", err)
	}
	tradeWrites.WithLabelValues("create", "ok").Inc()

	log.Info().
		Str("trade_id", trade.ID).
		Str("user_id", owner.ID).
		Str("underlying", trade.Instrument.Underlying).
		Msg("trade recorded")

	return trade, nil
}

// Get returns one of the caller's trades. Trades of other users, and soft
// deleted trades, are reported as not found.
func (s *Service) Get(ctx context.Context, identity auth.Identity, tradeID string) (*types.Trade, error) {
	owner, err := requireOwner(identity)
	if err != nil {
		return nil, err
	}
	return s.owned(ctx, owner, tradeID)
}

// List returns the caller's live trades.
func (s *Service) List(ctx context.Context, identity auth.Identity, opts ListOptions) ([]*types.Trade, error) {
	owner, err := requireOwner(identity)
	if err != nil {
		return nil, err
	}

	query := docstore.TenantQuery{
		OrgID:      owner.OrgID,
		UserID:     owner.ID,
		Descending: opts.Descending,
	}
	if opts.Sort == "" {
		query.Descending = true
	} else {
		key, ok := sortKeys[strings.TrimSpace(opts.Sort)]
		if !ok {
			errs := types.ValidationErrors{}
			errs.Add("sort", fmt.Sprintf(msgInvalidValue, opts.Sort))
			return nil, errs
		}
		query.SortKey = key
	}

	trades, err := s.trades.FindByTenant(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return trades, nil
}

// Update replaces the editable fields of one of the caller's trades. The
// envelope is carried over, so createdAt never changes.
func (s *Service) Update(ctx context.Context, identity auth.Identity, tradeID string, form TradeForm) (*types.Trade, error) {
	owner, err := requireOwner(identity)
	if err != nil {
		return nil, err
	}

	existing, err := s.owned(ctx, owner, tradeID)
	if err != nil {
		return nil, err
	}

	draft, err := s.validator.Validate(form)
	if err != nil {
		tradeWrites.WithLabelValues("update", "invalid").Inc()
		return nil, err
	}

	trade := newTrade(existing.Envelope, draft)
	trade.ID = existing.ID
	trade.Touch(s.now())

	saved, err := s.trades.Save(ctx, trade)
	if err != nil {
		tradeWrites.WithLabelValues("update", "error").Inc()
		return nil, fmt.Errorf("save trade: %w", err)
	}
	tradeWrites.WithLabelValues("update", "ok").Inc()
	return saved, nil
}

// Delete soft deletes one of the caller's trades.
func (s *Service) Delete(ctx context.Context, identity auth.Identity, tradeID string) error {
	owner, err := requireOwner(identity)
	if err != nil {
		return err
	}

	trade, err := s.owned(ctx, owner, tradeID)
	if err != nil {
		return err
	}

	trade.MarkDeleted(s.now())
	if _, err := s.trades.Save(ctx, trade); err != nil {
		tradeWrites.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("delete trade: %w", err)
	}
	tradeWrites.WithLabelValues("delete", "ok").Inc()

	log.Info().Str("trade_id", tradeID).Str("user_id", owner.ID).Msg("trade deleted")
	return nil
}

func (s *Service) owned(ctx context.Context, owner auth.Authenticated, tradeID string) (*types.Trade, error) {
	trade, err := s.trades.FindByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.OwnedBy(owner.OrgID, owner.ID) || trade.IsDeleted() {
		return nil, fmt.Errorf("trade %s: %w", tradeID, docstore.ErrNotFound)
	}
	return trade, nil
}

func requireOwner(identity auth.Identity) (auth.Authenticated, error) {
	owner, ok := identity.(auth.Authenticated)
	if !ok {
		return auth.Authenticated{}, ErrUnauthenticated
	}
	return owner, nil
}

// newTrade is the only place a trade record is assembled. Slices are copied
// so the record never aliases the draft.
func newTrade(env types.Envelope, d Draft) *types.Trade {
	return &types.Trade{
		Envelope:        env,
		BrokerRef:       d.BrokerRef,
		Instrument:      d.Instrument,
		Side:            d.Side,
		Quantity:        d.Quantity,
		Price:           d.Price,
		Fees:            d.Fees,
		Status:          d.Status,
		OpenTs:          d.OpenTs,
		CloseTs:         d.CloseTs,
		StrategyTags:    append([]string{}, d.StrategyTags...),
		SentimentTags:   append([]string{}, d.SentimentTags...),
		RealizedPnL:     d.RealizedPnL,
		UnrealizedPnL:   d.UnrealizedPnL,
		JournalEntryIDs: append([]string{}, d.JournalEntryIDs...),
		ScreenshotIDs:   append([]string{}, d.ScreenshotIDs...),
	}
}
