package types

import "time"

type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
	// OptionEquity marks a plain equity position with no option contract.
	OptionEquity OptionType = "EQUITY"
)

// IsOption reports whether the instrument is an option contract.
func (o OptionType) IsOption() bool {
	return o == OptionCall || o == OptionPut
}

type Side string

const (
	SideBuy   Side = "BUY"
	SideSell  Side = "SELL"
	SideShort Side = "SHORT"
	SideCover Side = "COVER"
)

type TradeStatus string

const (
	StatusOpen      TradeStatus = "OPEN"
	StatusClosed    TradeStatus = "CLOSED"
	StatusCancelled TradeStatus = "CANCELLED"
)

var (
	OptionTypes   = []OptionType{OptionCall, OptionPut, OptionEquity}
	Sides         = []Side{SideBuy, SideSell, SideShort, SideCover}
	TradeStatuses = []TradeStatus{StatusOpen, StatusClosed, StatusCancelled}
)

// Instrument describes what was traded. Strike and Expiry are only set for
// option contracts.
type Instrument struct {
	Underlying string     `bson:"underlying" json:"underlying"`
	OptionType OptionType `bson:"optionType" json:"option_type"`
	Strike     float64    `bson:"strike,omitempty" json:"strike,omitempty"`
	Expiry     *time.Time `bson:"expiry,omitempty" json:"expiry,omitempty"`
}

// Trade is one options or equity position in a user's journal.
type Trade struct {
	ID string `bson:"_id,omitempty" json:"trade_id"`

	Envelope `bson:",inline"`

	BrokerRef  string      `bson:"brokerRef,omitempty" json:"broker_ref,omitempty"`
	Instrument Instrument  `bson:"instrument" json:"instrument"`
	Side       Side        `bson:"side" json:"side"`
	Quantity   int         `bson:"qty" json:"qty"`
	Price      float64     `bson:"price" json:"price"`
	Fees       float64     `bson:"fees" json:"fees"`
	Status     TradeStatus `bson:"status" json:"status"`
	OpenTs     *time.Time  `bson:"openTs" json:"open_ts,omitempty"`
	CloseTs    *time.Time  `bson:"closeTs" json:"close_ts,omitempty"`

	StrategyTags  []string `bson:"strategyTags" json:"strategy_tags"`
	SentimentTags []string `bson:"sentimentTags" json:"sentiment_tags"`

	RealizedPnL   *float64 `bson:"realizedPnL" json:"realized_pnl,omitempty"`
	UnrealizedPnL *float64 `bson:"unrealizedPnL" json:"unrealized_pnl,omitempty"`

	JournalEntryIDs []string `bson:"journalEntryIds" json:"journal_entry_ids"`
	ScreenshotIDs   []string `bson:"screenshotIds" json:"screenshot_ids"`
}

func (t *Trade) GetID() string   { return t.ID }
func (t *Trade) SetID(id string) { t.ID = id }
