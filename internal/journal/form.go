package journal

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/ksred/tradejournal/internal/types"
)

// RawValue holds a form field exactly as submitted. JSON strings and numbers
// both decode into it, so "2.50" and 2.50 reach the validator unchanged and
// bad input surfaces as a field error instead of a bind failure.
type RawValue string

func (v *RawValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = RawValue(s)
		return nil
	}
	*v = RawValue(b)
	return nil
}

func (v RawValue) trimmed() string {
	return strings.TrimSpace(string(v))
}

func (v RawValue) empty() bool {
	return v.trimmed() == ""
}

// TradeForm is the submitted trade, before validation.
type TradeForm struct {
	Underlying RawValue `json:"underlying"`
	OptionType RawValue `json:"option_type"`
	Strike     RawValue `json:"strike"`
	Expiry     RawValue `json:"expiry"`

	Side     RawValue `json:"side"`
	Quantity RawValue `json:"qty"`
	Price    RawValue `json:"price"`
	Fees     RawValue `json:"fees"`
	Status   RawValue `json:"status"`
	OpenTs   RawValue `json:"open_ts"`
	CloseTs  RawValue `json:"close_ts"`

	StrategyTags  []string `json:"strategy_tags"`
	SentimentTags []string `json:"sentiment_tags"`

	RealizedPnL   RawValue `json:"realized_pnl"`
	UnrealizedPnL RawValue `json:"unrealized_pnl"`

	BrokerRef       RawValue `json:"broker_ref"`
	JournalEntryIDs []string `json:"journal_entry_ids"`
	ScreenshotIDs   []string `json:"screenshot_ids"`
}

// Draft is a validated trade without its envelope. Only newTrade turns a
// Draft into a persistable record.
type Draft struct {
	BrokerRef  string
	Instrument types.Instrument
	Side       types.Side
	Quantity   int
	Price      float64
	Fees       float64
	Status     types.TradeStatus
	OpenTs     *time.Time
	CloseTs    *time.Time

	StrategyTags  []string
	SentimentTags []string

	RealizedPnL   *float64
	UnrealizedPnL *float64

	JournalEntryIDs []string
	ScreenshotIDs   []string
}
