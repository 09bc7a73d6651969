package journal_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/tradejournal/internal/config"
	"github.com/ksred/tradejournal/internal/journal"
	"github.com/ksred/tradejournal/internal/types"
)

func testVocabulary() config.Vocabulary {
	return config.Vocabulary{
		Strategy:  []string{"breakout", "Earnings"},
		Sentiment: []string{"bullish", "bearish"},
	}
}

func aaplCall() journal.TradeForm {
	return journal.TradeForm{
		Underlying: "aapl",
		OptionType: "CALL",
		Strike:     "150.0",
		Expiry:     "2025-06-20",
		Side:       "BUY",
		Quantity:   "10",
		Price:      "2.5",
		Fees:       "0.65",
		Status:     "OPEN",
	}
}

func fieldErrors(t *testing.T, err error) types.ValidationErrors {
	t.Helper()
	var verrs types.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	return verrs
}

func TestValidate_OptionTrade(t *testing.T) {
	v := journal.NewValidator(testVocabulary())

	form := aaplCall()
	form.StrategyTags = []string{"Breakout", "earnings", "breakout"}
	form.SentimentTags = []string{"bullish"}
	form.OpenTs = "2025-06-01T14:30:00Z"

	d, err := v.Validate(form)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", d.Instrument.Underlying)
	assert.Equal(t, types.OptionCall, d.Instrument.OptionType)
	assert.Equal(t, 150.0, d.Instrument.Strike)
	require.NotNil(t, d.Instrument.Expiry)
	assert.True(t, d.Instrument.Expiry.Equal(time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, types.SideBuy, d.Side)
	assert.Equal(t, 10, d.Quantity)
	assert.Equal(t, 2.5, d.Price)
	assert.Equal(t, 0.65, d.Fees)
	assert.Equal(t, types.StatusOpen, d.Status)
	assert.Equal(t, []string{"breakout", "earnings"}, d.StrategyTags)
	assert.Equal(t, []string{"bullish"}, d.SentimentTags)
	require.NotNil(t, d.OpenTs)
	assert.Nil(t, d.CloseTs)
	assert.NotNil(t, d.JournalEntryIDs)
	assert.Empty(t, d.JournalEntryIDs)
}

func TestValidate_Boundaries(t *testing.T) {
	v := journal.NewValidator(testVocabulary())

	form := aaplCall()
	form.Quantity = "1"
	form.Price = "0.0"
	form.Fees = ""

	d, err := v.Validate(form)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Quantity)
	assert.Zero(t, d.Price)
	assert.Zero(t, d.Fees)
}

func TestValidate_RejectsBadNumbers(t *testing.T) {
	v := journal.NewValidator(testVocabulary())

	cases := []struct {
		name  string
		edit  func(*journal.TradeForm)
		field string
	}{
		{"zero qty", func(f *journal.TradeForm) { f.Quantity = "0" }, "qty"},
		{"negative qty", func(f *journal.TradeForm) { f.Quantity = "-3" }, "qty"},
		{"fractional qty", func(f *journal.TradeForm) { f.Quantity = "1.5" }, "qty"},
		{"missing qty", func(f *journal.TradeForm) { f.Quantity = "" }, "qty"},
		{"negative price", func(f *journal.TradeForm) { f.Price = "-0.01" }, "price"},
		{"price precision", func(f *journal.TradeForm) { f.Price = "2.505" }, "price"},
		{"price digits", func(f *journal.TradeForm) { f.Price = "12345678901.25" }, "price"},
		{"price not a number", func(f *journal.TradeForm) { f.Price = "cheap" }, "price"},
		{"missing price", func(f *journal.TradeForm) { f.Price = "" }, "price"},
		{"negative fees", func(f *journal.TradeForm) { f.Fees = "-1" }, "fees"},
		{"zero strike", func(f *journal.TradeForm) { f.Strike = "0" }, "strike"},
		{"bad pnl", func(f *journal.TradeForm) { f.RealizedPnL = "lots" }, "realized_pnl"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := aaplCall()
			tc.edit(&form)

			_, err := v.Validate(form)
			assert.Contains(t, fieldErrors(t, err), tc.field)
		})
	}
}

func TestValidate_HugeExponentsFailFast(t *testing.T) {
	v := journal.NewValidator(testVocabulary())

	cases := []struct {
		name  string
		edit  func(*journal.TradeForm)
		field string
	}{
		{"qty", func(f *journal.TradeForm) { f.Quantity = "1e9999999" }, "qty"},
		{"qty max exponent", func(f *journal.TradeForm) { f.Quantity = "1e2000000000" }, "qty"},
		{"qty zero with tiny exponent", func(f *journal.TradeForm) { f.Quantity = "0e-2000000000" }, "qty"},
		{"realized pnl", func(f *journal.TradeForm) { f.RealizedPnL = "1e9999999" }, "realized_pnl"},
		{"unrealized pnl", func(f *journal.TradeForm) { f.UnrealizedPnL = "-1e-2000000000" }, "unrealized_pnl"},
		{"price", func(f *journal.TradeForm) { f.Price = "0e-2000000000" }, "price"},
		{"strike", func(f *journal.TradeForm) { f.Strike = "1e2000000000" }, "strike"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := aaplCall()
			tc.edit(&form)

			start := time.Now()
			_, err := v.Validate(form)
			assert.Less(t, time.Since(start), 100*time.Millisecond)
			assert.Contains(t, fieldErrors(t, err), tc.field)
		})
	}
}

func TestValidate_PnL(t *testing.T) {
	v := journal.NewValidator(testVocabulary())

	form := aaplCall()
	form.RealizedPnL = "-125.50"
	form.UnrealizedPnL = "1e3"
	d, err := v.Validate(form)
	require.NoError(t, err)
	require.NotNil(t, d.RealizedPnL)
	require.NotNil(t, d.UnrealizedPnL)
	assert.Equal(t, -125.5, *d.RealizedPnL)
	assert.Equal(t, 1000.0, *d.UnrealizedPnL)

	form.RealizedPnL = "0.001"
	_, err = v.Validate(form)
	assert.Contains(t, fieldErrors(t, err), "realized_pnl")
}

func TestValidate_Enumerations(t *testing.T) {
	v := journal.NewValidator(testVocabulary())

	form := aaplCall()
	form.Side = "HOLD"
	form.Status = "PENDING"
	form.OptionType = "STRADDLE"

	verrs := fieldErrors(t, func() error { _, err := v.Validate(form); return err }())
	assert.Contains(t, verrs, "side")
	assert.Contains(t, verrs, "status")
	assert.Contains(t, verrs, "option_type")

	form = aaplCall()
	form.Side = "short"
	form.Status = "closed"
	d, err := v.Validate(form)
	require.NoError(t, err)
	assert.Equal(t, types.SideShort, d.Side)
	assert.Equal(t, types.StatusClosed, d.Status)
}

func TestValidate_OptionFields(t *testing.T) {
	v := journal.NewValidator(testVocabulary())

	form := aaplCall()
	form.Strike = ""
	form.Expiry = "20/06/2025"
	verrs := fieldErrors(t, func() error { _, err := v.Validate(form); return err }())
	assert.Contains(t, verrs, "strike")
	assert.Contains(t, verrs, "expiry")

	// equities need neither, and may not carry them
	form = aaplCall()
	form.OptionType = "equity"
	form.Strike = ""
	form.Expiry = ""
	d, err := v.Validate(form)
	require.NoError(t, err)
	assert.Equal(t, types.OptionEquity, d.Instrument.OptionType)
	assert.Nil(t, d.Instrument.Expiry)

	form.Expiry = "2025-06-20"
	verrs = fieldErrors(t, func() error { _, err := v.Validate(form); return err }())
	assert.Contains(t, verrs, "expiry")
}

func TestValidate_Underlying(t *testing.T) {
	v := journal.NewValidator(testVocabulary())

	for _, symbol := range []journal.RawValue{"", "ABCDEFGHIJKLMNOPQ", "AA PL"} {
		form := aaplCall()
		form.Underlying = symbol
		_, err := v.Validate(form)
		assert.Contains(t, fieldErrors(t, err), "underlying", string(symbol))
	}

	form := aaplCall()
	form.Underlying = " brk.b "
	d, err := v.Validate(form)
	require.NoError(t, err)
	assert.Equal(t, "BRK.B", d.Instrument.Underlying)
}

func TestValidate_TagsOutsideVocabulary(t *testing.T) {
	v := journal.NewValidator(testVocabulary())

	form := aaplCall()
	form.StrategyTags = []string{"breakout", "yolo"}
	form.SentimentTags = []string{"euphoric"}

	verrs := fieldErrors(t, func() error { _, err := v.Validate(form); return err }())
	require.Len(t, verrs["strategy_tags"], 1)
	assert.Contains(t, verrs["strategy_tags"][0], "yolo")
	assert.Contains(t, verrs, "sentiment_tags")
}

func TestValidator_VocabularyIsNormalized(t *testing.T) {
	v := journal.NewValidator(config.Vocabulary{Strategy: []string{" Breakout", "breakout", ""}})
	assert.Equal(t, []string{"breakout"}, v.Vocabulary().Strategy)
	assert.Empty(t, v.Vocabulary().Sentiment)
}

func TestTradeForm_AcceptsStringsAndNumbers(t *testing.T) {
	body := `{"underlying":"AAPL","option_type":"CALL","strike":150.0,"expiry":"2025-06-20",
		"side":"BUY","qty":10,"price":"2.50","fees":0.65,"status":"OPEN","realized_pnl":null}`

	var form journal.TradeForm
	require.NoError(t, json.Unmarshal([]byte(body), &form))
	assert.Equal(t, journal.RawValue("150.0"), form.Strike)
	assert.Equal(t, journal.RawValue("10"), form.Quantity)
	assert.Equal(t, journal.RawValue("2.50"), form.Price)
	assert.Equal(t, journal.RawValue(""), form.RealizedPnL)

	_, err := journal.NewValidator(testVocabulary()).Validate(form)
	assert.NoError(t, err)
}
