package journal

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ksred/tradejournal/internal/config"
	"github.com/ksred/tradejournal/internal/types"
)

const (
	maxUnderlyingLen = 16
	maxBrokerRefLen  = 64
	maxMoneyDigits   = 12
	maxMoneyDecimals = 2
	maxQtyDigits     = 10
	maxQtyDecimals   = 18
	expiryLayout     = "2006-01-02"
)

var underlyingPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9./^-]*$`)

const (
	msgRequired     = "This field is required."
	msgWholeNumber  = "Enter a whole number."
	msgNumber       = "Enter a number."
	msgDate         = "Enter a valid date (YYYY-MM-DD)."
	msgDateTime     = "Enter a valid date/time (RFC 3339)."
	msgNonNegative  = "Ensure this value is greater than or equal to 0."
	msgPositive     = "Ensure this value is greater than 0."
	msgOptionsOnly  = "Only option contracts carry a strike and expiry."
	msgInvalidValue = "Select a valid choice. %s is not one of the available choices."
)

// Validator checks trade forms against the field rules and the configured
// tag vocabularies. It is safe for concurrent use.
type Validator struct {
	vocab     config.Vocabulary
	strategy  map[string]struct{}
	sentiment map[string]struct{}
}

// NewValidator builds a Validator restricting tags to vocab. Vocabulary terms
// are matched case-insensitively.
func NewValidator(vocab config.Vocabulary) *Validator {
	v := &Validator{
		vocab: config.Vocabulary{
			Strategy:  normalizeTerms(vocab.Strategy),
			Sentiment: normalizeTerms(vocab.Sentiment),
		},
	}
	v.strategy = termSet(v.vocab.Strategy)
	v.sentiment = termSet(v.vocab.Sentiment)
	return v
}

// Vocabulary returns the normalized vocabularies the validator enforces.
func (v *Validator) Vocabulary() config.Vocabulary {
	return v.vocab
}

// Validate turns a form into a Draft, or returns types.ValidationErrors
// keyed by form field.
func (v *Validator) Validate(form TradeForm) (Draft, error) {
	errs := types.ValidationErrors{}
	var d Draft

	d.Instrument.Underlying = validateUnderlying(form.Underlying, errs)
	d.Instrument.OptionType = validateChoice(form.OptionType, "option_type", types.OptionTypes, errs)

	if d.Instrument.OptionType.IsOption() {
		d.Instrument.Strike = validateStrike(form.Strike, errs)
		d.Instrument.Expiry = validateExpiry(form.Expiry, errs)
	} else if d.Instrument.OptionType != "" {
		if hasStrike(form.Strike) {
			errs.Add("strike", msgOptionsOnly)
		}
		if !form.Expiry.empty() {
			errs.Add("expiry", msgOptionsOnly)
		}
	}

	d.Side = validateChoice(form.Side, "side", types.Sides, errs)
	d.Status = validateChoice(form.Status, "status", types.TradeStatuses, errs)
	d.Quantity = validateQuantity(form.Quantity, errs)

	if price, ok := validateMoney(form.Price, "price", true, errs); ok {
		d.Price = price
	}
	if fees, ok := validateMoney(form.Fees, "fees", false, errs); ok {
		d.Fees = fees
	}

	d.OpenTs = validateTimestamp(form.OpenTs, "open_ts", errs)
	d.CloseTs = validateTimestamp(form.CloseTs, "close_ts", errs)

	d.StrategyTags = validateTags(form.StrategyTags, "strategy_tags", v.strategy, errs)
	d.SentimentTags = validateTags(form.SentimentTags, "sentiment_tags", v.sentiment, errs)

	d.RealizedPnL = validatePnL(form.RealizedPnL, "realized_pnl", errs)
	d.UnrealizedPnL = validatePnL(form.UnrealizedPnL, "unrealized_pnl", errs)

	d.BrokerRef = form.BrokerRef.trimmed()
	if len(d.BrokerRef) > maxBrokerRefLen {
		errs.Add("broker_ref", fmt.Sprintf("Ensure this value has at most %d characters.", maxBrokerRefLen))
	}
	d.JournalEntryIDs = normalizeRefs(form.JournalEntryIDs)
	d.ScreenshotIDs = normalizeRefs(form.ScreenshotIDs)

	if err := errs.Err(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

func validateUnderlying(raw RawValue, errs types.ValidationErrors) string {
	symbol := strings.ToUpper(raw.trimmed())
	switch {
	case symbol == "":
		errs.Add("underlying", msgRequired)
	case len(symbol) > maxUnderlyingLen:
		errs.Add("underlying", fmt.Sprintf("Ensure this value has at most %d characters.", maxUnderlyingLen))
	case !underlyingPattern.MatchString(symbol):
		errs.Add("underlying", "Enter a valid ticker symbol.")
	}
	return symbol
}

func validateChoice[T ~string](raw RawValue, field string, choices []T, errs types.ValidationErrors) T {
	value := T(strings.ToUpper(raw.trimmed()))
	if value == "" {
		errs.Add(field, msgRequired)
		return ""
	}
	if !slices.Contains(choices, value) {
		errs.Add(field, fmt.Sprintf(msgInvalidValue, raw.trimmed()))
		return ""
	}
	return value
}

func validateQuantity(raw RawValue, errs types.ValidationErrors) int {
	if raw.empty() {
		errs.Add("qty", msgRequired)
		return 0
	}
	// accepts "10" and "10.0", rejects "10.5"
	d, err := decimal.NewFromString(raw.trimmed())
	if err != nil || fractionDigits(d) > maxQtyDecimals || !d.IsInteger() {
		errs.Add("qty", msgWholeNumber)
		return 0
	}
	switch {
	case d.Sign() <= 0:
		errs.Add("qty", "Ensure this value is greater than or equal to 1.")
		return 0
	case integerDigits(d) > maxQtyDigits || d.GreaterThan(decimal.NewFromInt(math.MaxInt32)):
		errs.Add("qty", fmt.Sprintf("Ensure this value is less than or equal to %d.", math.MaxInt32))
		return 0
	}
	return int(d.IntPart())
}

// validateMoney parses a non-negative amount with bounded precision.
func validateMoney(raw RawValue, field string, required bool, errs types.ValidationErrors) (float64, bool) {
	if raw.empty() {
		if required {
			errs.Add(field, msgRequired)
		}
		return 0, !required
	}
	d, err := decimal.NewFromString(raw.trimmed())
	if err != nil {
		errs.Add(field, msgNumber)
		return 0, false
	}
	if d.IsNegative() {
		errs.Add(field, msgNonNegative)
		return 0, false
	}
	if msg := checkPrecision(d); msg != "" {
		errs.Add(field, msg)
		return 0, false
	}
	return d.InexactFloat64(), true
}

// checkPrecision bounds d to the money field limits. It only inspects the
// coefficient length and exponent, so huge exponents are rejected without
// scaling the value.
func checkPrecision(d decimal.Decimal) string {
	if fractionDigits(d) > maxMoneyDecimals {
		return fmt.Sprintf("Ensure that there are no more than %d decimal places.", maxMoneyDecimals)
	}
	if integerDigits(d)+fractionDigits(d) > maxMoneyDigits {
		return fmt.Sprintf("Ensure that there are no more than %d digits in total.", maxMoneyDigits)
	}
	return ""
}

// integerDigits counts the positions left of the decimal point, trailing
// zeros implied by a positive exponent included.
func integerDigits(d decimal.Decimal) int64 {
	coef := d.Coefficient()
	n := int64(len(coef.Abs(coef).String())) + int64(d.Exponent())
	if n < 0 {
		return 0
	}
	return n
}

func fractionDigits(d decimal.Decimal) int64 {
	if exp := int64(d.Exponent()); exp < 0 {
		return -exp
	}
	return 0
}

func hasStrike(raw RawValue) bool {
	if raw.empty() {
		return false
	}
	d, err := decimal.NewFromString(raw.trimmed())
	return err != nil || !d.IsZero()
}

func validateStrike(raw RawValue, errs types.ValidationErrors) float64 {
	if raw.empty() {
		errs.Add("strike", msgRequired)
		return 0
	}
	d, err := decimal.NewFromString(raw.trimmed())
	if err != nil {
		errs.Add("strike", msgNumber)
		return 0
	}
	if d.Sign() <= 0 {
		errs.Add("strike", msgPositive)
		return 0
	}
	if msg := checkPrecision(d); msg != "" {
		errs.Add("strike", msg)
		return 0
	}
	return d.InexactFloat64()
}

func validateExpiry(raw RawValue, errs types.ValidationErrors) *time.Time {
	if raw.empty() {
		errs.Add("expiry", msgRequired)
		return nil
	}
	t, err := time.ParseInLocation(expiryLayout, raw.trimmed(), time.UTC)
	if err != nil {
		errs.Add("expiry", msgDate)
		return nil
	}
	return &t
}

func validateTimestamp(raw RawValue, field string, errs types.ValidationErrors) *time.Time {
	if raw.empty() {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw.trimmed())
	if err != nil {
		errs.Add(field, msgDateTime)
		return nil
	}
	t = types.StoreTime(t)
	return &t
}

func validatePnL(raw RawValue, field string, errs types.ValidationErrors) *float64 {
	if raw.empty() {
		return nil
	}
	d, err := decimal.NewFromString(raw.trimmed())
	if err != nil {
		errs.Add(field, msgNumber)
		return nil
	}
	if msg := checkPrecision(d); msg != "" {
		errs.Add(field, msg)
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

// validateTags normalizes tags and rejects terms outside vocab. Duplicates
// collapse to the first occurrence. The result is never nil.
func validateTags(tags []string, field string, vocab map[string]struct{}, errs types.ValidationErrors) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		term := strings.ToLower(strings.TrimSpace(tag))
		if term == "" || slices.Contains(out, term) {
			continue
		}
		if _, ok := vocab[term]; !ok {
			errs.Add(field, fmt.Sprintf(msgInvalidValue, tag))
			continue
		}
		out = append(out, term)
	}
	return out
}

func normalizeRefs(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref != "" && !slices.Contains(out, ref) {
			out = append(out, ref)
		}
	}
	return out
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && !slices.Contains(out, term) {
			out = append(out, term)
		}
	}
	return out
}

func termSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		set[term] = struct{}{}
	}
	return set
}
