package catalog

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Item is one raw catalog entry as produced by a brand adapter: a loose
// field → value mapping, unvalidated, discarded after normalization.
//
// Field contract between adapters and Normalize:
//
//	external_id   string or number                            required
//	title         string                                      required
//	url           absolute http(s) URL                        required
//	price         string, json.Number, int or decimal;        optional
//	              formatted strings ("£1,299.00",
//	              "129.99 EUR") are parsed for amount
//	              and currency
//	currency      ISO code; wins over a symbol found in       optional
//	              the price string
//	description   string                                      optional
//	images        []string (or []any of string)               optional
//	variants      []any of map with sku, size, color,         optional
//	              price, available
//
// Unknown keys are ignored so adapters may carry extra context.
type Item map[string]any

// NormalizationError reports a single raw field that could not be
// normalized. It carries the offending field name and raw value so a bad
// catalog entry can be debugged upstream without re-running the ingestion.
type NormalizationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *NormalizationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("normalize %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("normalize %q: %s (raw: %v)", e.Field, e.Reason, e.Value)
}

func normErr(field string, value any, reason string) *NormalizationError {
	return &NormalizationError{Field: field, Value: value, Reason: reason}
}

// Normalize maps a raw catalog item onto the canonical product model. It is
// a pure function: scrapedAt is passed in so one ingestion run stamps every
// product with the same fetch time.
//
// A missing or uncoercible required field (external_id, title, url) fails
// with *NormalizationError. Optional fields that are absent get defaults
// (zero price, empty variants/images); optional fields that are present but
// uncoercible also fail, so adapter parsing bugs show up in the run report
// instead of silently dropping data.
func Normalize(raw Item, brandSlug string, scrapedAt time.Time) (*Product, error) {
	if brandSlug == "" {
		return nil, normErr("brand_slug", nil, "empty brand slug")
	}

	externalID, err := requiredString(raw, "external_id")
	if err != nil {
		return nil, err
	}
	title, err := requiredString(raw, "title")
	if err != nil {
		return nil, err
	}
	rawURL, err := requiredString(raw, "url")
	if err != nil {
		return nil, err
	}
	productURL, uerr := url.Parse(rawURL)
	if uerr != nil || (productURL.Scheme != "http" && productURL.Scheme != "https") || productURL.Host == "" {
		return nil, normErr("url", rawURL, "not an absolute http(s) URL")
	}

	price, symbolCurrency, err := coercePrice(raw["price"], "price")
	if err != nil {
		return nil, err
	}

	currency := symbolCurrency
	if v, ok := raw["currency"]; ok && v != nil {
		s, isStr := v.(string)
		if !isStr {
			return nil, normErr("currency", v, "expected a string")
		}
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			currency = s
		}
	}

	description := ""
	if v, ok := raw["description"]; ok && v != nil {
		s, isStr := v.(string)
		if !isStr {
			return nil, normErr("description", v, "expected a string")
		}
		description = strings.TrimSpace(s)
	}

	images, err := coerceImages(raw["images"])
	if err != nil {
		return nil, err
	}

	variants, err := coerceVariants(raw["variants"], price)
	if err != nil {
		return nil, err
	}

	return &Product{
		BrandSlug:   brandSlug,
		ExternalID:  externalID,
		Title:       title,
		Description: description,
		Price:       price,
		Currency:    currency,
		URL:         productURL.String(),
		Variants:    variants,
		Images:      images,
		ScrapedAt:   scrapedAt,
	}, nil
}

// requiredString extracts a trimmed non-empty string field. Numeric values
// are stringified: JSON feeds frequently carry IDs as numbers.
func requiredString(raw Item, field string) (string, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return "", normErr(field, nil, "missing required field")
	}
	s, err := stringify(v)
	if err != nil {
		return "", normErr(field, v, "expected a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", normErr(field, v, "required field is blank")
	}
	return s, nil
}

func stringify(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		// Whole-number JSON IDs decoded as float64.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10), nil
		}
		return "", fmt.Errorf("non-integral number")
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

// coercePrice converts a raw price value to a decimal, plus the currency
// code when the raw value is a formatted string with a recognizable symbol
// or ISO token. Absent prices coerce to zero.
func coercePrice(v any, field string) (decimal.Decimal, string, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, "", nil
	case decimal.Decimal:
		return t, "", nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero, "", normErr(field, v, "invalid decimal")
		}
		return d, "", nil
	case int:
		return decimal.NewFromInt(int64(t)), "", nil
	case int64:
		return decimal.NewFromInt(t), "", nil
	case float64:
		// Lossy last resort. Adapters should deliver strings or
		// json.Number; see the jsonfeed adapter's UseNumber decoding.
		return decimal.NewFromFloat(t), "", nil
	case string:
		return parsePriceString(t, field)
	default:
		return decimal.Zero, "", normErr(field, v, fmt.Sprintf("unsupported price type %T", v))
	}
}

// currencySymbols maps the symbols that show up in apparel catalogs to ISO
// codes. "$" is ambiguous across USD/CAD/AUD; adapters for non-US stores
// set an explicit currency in their brand config.
var currencySymbols = map[string]string{
	"£": "GBP",
	"€": "EUR",
	"$": "USD",
	"¥": "JPY",
}

// parsePriceString handles display prices: currency symbols or ISO codes
// before/after the amount, thousands separators, and comma decimals.
//
//	"£1,299.00"  → 1299.00 GBP
//	"129.99 EUR" → 129.99 EUR
//	"1.299,50"   → 1299.50
func parsePriceString(s, field string) (decimal.Decimal, string, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, "", nil
	}

	currency := ""
	for sym, code := range currencySymbols {
		if strings.Contains(s, sym) {
			currency = code
			s = strings.ReplaceAll(s, sym, "")
			break
		}
	}

	// ISO code token before or after the amount ("EUR 129", "129 EUR").
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if len(f) == 3 && f == strings.ToUpper(f) && isAlpha(f) {
			currency = f
			continue
		}
		kept = append(kept, f)
	}
	s = strings.Join(kept, "")
	s = strings.TrimSpace(s)

	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0 && lastComma > lastDot:
		// "1.299,50" — comma is the decimal separator.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastDot >= 0 && lastComma >= 0:
		// "1,299.50" — commas are thousands separators.
		s = strings.ReplaceAll(s, ",", "")
	case lastComma >= 0 && len(s)-lastComma-1 == 2 && strings.Count(s, ",") == 1:
		// "129,50" — lone comma with two trailing digits is a decimal.
		s = strings.Replace(s, ",", ".", 1)
	case lastComma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, "", normErr(field, raw, "cannot parse price")
	}
	return d, currency, nil
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func coerceImages(v any) ([]string, error) {
	if v == nil {
		return []string{}, nil
	}
	switch t := v.(type) {
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, normErr(fmt.Sprintf("images[%d]", i), e, "expected a string URL")
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, normErr("images", v, "expected a list of URLs")
	}
}

func coerceVariants(v any, productPrice decimal.Decimal) ([]Variant, error) {
	if v == nil {
		return []Variant{}, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, normErr("variants", v, "expected a list")
	}
	out := make([]Variant, 0, len(list))
	for i, e := range list {
		m, ok := asMap(e)
		if !ok {
			return nil, normErr(fmt.Sprintf("variants[%d]", i), e, "expected an object")
		}
		variant, err := coerceVariant(m, productPrice, i)
		if err != nil {
			return nil, err
		}
		out = append(out, variant)
	}
	return out, nil
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Item:
		return t, true
	default:
		return nil, false
	}
}

func coerceVariant(m map[string]any, productPrice decimal.Decimal, idx int) (Variant, error) {
	field := func(name string) string { return fmt.Sprintf("variants[%d].%s", idx, name) }

	variant := Variant{Price: productPrice, Available: true}

	if v, ok := m["sku"]; ok && v != nil {
		s, err := stringify(v)
		if err != nil {
			return Variant{}, normErr(field("sku"), v, "expected a string")
		}
		variant.SKU = strings.TrimSpace(s)
	}
	if v, ok := m["size"]; ok && v != nil {
		s, isStr := v.(string)
		if !isStr {
			return Variant{}, normErr(field("size"), v, "expected a string")
		}
		variant.Size = strings.TrimSpace(s)
	}
	if v, ok := m["color"]; ok && v != nil {
		s, isStr := v.(string)
		if !isStr {
			return Variant{}, normErr(field("color"), v, "expected a string")
		}
		variant.Color = strings.TrimSpace(s)
	}
	if v, ok := m["price"]; ok && v != nil {
		d, _, err := coercePrice(v, field("price"))
		if err != nil {
			return Variant{}, err
		}
		variant.Price = d
	}
	if v, ok := m["available"]; ok && v != nil {
		switch t := v.(type) {
		case bool:
			variant.Available = t
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(t))
			if err != nil {
				return Variant{}, normErr(field("available"), v, "expected a boolean")
			}
			variant.Available = b
		default:
			return Variant{}, normErr(field("available"), v, "expected a boolean")
		}
	}

	return variant, nil
}
