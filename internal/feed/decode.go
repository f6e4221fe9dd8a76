package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"price-window-averager/internal/report"
)

const (
	priceField     = "p"
	symbolField    = "s"
	tradeTimeField = "T"
)

// DecodeTrade extracts a PriceEvent from a trade stream message. The price is
// read from the "p" field, which the exchange sends as a decimal string.
//
// Keys are looked up exactly: the trade payload carries both "t" and "T", "e"
// and "E", so struct decoding with its case-insensitive matching is avoided.
func DecodeTrade(payload []byte) (report.PriceEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return report.PriceEvent{}, decodeErr(payload, err)
	}

	rawPrice, ok := fields[priceField]
	if !ok {
		return report.PriceEvent{}, decodeErr(payload, errors.New("no price field found"))
	}

	price, err := parsePrice(rawPrice)
	if err != nil {
		return report.PriceEvent{}, decodeErr(payload, err)
	}
	value := price.InexactFloat64()
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return report.PriceEvent{}, decodeErr(payload, fmt.Errorf("price %s out of float64 range", price.String()))
	}

	event := report.PriceEvent{Price: value}

	if raw, ok := fields[symbolField]; ok {
		_ = json.Unmarshal(raw, &event.Symbol)
	}
	if raw, ok := fields[tradeTimeField]; ok {
		var ms int64
		if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
			event.TradeTime = time.UnixMilli(ms).UTC()
		}
	}
	if event.TradeTime.IsZero() {
		event.TradeTime = time.Now().UTC()
	}

	return event, nil
}

func parsePrice(raw json.RawMessage) (decimal.Decimal, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		// Some feeds send the price as a bare JSON number.
		var number json.Number
		if numErr := json.Unmarshal(raw, &number); numErr != nil {
			return decimal.Decimal{}, fmt.Errorf("price field is neither string nor number: %s", string(raw))
		}
		text = number.String()
	}

	price, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse price %q: %w", text, err)
	}
	return price, nil
}

func decodeErr(payload []byte, err error) error {
	const maxPayload = 256
	text := string(payload)
	if len(text) > maxPayload {
		text = text[:maxPayload]
	}
	return &DecodeError{Payload: text, Err: err}
}
