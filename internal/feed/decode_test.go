package feed

import (
	"errors"
	"testing"

	"price-window-averager/internal/report"
)

const sampleTrade = `{"e":"trade","E":1700000000123,"s":"BTCUSDT","t":12345,"p":"37123.45000000","q":"0.00100000","T":1700000000120,"m":true,"M":true}`

func TestDecodeTrade(t *testing.T) {
	event, err := DecodeTrade([]byte(sampleTrade))
	if err != nil {
		t.Fatalf("valid trade should decode: %v", err)
	}
	if event.Price != 37123.45 {
		t.Fatalf("expected price 37123.45, got %v", event.Price)
	}
	if event.Symbol != "BTCUSDT" {
		t.Fatalf("expected symbol BTCUSDT, got %q", event.Symbol)
	}
	if event.TradeTime.UnixMilli() != 1700000000120 {
		t.Fatalf("trade time should come from T, got %d", event.TradeTime.UnixMilli())
	}
}

func TestDecodeTradeNumericPrice(t *testing.T) {
	event, err := DecodeTrade([]byte(`{"p": 101.5}`))
	if err != nil {
		t.Fatalf("numeric price should decode: %v", err)
	}
	if event.Price != 101.5 {
		t.Fatalf("expected 101.5, got %v", event.Price)
	}
	if event.TradeTime.IsZero() {
		t.Fatal("missing trade time should default to now")
	}
}

func TestDecodeTradeErrors(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"p":`,
		"missing price":   `{"s":"BTCUSDT"}`,
		"bad price":       `{"p":"abc"}`,
		"object price":    `{"p":{"v":1}}`,
		"overflow price":  `{"p":"1e400"}`,
		"overflow number": `{"p":-1e400}`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeTrade([]byte(payload))
			if err == nil {
				t.Fatal("expected decode error")
			}
			if !IsDecodeError(err) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if !errors.Is(err, report.ErrDecode) {
				t.Fatal("decode errors should match report.ErrDecode")
			}
		})
	}
}
