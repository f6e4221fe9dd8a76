package storage

import (
	"strings"
	"testing"
)

func TestEncodeWorkerShape(t *testing.T) {
	got := string(EncodeWorker(WorkerRecord{Prices: []float64{10, 20.5}, Average: 15.25}))
	want := "Prices: [10.0, 20.5]\nAverage: 15.25\n"
	if got != want {
		t.Fatalf("unexpected worker text:\n%q\nwant\n%q", got, want)
	}
}

func TestEncodeGlobalShape(t *testing.T) {
	got := string(EncodeGlobal(GlobalRecord{ClientAverages: []float64{15, 30}, GlobalAverage: 22.5}))
	want := "Client Averages: [15.0, 30.0]\nGlobal Average: 22.5\n"
	if got != want {
		t.Fatalf("unexpected global text:\n%q\nwant\n%q", got, want)
	}
}

func TestGlobalRoundTripExact(t *testing.T) {
	rec := GlobalRecord{
		ClientAverages: []float64{37123.456789012345, 0.1 + 0.2, 1e-7},
		GlobalAverage:  (37123.456789012345 + 0.1 + 0.2 + 1e-7) / 3,
	}

	decoded, err := DecodeGlobal(EncodeGlobal(rec))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.GlobalAverage != rec.GlobalAverage {
		t.Fatalf("global average changed: %v != %v", decoded.GlobalAverage, rec.GlobalAverage)
	}
	if len(decoded.ClientAverages) != len(rec.ClientAverages) {
		t.Fatalf("expected %d averages, got %d", len(rec.ClientAverages), len(decoded.ClientAverages))
	}
	for i := range rec.ClientAverages {
		if decoded.ClientAverages[i] != rec.ClientAverages[i] {
			t.Fatalf("client average %d changed: %v != %v", i, decoded.ClientAverages[i], rec.ClientAverages[i])
		}
	}
}

func TestDecodeWorkerFixedPointAverage(t *testing.T) {
	rec, err := DecodeWorker([]byte("Prices: [37000.01, 37000.02]\nAverage: 37000.0150\n"))
	if err != nil {
		t.Fatalf("four-decimal average should parse: %v", err)
	}
	if rec.Average != 37000.015 || len(rec.Prices) != 2 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestDecodeEmptyList(t *testing.T) {
	rec, err := DecodeGlobal([]byte("Client Averages: []\nGlobal Average: 1.0\n"))
	if err != nil {
		t.Fatalf("empty list should parse: %v", err)
	}
	if len(rec.ClientAverages) != 0 {
		t.Fatalf("expected no averages, got %v", rec.ClientAverages)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"missing average": "Prices: [1.0]\n",
		"no brackets":     "Prices: 1.0, 2.0\nAverage: 1.5\n",
		"bad number":      "Prices: [1.0, x]\nAverage: 1.5\n",
		"bad average":     "Prices: [1.0]\nAverage: abc\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeWorker([]byte(body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := DecodeGlobal([]byte("Global Average: 1.0\n")); err == nil || !strings.Contains(err.Error(), "Client Averages") {
		t.Fatalf("expected missing label error, got %v", err)
	}
}
