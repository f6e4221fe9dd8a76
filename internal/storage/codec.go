package storage

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const (
	pricesLabel         = "Prices:"
	averageLabel        = "Average:"
	clientAveragesLabel = "Client Averages:"
	globalAverageLabel  = "Global Average:"
)

// EncodeWorker renders the text form of a worker record:
//
//	Prices: [10.0, 20.0]
//	Average: 15.0
func EncodeWorker(rec WorkerRecord) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s\n", pricesLabel, formatList(rec.Prices))
	fmt.Fprintf(&buf, "%s %s\n", averageLabel, formatFloat(rec.Average))
	return buf.Bytes()
}

// EncodeGlobal renders the text form of the global record.
func EncodeGlobal(rec GlobalRecord) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s\n", clientAveragesLabel, formatList(rec.ClientAverages))
	fmt.Fprintf(&buf, "%s %s\n", globalAverageLabel, formatFloat(rec.GlobalAverage))
	return buf.Bytes()
}

// DecodeWorker parses the text form of a worker record. Averages written with
// four fixed decimals by older builds parse as well.
func DecodeWorker(data []byte) (WorkerRecord, error) {
	values, err := scanLabels(data, pricesLabel, averageLabel)
	if err != nil {
		return WorkerRecord{}, err
	}
	prices, err := parseList(values[pricesLabel])
	if err != nil {
		return WorkerRecord{}, fmt.Errorf("parse prices: %w", err)
	}
	avg, err := strconv.ParseFloat(values[averageLabel], 64)
	if err != nil {
		return WorkerRecord{}, fmt.Errorf("parse average: %w", err)
	}
	return WorkerRecord{Prices: prices, Average: avg}, nil
}

// DecodeGlobal parses the text form of the global record.
func DecodeGlobal(data []byte) (GlobalRecord, error) {
	values, err := scanLabels(data, clientAveragesLabel, globalAverageLabel)
	if err != nil {
		return GlobalRecord{}, err
	}
	averages, err := parseList(values[clientAveragesLabel])
	if err != nil {
		return GlobalRecord{}, fmt.Errorf("parse client averages: %w", err)
	}
	avg, err := strconv.ParseFloat(values[globalAverageLabel], 64)
	if err != nil {
		return GlobalRecord{}, fmt.Errorf("parse global average: %w", err)
	}
	return GlobalRecord{ClientAverages: averages, GlobalAverage: avg}, nil
}

func scanLabels(data []byte, labels ...string) (map[string]string, error) {
	found := make(map[string]string, len(labels))
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		for _, label := range labels {
			if rest, ok := strings.CutPrefix(line, label); ok {
				found[label] = strings.TrimSpace(rest)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	for _, label := range labels {
		if _, ok := found[label]; !ok {
			return nil, fmt.Errorf("malformed record: missing %q line", label)
		}
	}
	return found, nil
}

// formatFloat writes the shortest decimal that parses back to the same
// float64, keeping a trailing ".0" for whole numbers.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func formatList(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatFloat(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func parseList(text string) ([]float64, error) {
	if !strings.HasPrefix(text, "[") || !strings.HasSuffix(text, "]") {
		return nil, fmt.Errorf("expected bracketed list, got %q", text)
	}
	inner := strings.TrimSpace(text[1 : len(text)-1])
	if inner == "" {
		return []float64{}, nil
	}
	fields := strings.Split(inner, ",")
	values := make([]float64, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
