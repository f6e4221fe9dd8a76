package feed

import (
	"context"
	"errors"
	"fmt"

	"price-window-averager/internal/report"
)

// ErrStreamClosed is returned by Stream.Next once the underlying connection
// has terminated. It is never returned for a single bad message.
var ErrStreamClosed = errors.New("feed stream closed")

// Client opens price streams.
type Client interface {
	Connect(ctx context.Context) (Stream, error)
}

// Stream yields price events until it is closed or the connection drops.
// Next returns a *DecodeError for a malformed message; the stream stays usable.
type Stream interface {
	Next(ctx context.Context) (report.PriceEvent, error)
	Close() error
}

// DecodeError describes one message that could not be turned into a PriceEvent.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode feed message: %v", e.Err)
}

// Unwrap exposes both the report.ErrDecode sentinel and the underlying cause.
func (e *DecodeError) Unwrap() []error {
	return []error{report.ErrDecode, e.Err}
}

// IsDecodeError reports whether err concerns a single skippable message.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
