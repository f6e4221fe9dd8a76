package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"price-window-averager/internal/report"
)

// DefaultURL is the BTC/USDT trade stream.
const DefaultURL = "wss://stream.binance.com:9443/ws/btcusdt@trade"

// WebsocketOptions parameterise the websocket feed client.
type WebsocketOptions struct {
	URL              string
	HandshakeTimeout time.Duration
	ReadBuffer       int
	UserAgent        string
}

// WebsocketClient dials a trade stream over websocket. Every Connect call
// opens a fresh, independent connection.
type WebsocketClient struct {
	opts   WebsocketOptions
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// NewWebsocket constructs a websocket feed client.
func NewWebsocket(opts WebsocketOptions, logger zerolog.Logger) *WebsocketClient {
	if strings.TrimSpace(opts.URL) == "" {
		opts.URL = DefaultURL
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.ReadBuffer <= 0 {
		opts.ReadBuffer = 64
	}

	return &WebsocketClient{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		logger: logger.With().Str("component", "feed_client").Logger(),
	}
}

// Connect dials the stream. Failures wrap report.ErrConnection.
func (c *WebsocketClient) Connect(ctx context.Context) (Stream, error) {
	header := http.Header{}
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		header.Set("User-Agent", ua)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s (status %d): %w: %w", c.opts.URL, resp.StatusCode, report.ErrConnection, err)
		}
		return nil, fmt.Errorf("dial %s: %w: %w", c.opts.URL, report.ErrConnection, err)
	}

	c.logger.Debug().Str("url", c.opts.URL).Msg("feed connected")

	s := &wsStream{
		conn:   conn,
		frames: make(chan frame, c.opts.ReadBuffer),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

type frame struct {
	kind    int
	payload []byte
	err     error
}

type wsStream struct {
	conn      *websocket.Conn
	frames    chan frame
	done      chan struct{}
	closeOnce sync.Once
}

// pump moves frames off the socket so that Next can honour ctx cancellation.
func (s *wsStream) pump() {
	defer close(s.frames)
	for {
		kind, payload, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case s.frames <- frame{err: err}:
			case <-s.done:
			}
			return
		}
		select {
		case s.frames <- frame{kind: kind, payload: payload}:
		case <-s.done:
			return
		}
	}
}

func (s *wsStream) Next(ctx context.Context) (report.PriceEvent, error) {
	select {
	case <-ctx.Done():
		return report.PriceEvent{}, ctx.Err()
	case f, ok := <-s.frames:
		if !ok {
			return report.PriceEvent{}, ErrStreamClosed
		}
		if f.err != nil {
			return report.PriceEvent{}, fmt.Errorf("%w: %w", ErrStreamClosed, f.err)
		}
		if f.kind != websocket.TextMessage {
			return report.PriceEvent{}, &DecodeError{Err: errors.New("unexpected binary frame")}
		}
		return DecodeTrade(f.payload)
	}
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

var _ Client = (*WebsocketClient)(nil)
var _ Stream = (*wsStream)(nil)
