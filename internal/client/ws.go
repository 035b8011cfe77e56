package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"crowdsale-ledger/internal/domain"
)

// WSConfig configures the event stream connection.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout bounds the silence between frames. The server pings more
	// often than this.
	ReadTimeout time.Duration
	// HandshakeTimeout bounds each dial.
	HandshakeTimeout time.Duration
	// Buffer is the capacity of the event channel.
	Buffer int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       90 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		Buffer:            1024,
	}
}

// Stream receives committed events over the server's /ws endpoint and
// reconnects with exponential backoff when the connection drops. Events
// committed while disconnected are not replayed; use GetJournal to fill gaps.
type Stream struct {
	// C delivers events in commit order per connection. It is closed after
	// Close or when the subscribing context ends.
	C <-chan *domain.Event

	ch     chan *domain.Event
	url    string
	config WSConfig
	logger *zap.Logger
	dialer websocket.Dialer

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup

	reconnects atomic.Uint64
}

// WSURL converts an http(s) server endpoint to its event stream URL,
// optionally filtered to one sale.
func WSURL(endpoint string, sale domain.Pubkey) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	if !sale.IsZero() {
		q := u.Query()
		q.Set("sale", sale.String())
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Subscribe opens an event stream. A zero sale streams every sale. The first
// dial must succeed; later drops are retried until Close or ctx ends.
func (c *Client) Subscribe(ctx context.Context, sale domain.Pubkey, config *WSConfig, logger *zap.Logger) (*Stream, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	wsURL, err := WSURL(c.endpoint, sale)
	if err != nil {
		return nil, err
	}

	ch := make(chan *domain.Event, cfg.Buffer)
	s := &Stream{
		C:      ch,
		ch:     ch,
		url:    wsURL,
		config: cfg,
		logger: logger.Named("stream"),
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		done:   make(chan struct{}),
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// Reconnects returns how many times the stream re-established its connection.
func (s *Stream) Reconnects() uint64 {
	return s.reconnects.Load()
}

func (s *Stream) connect(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

// Close stops the stream and closes C.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return nil
}

// readLoop decodes frames into C and reconnects on read errors.
func (s *Stream) readLoop() {
	defer s.wg.Done()
	defer close(s.ch)
	defer func() {
		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.connMu.Unlock()
	}()

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			if !s.reconnect() {
				return
			}
			continue
		}

		_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Warn("stream read failed", zap.Error(err))
			s.connMu.Lock()
			s.conn.Close()
			s.conn = nil
			s.connMu.Unlock()
			continue
		}

		var e domain.Event
		if err := json.Unmarshal(message, &e); err != nil {
			s.logger.Warn("skipping undecodable frame", zap.Error(err))
			continue
		}

		select {
		case s.ch <- &e:
		case <-s.done:
			return
		}
	}
}

// reconnect dials until it succeeds or the stream is closed.
func (s *Stream) reconnect() bool {
	delay := s.config.ReconnectDelay
	for {
		select {
		case <-s.done:
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.config.HandshakeTimeout)
		err := s.connect(ctx)
		cancel()
		if err == nil {
			s.reconnects.Add(1)
			s.logger.Info("stream reconnected", zap.String("url", s.url))
			return true
		}
		s.logger.Debug("reconnect failed", zap.Duration("delay", delay), zap.Error(err))

		delay *= 2
		if delay > s.config.MaxReconnectDelay {
			delay = s.config.MaxReconnectDelay
		}
	}
}
