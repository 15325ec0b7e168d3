package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/luifiio/bp4w-maq/internal/observability"
	"github.com/luifiio/bp4w-maq/internal/reconciler"
)

const (
	DefaultPath              = "/ws"
	DefaultReconnectInterval = 2 * time.Second
)

// Options configures a Reader.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://host:5000/ws.
	URL               string
	ReconnectInterval time.Duration
	Observer          reconciler.Observer
	Logger            zerolog.Logger
	Dialer            *websocket.Dialer
}

// Reader keeps a websocket subscription to the backend's push events open.
type Reader struct {
	url      string
	interval time.Duration
	obs      reconciler.Observer
	log      zerolog.Logger
	dialer   *websocket.Dialer
}

func NewReader(opts Options) *Reader {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.Observer == nil {
		opts.Observer = observability.Nop{}
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Reader{
		url:      opts.URL,
		interval: opts.ReconnectInterval,
		obs:      opts.Observer,
		log:      opts.Logger,
		dialer:   opts.Dialer,
	}
}

// PushURL derives the websocket endpoint from the backend's HTTP base URL.
func PushURL(backend, path string) (string, error) {
	u, err := url.Parse(strings.TrimRight(backend, "/"))
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

// Run reads frames until ctx is done, posting decoded events to out. Each
// successful dial is announced with a StreamConnected event before its
// frames. A broken or refused connection is redialed after the reconnect
// interval.
func (r *Reader) Run(ctx context.Context, out chan<- reconciler.Event) error {
	first := true
	for {
		if !first {
			r.obs.IncCounter(observability.StreamReconnects, 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.interval):
			}
		}
		first = false

		err := r.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.Warn().Err(err).Str("url", r.url).Dur("retry_in", r.interval).Msg("push stream lost")
	}
}

func (r *Reader) session(ctx context.Context, out chan<- reconciler.Event) error {
	conn, _, err := r.dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	r.log.Info().Str("url", r.url).Msg("push stream connected")

	// Unblock ReadMessage on cancellation.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	select {
	case out <- reconciler.StreamConnected{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				return fmt.Errorf("closed by backend: %w", err)
			}
			return fmt.Errorf("read: %w", err)
		}

		ev, err := Decode(raw)
		if err != nil {
			r.log.Debug().Err(err).Msg("skipping push frame")
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
