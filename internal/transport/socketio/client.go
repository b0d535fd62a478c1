package socketio

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/queuekit/queuekit-connector-bull/internal/protocol"
	"github.com/queuekit/queuekit-connector-bull/pkg/log"
)

// Options configures a Client.
type Options struct {
	// URL is the control-plane address, e.g. wss://api.queuekit.com. http and
	// https schemes are mapped to ws and wss.
	URL string
	// Path defaults to /socket.io/.
	Path string
	// Header is sent with the WebSocket upgrade.
	Header http.Header
	// TLSConfig for wss connections.
	TLSConfig *tls.Config
	// ReconnectDelay and ReconnectDelayMax bound the reconnection backoff.
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	// AckTimeout bounds EmitWithAck when the caller's context has no deadline.
	AckTimeout time.Duration
	Logger     log.Logger
}

// Client is a reconnecting Socket.IO v4 client over the Engine.IO WebSocket
// transport, bound to the default namespace.
type Client struct {
	opts   Options
	url    string
	dialer *websocket.Dialer
	logger log.Logger

	connected atomic.Bool
	nextAck   atomic.Int64

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu           sync.RWMutex
	handlers     map[string][]func(json.RawMessage)
	onConnect    []func()
	onDisconnect []func(error)
	acks         map[int64]chan []json.RawMessage
}

// New validates opts and returns an unconnected Client.
func New(opts Options) (*Client, error) {
	u, err := endpoint(opts.URL, opts.Path)
	if err != nil {
		return nil, err
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 500 * time.Millisecond
	}
	if opts.ReconnectDelayMax <= 0 {
		opts.ReconnectDelayMax = time.Second
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	return &Client{
		opts: opts,
		url:  u,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			TLSClientConfig:  opts.TLSConfig,
		},
		logger:   opts.Logger.WithComponent("socketio"),
		handlers: make(map[string][]func(json.RawMessage)),
		acks:     make(map[int64]chan []json.RawMessage),
	}, nil
}

// endpoint builds the Engine.IO WebSocket URL for base.
func endpoint(base, path string) (string, error) {
	if base == "" {
		return "", errors.New("socketio: URL is required")
	}
	if !strings.Contains(base, "://") {
		base = "wss://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("socketio: parse URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("socketio: unsupported scheme %q", u.Scheme)
	}
	if path == "" {
		path = "/socket.io/"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// URL returns the WebSocket endpoint the client dials.
func (c *Client) URL() string { return c.url }

// On registers fn for an inbound event; fn receives the event's first
// argument. Handlers run on the reader goroutine and must not block.
func (c *Client) On(event string, fn func(data json.RawMessage)) {
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], fn)
	c.mu.Unlock()
}

// OnConnect registers fn to run after each successful namespace connect. fn
// runs on the reader goroutine; anything waiting for an acknowledgement must
// be started on its own goroutine.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()
}

// OnDisconnect registers fn to run after a connected session ends.
func (c *Client) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	c.onDisconnect = append(c.onDisconnect, fn)
	c.mu.Unlock()
}

// Connected reports whether the namespace is currently connected.
func (c *Client) Connected() bool { return c.connected.Load() }

// Emit sends an event without acknowledgement. While disconnected the event
// is dropped and protocol.ErrNotConnected returned.
func (c *Client) Emit(event string, payload any) error {
	frame, err := encodeEvent(-1, event, payload)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// EmitWithAck sends an event and waits for the server's acknowledgement
// arguments.
func (c *Client) EmitWithAck(ctx context.Context, event string, payload any) ([]json.RawMessage, error) {
	id := c.nextAck.Add(1) - 1
	ch := make(chan []json.RawMessage, 1)
	c.mu.Lock()
	c.acks[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.acks, id)
		c.mu.Unlock()
	}()

	frame, err := encodeEvent(id, event, payload)
	if err != nil {
		return nil, err
	}
	if err := c.write(frame); err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.AckTimeout)
		defer cancel()
	}
	select {
	case args := <-ch:
		return args, nil
	case <-ctx.Done():
		return nil, &protocol.TransportError{Op: "ack " + event, Err: ctx.Err()}
	}
}

func (c *Client) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil || !c.connected.Load() {
		return protocol.ErrNotConnected
	}
	return c.writeLocked(frame)
}

func (c *Client) writeLocked(frame []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return &protocol.TransportError{Op: "write", Err: err}
	}
	return nil
}

// Run connects and keeps reconnecting with exponential backoff until ctx is
// cancelled.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.ReconnectDelay
	bo.MaxInterval = c.opts.ReconnectDelayMax
	bo.Reset()

	for {
		c.logger.Info("Attempting to connect", log.Str("url", c.opts.URL))
		established, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if established {
			bo.Reset()
		}
		delay := min(bo.NextBackOff(), c.opts.ReconnectDelayMax)
		c.logger.Warn("connection lost, reconnecting", log.Err(err), log.Dur("delay", delay))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// session runs one connection until it fails or ctx ends. It reports whether
// the namespace connect succeeded.
func (c *Client) session(ctx context.Context) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.opts.Header)
	if err != nil {
		return false, &protocol.TransportError{Op: "dial", Err: err}
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	hs, err := readOpen(conn)
	if err != nil {
		return false, err
	}
	timeout := time.Duration(hs.PingInterval+hs.PingTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	c.writeMu.Lock()
	c.conn = conn
	err = c.writeLocked([]byte{engineMessage, sioConnect})
	c.writeMu.Unlock()
	if err != nil {
		return false, err
	}

	established := false
	defer func() {
		c.writeMu.Lock()
		c.conn = nil
		c.writeMu.Unlock()
		if established {
			c.connected.Store(false)
			c.logger.Info("Socket disconnected", log.Str("url", c.opts.URL))
			c.mu.RLock()
			fns := append(([]func(error))(nil), c.onDisconnect...)
			c.mu.RUnlock()
			for _, fn := range fns {
				fn(err)
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		var msg []byte
		_, msg, err = conn.ReadMessage()
		if err != nil {
			err = &protocol.TransportError{Op: "read", Err: err}
			return established, err
		}
		if len(msg) == 0 {
			continue
		}
		switch msg[0] {
		case enginePing:
			c.writeMu.Lock()
			err = c.writeLocked([]byte{enginePong})
			c.writeMu.Unlock()
			if err != nil {
				return established, err
			}
		case engineClose:
			err = &protocol.TransportError{Op: "read", Err: errors.New("server closed the session")}
			return established, err
		case engineMessage:
			var done bool
			done, err = c.handleMessage(string(msg[1:]), &established)
			if done {
				return established, err
			}
		case enginePong, engineNoop, engineUpgrade, engineOpen:
		}
	}
}

func readOpen(conn *websocket.Conn) (handshake, error) {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return handshake{}, &protocol.TransportError{Op: "handshake", Err: err}
	}
	if len(msg) == 0 || msg[0] != engineOpen {
		return handshake{}, &protocol.TransportError{Op: "handshake", Err: fmt.Errorf("unexpected frame %q", msg)}
	}
	var hs handshake
	if err := json.Unmarshal(msg[1:], &hs); err != nil {
		return handshake{}, &protocol.TransportError{Op: "handshake", Err: err}
	}
	return hs, nil
}

// handleMessage processes one Socket.IO packet. done ends the session.
func (c *Client) handleMessage(s string, established *bool) (done bool, err error) {
	p, err := decodePacket(s)
	if err != nil {
		c.logger.Debug("ignoring packet", log.Err(err))
		return false, nil
	}
	switch p.typ {
	case sioConnect:
		if *established {
			return false, nil
		}
		*established = true
		c.connected.Store(true)
		c.logger.Info("Socket connected", log.Str("url", c.opts.URL))
		c.mu.RLock()
		fns := append(([]func())(nil), c.onConnect...)
		c.mu.RUnlock()
		for _, fn := range fns {
			fn()
		}
	case sioConnectError:
		return true, &protocol.TransportError{Op: "connect", Err: fmt.Errorf("rejected: %s", p.data)}
	case sioDisconnect:
		return true, &protocol.TransportError{Op: "read", Err: errors.New("server disconnected the namespace")}
	case sioEvent:
		name, args, err := splitEvent(p.data)
		if err != nil {
			c.logger.Debug("ignoring event", log.Err(err))
			return false, nil
		}
		var first json.RawMessage
		if len(args) > 0 {
			first = args[0]
		}
		c.mu.RLock()
		fns := append(([]func(json.RawMessage))(nil), c.handlers[name]...)
		c.mu.RUnlock()
		for _, fn := range fns {
			fn(first)
		}
		if p.ackID >= 0 {
			c.writeMu.Lock()
			err := c.writeLocked(encodeAck(p.ackID))
			c.writeMu.Unlock()
			if err != nil {
				return true, err
			}
		}
	case sioAck:
		var args []json.RawMessage
		if len(p.data) > 0 {
			_ = json.Unmarshal(p.data, &args)
		}
		c.mu.RLock()
		ch, ok := c.acks[p.ackID]
		c.mu.RUnlock()
		if ok {
			select {
			case ch <- args:
			default:
			}
		}
	}
	return false, nil
}
