// Package transport keeps a participant connected to a room's event stream and issues
// game actions over HTTP with bounded retry.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/turingroom/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNetwork marks a failure below HTTP: dial, reset, or an attempt timing out.
	ErrNetwork = errors.New("network error")
	ErrClosed  = errors.New("transport closed")
	// ErrStreamRejected marks a handshake the server answered with an HTTP error, such as
	// 404 once the room is gone or 403 for a non-member.
	ErrStreamRejected = errors.New("stream rejected")
)

// State is the event stream's connection state.
type State string

const (
	StateReconnecting State = "reconnecting"
	StateConnected    State = "connected"
	StateOffline      State = "offline"
	StateClosed       State = "closed"
)

// DefaultBackoff is the reconnect schedule; the last step repeats.
var DefaultBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}

type ClientConfig struct {
	// URL is the full websocket URL of the room stream, including room and player.
	URL         string
	Backoff     []time.Duration
	DialTimeout time.Duration
	Dialer      *websocket.Dialer
	Clock       clockwork.Clock
	// OnEvent receives stream events in order, starting with a snapshot after every connect.
	OnEvent func(events.Event)
	// OnState is told about every state change, in order. Callbacks run outside the
	// client's lock, so they may call back into the client.
	OnState func(State)
	// OnDisconnect receives why a connection ended or a dial failed. A server close
	// arrives as a *websocket.CloseError carrying the server's reason.
	OnDisconnect func(error)
}

// notice is one queued callback: a state change or a disconnect reason.
type notice struct {
	state State
	err   error
}

// Client is a reconnecting subscription to a room's event stream. It owns a single
// backoff timer and never runs two dials at once.
type Client struct {
	cfg ClientConfig

	mu      sync.Mutex
	state   State
	attempt int
	gen     uint64
	timer   clockwork.Timer
	stop    chan struct{}
	dialing bool
	conn    *websocket.Conn
	online  bool
	lastSeq uint64

	notices    []notice
	delivering bool
}

func NewClient(cfg ClientConfig) *Client {
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Client{cfg: cfg, state: StateReconnecting, online: true}
}

// Start makes the first connection attempt.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrClosed
	}
	c.dialNow()
	return nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastSeq is the sequence number of the last event received.
func (c *Client) LastSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeq
}

// ForceReconnect skips any pending backoff and dials now. It does nothing while connected,
// offline, closed, or while a dial is already running, so repeated calls are harmless.
func (c *Client) ForceReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReconnecting || c.dialing {
		return
	}
	c.dialNow()
}

// SetVisible reports the host application's foreground state. Becoming visible while
// not connected forces a reconnect.
func (c *Client) SetVisible(visible bool) {
	if visible {
		c.ForceReconnect()
	}
}

// SetOnline reports network availability. Losing the network drops the connection and
// parks the client offline; regaining it reconnects immediately.
func (c *Client) SetOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = online
	switch {
	case c.state == StateClosed:
	case !online && c.state != StateOffline:
		c.cancelTimer()
		c.dropConn()
		c.setState(StateOffline)
	case online && c.state == StateOffline:
		c.attempt = 0
		c.setState(StateReconnecting)
		c.dialNow()
	}
}

// Close shuts the client down for good.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil
	}
	c.cancelTimer()
	c.dropConn()
	c.setState(StateClosed)
	return nil
}

// setState must hold c.mu.
func (c *Client) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	log.Debug().Str("state", string(s)).Str("url", c.cfg.URL).Msg("transport state changed")
	if c.cfg.OnState != nil {
		c.notify(notice{state: s})
	}
}

// disconnected queues err for OnDisconnect. Must hold c.mu.
func (c *Client) disconnected(err error) {
	if c.cfg.OnDisconnect != nil {
		c.notify(notice{err: err})
	}
}

// notify queues n and starts a delivery goroutine when none is running. One goroutine
// delivers at a time, so callbacks see notices in the order they were queued.
// Must hold c.mu.
func (c *Client) notify(n notice) {
	c.notices = append(c.notices, n)
	if !c.delivering {
		c.delivering = true
		go c.deliver()
	}
}

func (c *Client) deliver() {
	for {
		c.mu.Lock()
		batch := c.notices
		c.notices = nil
		if len(batch) == 0 {
			c.delivering = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		for _, n := range batch {
			if n.err != nil {
				c.cfg.OnDisconnect(n.err)
			} else {
				c.cfg.OnState(n.state)
			}
		}
	}
}

// dropConn must hold c.mu.
func (c *Client) dropConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// cancelTimer must hold c.mu. Bumping gen turns any in-flight dial or timer callback stale.
func (c *Client) cancelTimer() {
	c.gen++
	if c.timer != nil {
		if !c.timer.Stop() {
			select {
			case <-c.timer.Chan():
			default:
			}
		}
		close(c.stop)
		c.timer, c.stop = nil, nil
	}
}

// nextDelay must hold c.mu.
func (c *Client) nextDelay() time.Duration {
	d := c.cfg.Backoff[min(c.attempt, len(c.cfg.Backoff)-1)]
	c.attempt++
	return d
}

// scheduleDial arms the single backoff timer. Must hold c.mu.
func (c *Client) scheduleDial(d time.Duration) {
	c.cancelTimer()
	gen := c.gen
	t := c.cfg.Clock.NewTimer(d)
	stop := make(chan struct{})
	c.timer, c.stop = t, stop

	go func() {
		select {
		case <-t.Chan():
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.gen != gen || c.state != StateReconnecting {
				return
			}
			c.timer, c.stop = nil, nil
			c.dialNow()
		case <-stop:
		}
	}()
}

// dialNow starts a dial on its own goroutine. Must hold c.mu.
func (c *Client) dialNow() {
	if c.dialing {
		return
	}
	c.cancelTimer()
	c.dialing = true
	gen := c.gen
	go c.dial(gen)
}

func (c *Client) dial(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		err = dialError(resp, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialing = false

	if c.gen != gen || c.state != StateReconnecting {
		if conn != nil {
			conn.Close()
		}
		// A reconnect was requested while this dial was running.
		if c.state == StateReconnecting && c.timer == nil {
			c.dialNow()
		}
		return
	}
	if err != nil {
		d := c.nextDelay()
		log.Debug().Err(err).Dur("retry_in", d).Str("url", c.cfg.URL).Msg("stream dial failed")
		c.disconnected(err)
		c.scheduleDial(d)
		return
	}

	c.attempt = 0
	c.conn = conn
	c.setState(StateConnected)
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.lost(conn, err)
			return
		}
		var ev events.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn().Err(err).Msg("dropping malformed stream event")
			continue
		}

		c.mu.Lock()
		current := c.conn == conn
		if current {
			c.lastSeq = ev.Seq
		}
		c.mu.Unlock()
		if !current {
			return
		}
		if c.cfg.OnEvent != nil {
			c.cfg.OnEvent(ev)
		}
	}
}

// lost handles the end of conn. Only the current connection triggers a reconnect.
func (c *Client) lost(conn *websocket.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	c.conn = nil
	conn.Close()
	if c.state != StateConnected {
		return
	}
	log.Debug().Err(err).Str("url", c.cfg.URL).Msg("stream connection lost")
	c.disconnected(lostError(err))
	if !c.online {
		c.setState(StateOffline)
		return
	}
	c.setState(StateReconnecting)
	c.scheduleDial(c.nextDelay())
}

func dialError(resp *http.Response, err error) error {
	if resp != nil && resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", ErrStreamRejected, resp.Status)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

func lostError(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
