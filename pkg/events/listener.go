// Package events delivers PostgreSQL NOTIFY wake-ups to worker runtimes.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

// listenCmd represents a LISTEN command to be executed by the receive loop,
// which is the sole goroutine that touches the pgx connection.
type listenCmd struct {
	sql    string
	result chan error
}

// Listener holds one dedicated connection in LISTEN mode and fans incoming
// notifications out to per-channel wake channels. Wake channels have capacity
// one and sends are non-blocking, so bursts coalesce: a sleeping runtime sees
// "work arrived", not one token per job.
type Listener struct {
	connString string
	conn       *pgx.Conn // dedicated connection for LISTEN
	connMu     sync.Mutex

	subs   map[string]chan struct{}
	subsMu sync.RWMutex

	// cmdCh serializes LISTEN through the receive loop. This avoids the
	// "conn busy" race between WaitForNotification and Exec.
	cmdCh   chan listenCmd
	running atomic.Bool

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// NewListener creates a listener for the given connection string.
func NewListener(connString string) *Listener {
	return &Listener{
		connString: connString,
		subs:       make(map[string]chan struct{}),
		cmdCh:      make(chan listenCmd, 16),
	}
}

// Start establishes the dedicated LISTEN connection and begins receiving.
func (l *Listener) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("failed to connect for LISTEN: %w", err)
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()
	l.running.Store(true)

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancelLoop = cancel
	l.loopDone = make(chan struct{})
	go func() {
		defer close(l.loopDone)
		l.receiveLoop(loopCtx)
	}()

	slog.Info("Notify listener started")
	return nil
}

// Subscribe issues LISTEN for the channel and returns its wake channel.
// Subscribing to the same channel twice returns the same wake channel.
func (l *Listener) Subscribe(ctx context.Context, channel string) (<-chan struct{}, error) {
	l.subsMu.Lock()
	if wake, ok := l.subs[channel]; ok {
		l.subsMu.Unlock()
		return wake, nil
	}
	wake := make(chan struct{}, 1)
	l.subs[channel] = wake
	l.subsMu.Unlock()

	if !l.running.Load() {
		return nil, fmt.Errorf("LISTEN connection not established")
	}

	cmd := listenCmd{
		sql:    "LISTEN " + pgx.Identifier{channel}.Sanitize(),
		result: make(chan error, 1),
	}
	select {
	case l.cmdCh <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case err := <-cmd.result:
		if err != nil {
			return nil, fmt.Errorf("LISTEN %s failed: %w", channel, err)
		}
		slog.Debug("Subscribed to NOTIFY channel", "channel", channel)
		return wake, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// receiveLoop continuously receives notifications and pokes subscribers.
// It is the sole goroutine touching the pgx connection.
func (l *Listener) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.processPendingCmds(ctx)

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()
		if conn == nil {
			l.reconnect(ctx)
			continue
		}

		// Short timeout so pending LISTEN commands get processed promptly.
		waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		notification, err := conn.WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if waitCtx.Err() != nil {
				continue
			}
			slog.Error("NOTIFY receive error", "error", err)
			l.reconnect(ctx)
			continue
		}

		l.wake(notification.Channel)
	}
}

// wake delivers a non-blocking signal to the channel's subscriber.
func (l *Listener) wake(channel string) {
	l.subsMu.RLock()
	wakeCh, ok := l.subs[channel]
	l.subsMu.RUnlock()
	if !ok {
		return
	}
	select {
	case wakeCh <- struct{}{}:
	default: // a wake-up is already pending
	}
}

// processPendingCmds drains the command channel and executes each LISTEN.
func (l *Listener) processPendingCmds(ctx context.Context) {
	for {
		select {
		case cmd := <-l.cmdCh:
			l.connMu.Lock()
			conn := l.conn
			l.connMu.Unlock()
			if conn == nil {
				cmd.result <- fmt.Errorf("LISTEN connection not established")
				continue
			}
			_, err := conn.Exec(ctx, cmd.sql)
			cmd.result <- err
		default:
			return
		}
	}
}

// reconnect re-establishes the LISTEN connection with exponential backoff and
// re-issues LISTEN for every subscribed channel.
func (l *Listener) reconnect(ctx context.Context) {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, l.connString)
		if err != nil {
			slog.Error("LISTEN reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		l.conn = conn

		l.subsMu.RLock()
		for ch := range l.subs {
			if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
				slog.Error("Re-LISTEN failed", "channel", ch, "error", err)
			}
		}
		l.subsMu.RUnlock()

		slog.Info("Notify listener reconnected")
		return
	}
}

// Stop signals the receive loop to exit, waits for it, then closes the
// connection.
func (l *Listener) Stop(ctx context.Context) {
	l.running.Store(false)
	if l.cancelLoop != nil {
		l.cancelLoop()
	}
	if l.loopDone != nil {
		<-l.loopDone
	}

	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}
}
