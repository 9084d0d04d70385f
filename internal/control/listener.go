package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bryanchriswhite/illuminate/internal/logger"
	"github.com/hypebeast/go-osc/osc"
)

// DefaultOSCPort is the UDP port the installation listens on.
const DefaultOSCPort = 8000

// maxPacketSize is the largest UDP datagram accepted.
const maxPacketSize = 65507

// Listener receives OSC packets over UDP and queues their messages.
type Listener struct {
	addr  string
	queue *Queue

	mu   sync.Mutex
	conn net.PacketConn
}

// NewListener creates a listener for addr (host:port).
func NewListener(addr string, queue *Queue) *Listener {
	return &Listener{addr: addr, queue: queue}
}

// Listen binds the UDP socket. ListenAndServe calls it when needed.
func (l *Listener) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return nil
	}
	conn, err := net.ListenPacket("udp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.addr, err)
	}
	l.conn = conn
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// ListenAndServe reads packets until ctx is cancelled or Close is called.
// Malformed packets are logged and skipped.
func (l *Listener) ListenAndServe(ctx context.Context) error {
	if err := l.Listen(); err != nil {
		return err
	}

	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()

	log := logger.WithComponent("osc")
	log.Info().Str("addr", conn.LocalAddr().String()).Msg("Listening for OSC messages")

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	buf := make([]byte, maxPacketSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Info().Msg("OSC listener stopped")
				return nil
			}
			log.Warn().Err(err).Msg("Error reading OSC packet")
			time.Sleep(10 * time.Millisecond)
			continue
		}

		packet, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			log.Warn().Err(err).Str("from", from.String()).Int("bytes", n).Msg("Malformed OSC packet")
			continue
		}

		for _, m := range FromPacket(packet, from.String()) {
			log.Debug().Str("msg", m.String()).Str("from", from.String()).Msg("OSC message")
			l.queue.Push(m)
		}
	}
}

// Close releases the socket.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}
