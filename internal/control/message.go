// Package control carries live parameter changes from the outside world
// into the tick loop.
//
// Transports (OSC over UDP, the HTTP API, the WebSocket feed) only append
// Messages to a Queue. The tick goroutine drains the queue and hands each
// message to the Dispatcher, which is the single place parameters change.
package control

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bryanchriswhite/illuminate/internal/logger"
	"github.com/hypebeast/go-osc/osc"
)

// Message is one control request: an OSC-style address plus arguments.
type Message struct {
	Address string        `json:"address"`
	Args    []interface{} `json:"args"`
	Source  string        `json:"source,omitempty"`
}

func (m Message) String() string {
	parts := make([]string, len(m.Args))
	for i, a := range m.Args {
		parts[i] = fmt.Sprintf("%v", a)
	}
	return strings.TrimSpace(m.Address + " " + strings.Join(parts, " "))
}

// FromPacket flattens an OSC packet into messages, bundles depth first.
func FromPacket(p osc.Packet, source string) []Message {
	switch pkt := p.(type) {
	case *osc.Message:
		return []Message{{Address: pkt.Address, Args: pkt.Arguments, Source: source}}
	case *osc.Bundle:
		var out []Message
		for _, m := range pkt.Messages {
			out = append(out, Message{Address: m.Address, Args: m.Arguments, Source: source})
		}
		for _, b := range pkt.Bundles {
			out = append(out, FromPacket(b, source)...)
		}
		return out
	default:
		return nil
	}
}

// Queue is a mutex-guarded FIFO shared by every transport.
type Queue struct {
	mu      sync.Mutex
	items   []Message
	max     int
	dropped uint64
}

// NewQueue creates a queue. A positive max bounds it to that many messages,
// dropping the oldest when full; 0 leaves it unbounded.
func NewQueue(max int) *Queue {
	if max < 0 {
		max = 0
	}
	return &Queue{max: max}
}

// Push appends m.
func (q *Queue) Push(m Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.max > 0 && len(q.items) >= q.max {
		q.items = q.items[1:]
		q.dropped++
		if q.dropped == 1 || q.dropped%1000 == 0 {
			logger.WithComponent("control").Warn().
				Uint64("dropped", q.dropped).
				Msg("Control queue full, dropping oldest message")
		}
	}
	q.items = append(q.items, m)
}

// Drain returns every queued message in arrival order and empties the queue.
// It never blocks on the producers beyond the mutex.
func (q *Queue) Drain() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of undrained messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many messages a bounded queue discarded.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
