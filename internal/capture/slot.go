package capture

import (
	"sync"

	"github.com/bryanchriswhite/illuminate/internal/compositor"
)

// frameSlot holds the most recent frame delivered by a backend. Older frames are
// overwritten; the reader only ever sees the newest one.
type frameSlot struct {
	mu    sync.Mutex
	frame compositor.Frame
	seq   uint64
}

func (s *frameSlot) storeRGBA(data []byte, width, height, stride int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.frame.FromRGBA(data, width, height, stride); err != nil {
		return err
	}
	s.seq++
	return nil
}

func (s *frameSlot) poll(dst *compositor.Frame, since uint64) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seq == 0 || s.seq <= since {
		return s.seq, false
	}
	dst.Assign(&s.frame)
	return s.seq, true
}
