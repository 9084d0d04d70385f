package capture

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/illuminate/internal/compositor"
	"github.com/bryanchriswhite/illuminate/internal/logger"
)

// PatternPrefix marks device IDs served by the built-in test pattern.
const PatternPrefix = "pattern:"

// IsPattern reports whether id names a test-pattern device.
func IsPattern(id string) bool {
	return strings.HasPrefix(id, PatternPrefix)
}

// PatternEnumerator reports a single synthetic device, optionally after
// the devices of another enumerator.
type PatternEnumerator struct {
	Next Enumerator
}

// Devices implements Enumerator.
func (e PatternEnumerator) Devices() ([]Device, error) {
	var devices []Device
	if e.Next != nil {
		found, err := e.Next.Devices()
		if err != nil {
			return nil, err
		}
		devices = append(devices, found...)
	}
	return append(devices, Device{ID: PatternPrefix + "0", Name: "Test Pattern"}), nil
}

// PatternStream renders a moving colour gradient with a bouncing white bar.
type PatternStream struct {
	desc     Descriptor
	interval time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
	slot     frameSlot
}

// NewPatternStream creates a pattern stream producing fps frames per second.
func NewPatternStream(d Descriptor, fps int) (*PatternStream, error) {
	if d.Width <= 0 || d.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrUnsupportedMode, d.Width, d.Height)
	}
	if fps <= 0 {
		fps = 30
	}
	return &PatternStream{
		desc:     d,
		interval: time.Second / time.Duration(fps),
	}, nil
}

// Start implements Stream.
func (p *PatternStream) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("pattern already running")
	}

	p.running = true
	p.stopChan = make(chan struct{})
	p.done = make(chan struct{})

	// One frame up front so the first poll after Start has something.
	buf := make([]byte, p.desc.Width*p.desc.Height*4)
	renderPattern(buf, p.desc.Width, p.desc.Height, 0)
	_ = p.slot.storeRGBA(buf, p.desc.Width, p.desc.Height, p.desc.Width*4)

	go p.run(buf, p.stopChan, p.done)

	logger.WithComponent("pattern").Info().
		Str("source", p.desc.Label()).
		Dur("interval", p.interval).
		Msg("Test pattern started")
	return nil
}

func (p *PatternStream) run(buf []byte, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	frame := 1
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			renderPattern(buf, p.desc.Width, p.desc.Height, frame)
			_ = p.slot.storeRGBA(buf, p.desc.Width, p.desc.Height, p.desc.Width*4)
			frame++
		}
	}
}

// Stop implements Stream.
func (p *PatternStream) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopChan)
	done := p.done
	p.mu.Unlock()

	<-done
	logger.WithComponent("pattern").Info().Msg("Test pattern stopped")
	return nil
}

// Poll implements Stream.
func (p *PatternStream) Poll(dst *compositor.Frame, since uint64) (uint64, bool) {
	return p.slot.poll(dst, since)
}

// Err implements Stream. The pattern never fails once started.
func (p *PatternStream) Err() error { return nil }

// renderPattern fills an RGBA buffer for animation step t.
func renderPattern(buf []byte, width, height, t int) {
	barX := t * 4 % (2 * width)
	if barX >= width {
		barX = 2*width - barX - 1
	}
	barW := width / 16
	if barW < 1 {
		barW = 1
	}

	for y := 0; y < height; y++ {
		row := buf[y*width*4:]
		for x := 0; x < width; x++ {
			i := x * 4
			if x >= barX && x < barX+barW {
				row[i], row[i+1], row[i+2] = 255, 255, 255
			} else {
				row[i] = uint8((x + t) * 255 / width)
				row[i+1] = uint8(y * 255 / height)
				row[i+2] = uint8((x + y + 2*t) & 0xff)
			}
			row[i+3] = 255
		}
	}
}
