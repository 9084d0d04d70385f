package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/illuminate/internal/compositor"
	"github.com/bryanchriswhite/illuminate/internal/logger"
)

// GstLaunchBinary is the executable used by SubprocessStream.
var GstLaunchBinary = "gst-launch-1.0"

// SubprocessStream runs the capture pipeline in a gst-launch child process
// and reads raw RGBA frames from its stdout. It avoids cgo entirely.
type SubprocessStream struct {
	desc Descriptor
	fps  int

	mu       sync.RWMutex
	cmd      *exec.Cmd
	running  bool
	err      error
	lastLine string
	stopChan chan struct{}
	exited   chan struct{}
	slot     frameSlot
}

// NewSubprocessStream creates a stream for d. Nothing is started until Start.
func NewSubprocessStream(d Descriptor, fps int) (*SubprocessStream, error) {
	if d.Width <= 0 || d.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrUnsupportedMode, d.Width, d.Height)
	}
	return &SubprocessStream{desc: d, fps: fps}, nil
}

// Args returns the gst-launch argument list.
func (g *SubprocessStream) Args() []string {
	args := []string{"-q"}
	args = append(args, strings.Fields(PipelineString(g.desc, g.fps))...)
	return append(args, "!", "fdsink", "fd=1", "sync=false")
}

// Start launches the child process. If it exits before producing a frame
// within startTimeout, its last stderr line is classified and returned.
func (g *SubprocessStream) Start() error {
	g.mu.Lock()

	if g.running {
		g.mu.Unlock()
		return fmt.Errorf("pipeline already running")
	}

	log := logger.WithComponent("gstreamer-subprocess")

	cmd := exec.Command(GstLaunchBinary, g.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		g.mu.Unlock()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		g.mu.Unlock()
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	log.Debug().Strs("args", cmd.Args).Msg("Starting GStreamer subprocess")

	if err := cmd.Start(); err != nil {
		g.mu.Unlock()
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %s not installed", ErrDeviceUnavailable, GstLaunchBinary)
		}
		return fmt.Errorf("failed to start %s: %w", GstLaunchBinary, err)
	}

	g.cmd = cmd
	g.running = true
	g.err = nil
	g.stopChan = make(chan struct{})
	g.exited = make(chan struct{})

	firstFrame := make(chan struct{})
	stderrDone := make(chan struct{})
	go g.logStderr(stderr, stderrDone)
	go g.readFrames(stdout, g.stopChan, firstFrame)
	go g.wait(stderrDone)

	exited := g.exited
	g.mu.Unlock()

	select {
	case <-firstFrame:
	case <-exited:
		g.mu.RLock()
		err := g.err
		g.mu.RUnlock()
		g.Stop()
		return err
	case <-time.After(startTimeout):
		log.Warn().Str("device", g.desc.DeviceID).Msg("No frame yet from GStreamer subprocess")
	}

	log.Info().
		Str("device", g.desc.DeviceID).
		Int("pid", cmd.Process.Pid).
		Msg("GStreamer subprocess started")
	return nil
}

// wait records why the child exited.
func (g *SubprocessStream) wait(stderrDone <-chan struct{}) {
	waitErr := g.cmd.Wait()
	<-stderrDone

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		switch {
		case g.lastLine != "":
			g.err = classifyMessage(g.lastLine)
		case waitErr != nil:
			g.err = fmt.Errorf("%s exited: %w", GstLaunchBinary, waitErr)
		default:
			g.err = fmt.Errorf("%w: %s exited", ErrDeviceUnavailable, GstLaunchBinary)
		}
	}
	close(g.exited)
}

// readFrames reads fixed-size RGBA frames from the child's stdout.
func (g *SubprocessStream) readFrames(stdout io.Reader, stop <-chan struct{}, firstFrame chan<- struct{}) {
	log := logger.WithComponent("gstreamer-subprocess")

	width, height := g.desc.Width, g.desc.Height
	frameSize := width * height * 4
	reader := bufio.NewReaderSize(stdout, frameSize*2)
	frameBuffer := make([]byte, frameSize)
	first := true

	for {
		select {
		case <-stop:
			return
		default:
		}

		if _, err := io.ReadFull(reader, frameBuffer); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				log.Error().Err(err).Msg("Error reading frame")
			}
			return
		}

		if err := g.slot.storeRGBA(frameBuffer, width, height, width*4); err != nil {
			log.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}
		if first {
			close(firstFrame)
			first = false
		}
	}
}

func (g *SubprocessStream) logStderr(stderr io.Reader, done chan<- struct{}) {
	defer close(done)

	log := logger.WithComponent("gstreamer-subprocess")
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		g.mu.Lock()
		g.lastLine = line
		g.mu.Unlock()

		if strings.Contains(line, "ERROR") || strings.Contains(line, "WARN") {
			log.Warn().Str("gst", line).Msg("GStreamer message")
		} else {
			log.Debug().Str("gst", line).Msg("GStreamer output")
		}
	}
}

// Stop kills the child process and waits for it to exit.
func (g *SubprocessStream) Stop() error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	g.running = false
	close(g.stopChan)
	cmd := g.cmd
	exited := g.exited
	g.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		logger.WithComponent("gstreamer-subprocess").Debug().Int("pid", cmd.Process.Pid).Msg("Killing GStreamer subprocess")
		_ = cmd.Process.Kill()
	}
	<-exited

	logger.WithComponent("gstreamer-subprocess").Info().Msg("GStreamer subprocess stopped")
	return nil
}

// Poll implements Stream.
func (g *SubprocessStream) Poll(dst *compositor.Frame, since uint64) (uint64, bool) {
	return g.slot.poll(dst, since)
}

// Err implements Stream.
func (g *SubprocessStream) Err() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.err
}
