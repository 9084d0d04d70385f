package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/illuminate/internal/compositor"
	"github.com/bryanchriswhite/illuminate/internal/logger"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// startTimeout bounds how long Start waits for the pipeline to reach PLAYING.
const startTimeout = 3 * time.Second

var gstInit sync.Once

// GstStream captures a V4L2 camera through an in-process GStreamer pipeline.
type GstStream struct {
	desc Descriptor
	fps  int

	mu       sync.RWMutex
	pipeline *gst.Pipeline
	appsink  *app.Sink
	running  bool
	err      error
	stopChan chan struct{}
	done     chan struct{}
	slot     frameSlot
}

// NewGstStream creates a stream for d. Nothing is opened until Start.
func NewGstStream(d Descriptor, fps int) (*GstStream, error) {
	if d.Width <= 0 || d.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrUnsupportedMode, d.Width, d.Height)
	}
	return &GstStream{desc: d, fps: fps}, nil
}

// PipelineString returns the gst-launch description used for d.
func PipelineString(d Descriptor, fps int) string {
	caps := fmt.Sprintf("video/x-raw,width=%d,height=%d", d.Width, d.Height)
	if fps > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", fps)
	}
	return fmt.Sprintf(
		"v4l2src device=%s do-timestamp=true ! "+
			"%s ! "+
			"videoconvert ! "+
			"video/x-raw,format=RGBA",
		d.DeviceID, caps,
	)
}

// Start builds the pipeline, sets it to PLAYING and waits until it either
// plays or reports an error.
func (s *GstStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("pipeline already running")
	}

	log := logger.WithComponent("gstreamer")

	gstInit.Do(func() { gst.Init(nil) })

	pipelineStr := PipelineString(s.desc, s.fps) +
		" ! appsink name=sink emit-signals=false max-buffers=2 drop=true"

	log.Debug().Str("pipeline", pipelineStr).Msg("Creating GStreamer pipeline")

	pipeline, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	sinkElement, err := pipeline.GetElementByName("sink")
	if err != nil {
		pipeline.Unref()
		return fmt.Errorf("failed to get appsink: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		pipeline.Unref()
		return classifyMessage(err.Error())
	}

	if err := waitForPlaying(pipeline, startTimeout); err != nil {
		pipeline.SetState(gst.StateNull)
		pipeline.Unref()
		return err
	}

	s.pipeline = pipeline
	s.appsink = app.SinkFromElement(sinkElement)
	s.running = true
	s.err = nil
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.pollSamples(s.stopChan, s.done)

	log.Info().
		Str("device", s.desc.DeviceID).
		Int("width", s.desc.Width).
		Int("height", s.desc.Height).
		Msg("GStreamer pipeline started")

	return nil
}

// waitForPlaying drains the bus until the pipeline reports PLAYING, an
// error, or the timeout passes. A timeout is not treated as failure: some
// cameras take a while to deliver their first buffer.
func waitForPlaying(pipeline *gst.Pipeline, timeout time.Duration) error {
	bus := pipeline.GetPipelineBus()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			return busError(msg)
		case gst.MessageEOS:
			return fmt.Errorf("%w: end of stream before first frame", ErrDeviceUnavailable)
		case gst.MessageStateChanged:
			if msg.Source() != pipeline.GetName() {
				continue
			}
			if _, newState := msg.ParseStateChanged(); newState == gst.StatePlaying {
				return nil
			}
		}
	}
	return nil
}

func busError(msg *gst.Message) error {
	gerr := msg.ParseError()
	if gerr == nil {
		return errors.New("unknown pipeline error")
	}
	logger.WithComponent("gstreamer").Error().
		Str("error", gerr.Error()).
		Str("debug", gerr.DebugString()).
		Str("source", msg.Source()).
		Msg("Pipeline error")
	return classifyMessage(gerr.Error() + ": " + gerr.DebugString())
}

// pollSamples pulls samples from the appsink and watches the bus. It
// exits on stop or when the pipeline reports an error or end of stream.
func (s *GstStream) pollSamples(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	log := logger.WithComponent("gstreamer")
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	s.mu.RLock()
	appsink := s.appsink
	bus := s.pipeline.GetPipelineBus()
	s.mu.RUnlock()

	for {
		select {
		case <-stop:
			log.Debug().Msg("Sample polling stopped")
			return
		case <-ticker.C:
		}

		if msg := bus.Pop(); msg != nil {
			switch msg.Type() {
			case gst.MessageError:
				s.fail(busError(msg))
				return
			case gst.MessageEOS:
				s.fail(fmt.Errorf("%w: end of stream", ErrDeviceUnavailable))
				return
			}
		}

		sample := appsink.TryPullSample(time.Millisecond)
		if sample == nil {
			continue
		}
		s.processSample(sample)
	}
}

func (s *GstStream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// processSample copies the RGBA payload of a sample into the frame slot.
func (s *GstStream) processSample(sample *gst.Sample) {
	buffer := sample.GetBuffer()
	if buffer == nil {
		return
	}

	caps := sample.GetCaps()
	if caps == nil {
		return
	}
	structure := caps.GetStructureAt(0)
	if structure == nil {
		return
	}

	width, _ := structure.GetValue("width")
	height, _ := structure.GetValue("height")
	w, ok := width.(int)
	if !ok {
		return
	}
	h, ok := height.(int)
	if !ok {
		return
	}

	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return
	}
	defer buffer.Unmap()

	if err := s.slot.storeRGBA(mapInfo.Bytes(), w, h, w*4); err != nil {
		logger.WithComponent("gstreamer").Warn().Err(err).Msg("Dropping malformed sample")
	}
}

// Stop implements Stream.
func (s *GstStream) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	if s.pipeline != nil {
		s.pipeline.SetState(gst.StateNull)
		s.pipeline.Unref()
		s.pipeline = nil
		s.appsink = nil
	}
	s.mu.Unlock()

	logger.WithComponent("gstreamer").Info().Str("device", s.desc.DeviceID).Msg("GStreamer pipeline stopped")
	return nil
}

// Poll implements Stream.
func (s *GstStream) Poll(dst *compositor.Frame, since uint64) (uint64, bool) {
	return s.slot.poll(dst, since)
}

// Err implements Stream.
func (s *GstStream) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
