package capture

import (
	"errors"
	"sync"

	"github.com/bryanchriswhite/illuminate/internal/compositor"
)

type fakeEnumerator struct {
	devices []Device
	err     error
}

func (e fakeEnumerator) Devices() ([]Device, error) { return e.devices, e.err }

type fakeProber struct {
	fail map[string]bool
}

func (p fakeProber) Probe(d Descriptor) error {
	if p.fail[d.DeviceID] {
		return errors.New("device busy")
	}
	return nil
}

// fakeStream records its lifecycle into a shared event log.
type fakeStream struct {
	desc     Descriptor
	events   *[]string
	mu       *sync.Mutex
	startErr error

	running bool
	err     error
	seq     uint64
	frame   *compositor.Frame
}

func (f *fakeStream) log(ev string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.events = append(*f.events, ev+" "+f.desc.DeviceID)
}

func (f *fakeStream) Start() error {
	f.log("start")
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeStream) Stop() error {
	if f.running {
		f.log("stop")
	}
	f.running = false
	return nil
}

func (f *fakeStream) Poll(dst *compositor.Frame, since uint64) (uint64, bool) {
	if f.frame == nil || f.seq <= since {
		return f.seq, false
	}
	dst.Assign(f.frame)
	return f.seq, true
}

func (f *fakeStream) Err() error { return f.err }

// push publishes a new frame of the given size.
func (f *fakeStream) push(w, h int) {
	f.frame = compositor.NewFrame(w, h)
	f.seq++
}

type fakeBackend struct {
	mu       sync.Mutex
	events   []string
	startErr map[string]error
	streams  []*fakeStream
}

func (b *fakeBackend) open(d Descriptor) (Stream, error) {
	s := &fakeStream{desc: d, events: &b.events, mu: &b.mu, startErr: b.startErr[d.DeviceID]}
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *fakeBackend) last() *fakeStream {
	return b.streams[len(b.streams)-1]
}

func threeCameras() fakeEnumerator {
	return fakeEnumerator{devices: []Device{
		{ID: "/dev/video0", Name: "Cam A"},
		{ID: "/dev/video2", Name: "Cam B"},
		{ID: "/dev/video4", Name: "Cam C"},
	}}
}
