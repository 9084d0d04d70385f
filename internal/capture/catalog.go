package capture

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/illuminate/internal/logger"
)

// Enumerator lists the capture devices currently present.
type Enumerator interface {
	Devices() ([]Device, error)
}

// Prober checks whether a descriptor can actually be opened.
type Prober interface {
	Probe(d Descriptor) error
}

// EnumerateMode controls which descriptors make it into the catalog.
type EnumerateMode string

const (
	// EnumerateProbe lists only descriptors whose probe succeeds.
	EnumerateProbe EnumerateMode = "probe"
	// EnumerateAll lists every present device and defers failures to selection.
	EnumerateAll EnumerateMode = "all"
)

// ParseEnumerateMode validates a mode name.
func ParseEnumerateMode(s string) (EnumerateMode, error) {
	switch EnumerateMode(s) {
	case EnumerateProbe, EnumerateAll:
		return EnumerateMode(s), nil
	case "":
		return EnumerateAll, nil
	default:
		return "", fmt.Errorf("unknown enumerate mode %q (want %q or %q)", s, EnumerateProbe, EnumerateAll)
	}
}

// Catalog is the ordered list of selectable sources. Indices are stable
// until the next Enumerate call.
type Catalog struct {
	enumerator  Enumerator
	prober      Prober
	mode        EnumerateMode
	resolutions []Resolution

	mu      sync.RWMutex
	entries []Descriptor
}

// NewCatalog creates an empty catalog. Call Enumerate to populate it.
func NewCatalog(enumerator Enumerator, prober Prober, mode EnumerateMode, resolutions []Resolution) *Catalog {
	res := append([]Resolution(nil), resolutions...)
	if len(res) == 0 {
		res = []Resolution{{Width: 640, Height: 480}}
	}
	SortResolutions(res)

	return &Catalog{
		enumerator:  enumerator,
		prober:      prober,
		mode:        mode,
		resolutions: res,
	}
}

// Enumerate rebuilds the catalog: devices in discovery order, each crossed
// with the configured resolutions in ascending order.
func (c *Catalog) Enumerate() ([]Descriptor, error) {
	log := logger.WithComponent("catalog")

	devices, err := c.enumerator.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	entries := make([]Descriptor, 0, len(devices)*len(c.resolutions))
	for _, dev := range devices {
		for _, res := range c.resolutions {
			d := Descriptor{
				DeviceID: dev.ID,
				Name:     dev.Name,
				Width:    res.Width,
				Height:   res.Height,
			}

			if c.mode == EnumerateProbe && c.prober != nil {
				if err := c.prober.Probe(d); err != nil {
					log.Warn().
						Err(err).
						Str("device", d.Name).
						Str("id", d.DeviceID).
						Str("resolution", res.String()).
						Msg("Skipping source that failed to open")
					continue
				}
			}
			entries = append(entries, d)
		}
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()

	for i, d := range entries {
		log.Info().Int("index", i).Str("source", d.Label()).Msg("Found source")
	}
	if len(entries) == 0 {
		log.Warn().Msg("No capture sources found")
	}

	return c.All(), nil
}

// Rescan re-enumerates devices. The previous list is kept on error.
func (c *Catalog) Rescan() error {
	_, err := c.Enumerate()
	return err
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// At returns the descriptor at index i.
func (c *Catalog) At(i int) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.entries) {
		return Descriptor{}, false
	}
	return c.entries[i], true
}

// All returns a copy of every descriptor.
func (c *Catalog) All() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Descriptor(nil), c.entries...)
}

// FindByName returns the index of the first descriptor with the given name and resolution.
func (c *Catalog) FindByName(name string, width, height int) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i, d := range c.entries {
		if d.Matches(name, width, height) {
			return i, true
		}
	}
	return -1, false
}

// StreamProber probes a descriptor by opening and immediately closing a stream.
type StreamProber struct {
	Open Opener
}

// Probe implements Prober.
func (p StreamProber) Probe(d Descriptor) error {
	stream, err := p.Open(d)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Stop()
		return err
	}
	return stream.Stop()
}
