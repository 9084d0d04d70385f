package control

import (
	"fmt"
	"math"
	"sort"

	"github.com/bryanchriswhite/illuminate/internal/capture"
	"github.com/bryanchriswhite/illuminate/internal/logger"
	"github.com/bryanchriswhite/illuminate/internal/params"
)

// Target is what control messages act on. The engine implements it.
type Target interface {
	Params() *params.Parameters
	Select(index int) capture.Status
	Rescan() error
	SaveSettings() error
	LoadSettings() error
	Quit()
}

// Route describes one address: how many arguments it takes and what it does.
type Route struct {
	Arity       int
	Description string
	Handle      func(t Target, args []float64)
}

// Dispatcher maps addresses to routes.
type Dispatcher struct {
	target Target
	routes map[string]Route
}

// NewDispatcher creates a dispatcher with the installation's address table.
func NewDispatcher(target Target) *Dispatcher {
	return &Dispatcher{target: target, routes: DefaultRoutes()}
}

// DefaultRoutes returns the address table. Normalised [0,1] controls are
// scaled into each parameter's natural range here.
func DefaultRoutes() map[string]Route {
	return map[string]Route{
		"/1/zoom": {1, "camera distance, 0..1 maps to 50..1500", func(t Target, a []float64) {
			t.Params().SetZoom(params.MinZoom + a[0]*(params.MaxZoom-params.MinZoom))
		}},
		"/1/move": {2, "x,y pad: y moves left to right, x top to bottom", func(t Target, a []float64) {
			t.Params().SetMove(a[1]*params.MaxMove, a[0]*params.MaxMove)
		}},
		"/1/skew": {1, "skew, -1..1 maps to -85..85", func(t Target, a []float64) {
			t.Params().SetSkew(a[0] * params.MaxSkew)
		}},
		"/1/horz_flip": {1, "mirror horizontally when non-zero", func(t Target, a []float64) {
			t.Params().SetFlipHorz(a[0] != 0)
		}},
		"/1/vert_flip": {1, "mirror vertically when non-zero", func(t Target, a []float64) {
			t.Params().SetFlipVert(a[0] != 0)
		}},
		"/1/frame_skip": {1, "frames between decay steps", func(t Target, a []float64) {
			t.Params().SetFrameSkip(int(math.Max(0, math.Min(a[0], params.MaxFrameSkip))))
		}},
		"/1/blur_switch": {1, "trails on when non-zero", func(t Target, a []float64) {
			t.Params().SetBlur(a[0] != 0)
		}},
		"/1/blur_amt": {1, "trail feedback 0..1", func(t Target, a []float64) {
			t.Params().SetFeedback(a[0])
		}},
		"/1/col_rot_switch": {1, "hue rotation on when non-zero", func(t Target, a []float64) {
			t.Params().SetHueRotation(a[0] != 0)
		}},
		"/1/col_rot_speed": {1, "hue rotation speed 0..1", func(t Target, a []float64) {
			t.Params().SetHueSpeed(a[0])
		}},
		"/1/col_rot_center": {1, "hue oscillation centre 0..1", func(t Target, a []float64) {
			t.Params().SetHueCenter(a[0])
		}},
		"/1/col_rot_width": {1, "hue oscillation width 0..1", func(t Target, a []float64) {
			t.Params().SetHueWidth(a[0])
		}},
		"/1/new_frame_mix": {1, "slider 0..1, live frame share is 1 minus the value", func(t Target, a []float64) {
			t.Params().SetNewFrameMix(1 - a[0])
		}},
		"/1/camera": {1, "select source by index", func(t Target, a []float64) {
			t.Select(int(math.Max(-1, math.Min(a[0], math.MaxInt32))))
		}},
		"/1/rescan": {0, "re-enumerate capture devices", func(t Target, _ []float64) {
			if err := t.Rescan(); err != nil {
				logger.WithComponent("control").Error().Err(err).Msg("Rescan failed")
			}
		}},
		"/1/save": {0, "write parameters to the settings file", func(t Target, _ []float64) {
			if err := t.SaveSettings(); err != nil {
				logger.WithComponent("control").Error().Err(err).Msg("Save failed")
			}
		}},
		"/1/load": {0, "restore parameters from the settings file", func(t Target, _ []float64) {
			if err := t.LoadSettings(); err != nil {
				logger.WithComponent("control").Error().Err(err).Msg("Load failed")
			}
		}},
		"/1/quit": {0, "stop the installation", func(t Target, _ []float64) {
			t.Quit()
		}},
	}
}

// Dispatch applies one message. It returns an error describing why the
// message was ignored; the caller only logs it.
func (d *Dispatcher) Dispatch(m Message) error {
	log := logger.WithComponent("control")

	route, ok := d.routes[m.Address]
	if !ok {
		types := make([]string, len(m.Args))
		for i, a := range m.Args {
			types[i] = fmt.Sprintf("%T", a)
		}
		log.Warn().
			Str("address", m.Address).
			Int("args", len(m.Args)).
			Strs("types", types).
			Msg("Unknown control address")
		return fmt.Errorf("unknown address %q", m.Address)
	}

	if len(m.Args) != route.Arity {
		log.Warn().
			Str("address", m.Address).
			Int("args", len(m.Args)).
			Int("want", route.Arity).
			Msg("Wrong argument count")
		return fmt.Errorf("%s: expected %d arguments, got %d", m.Address, route.Arity, len(m.Args))
	}

	args := make([]float64, len(m.Args))
	for i, a := range m.Args {
		v, err := toFloat(a)
		if err != nil {
			log.Warn().Str("address", m.Address).Int("arg", i).Err(err).Msg("Bad argument")
			return fmt.Errorf("%s: argument %d: %w", m.Address, i, err)
		}
		args[i] = v
	}

	route.Handle(d.target, args)
	log.Debug().Str("msg", m.String()).Msg("Applied control message")
	return nil
}

// DispatchAll applies messages in order.
func (d *Dispatcher) DispatchAll(msgs []Message) {
	for _, m := range msgs {
		_ = d.Dispatch(m)
	}
}

// Addresses lists the known addresses in sorted order.
func (d *Dispatcher) Addresses() []string {
	out := make([]string, 0, len(d.routes))
	for addr := range d.routes {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Routes returns the route table.
func (d *Dispatcher) Routes() map[string]Route {
	return d.routes
}

func toFloat(a interface{}) (float64, error) {
	var v float64
	switch x := a.(type) {
	case float32:
		v = float64(x)
	case float64:
		v = x
	case int32:
		v = float64(x)
	case int64:
		v = float64(x)
	case int:
		v = float64(x)
	case bool:
		if x {
			v = 1
		}
	default:
		return 0, fmt.Errorf("unsupported argument type %T", a)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite argument %v", v)
	}
	return v, nil
}
