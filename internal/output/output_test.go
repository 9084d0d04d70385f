package output

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/illuminate/internal/compositor"
	"github.com/bryanchriswhite/illuminate/internal/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidFrame(w, h int, r, g, b uint8) *compositor.Frame {
	f := compositor.NewFrame(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Set(x, y, r, g, b)
		}
	}
	return f
}

func TestRenderer_FillsFittedArea(t *testing.T) {
	r := NewRenderer(nil)
	frame := solidFrame(64, 48, 200, 10, 10)

	// Fitted rect covers the left half only.
	img := r.Render(frame, layout.Rect{X0: 0, Y0: 0, X1: 50, Y1: 60}, 100, 60)
	require.Equal(t, 100, img.Rect.Dx())

	inside := img.RGBAAt(25, 30)
	assert.InDelta(t, 200, float64(inside.R), 1)
	outside := img.RGBAAt(75, 30)
	assert.Equal(t, uint8(0), outside.R)
	assert.Equal(t, uint8(255), outside.A)
}

func TestRenderer_OverflowIsClipped(t *testing.T) {
	r := NewRenderer(nil)
	frame := solidFrame(64, 48, 10, 200, 10)

	img := r.Render(frame, layout.Fit(64, 48, 80, 90), 80, 90)
	assert.InDelta(t, 200, float64(img.RGBAAt(79, 89).G), 1)
}

func TestRenderer_InvalidFrameIsBlack(t *testing.T) {
	r := NewRenderer(nil)
	img := r.Render(&compositor.Frame{}, layout.Rect{X1: 10, Y1: 10}, 10, 10)
	assert.Equal(t, uint8(0), img.RGBAAt(5, 5).R)
}

func TestMJPEG_PresentRequiresStart(t *testing.T) {
	m := NewMJPEGOutput(MJPEGConfig{Config: Config{Width: 32, Height: 24, FPS: 0}})
	assert.Error(t, m.Present(solidFrame(4, 4, 1, 2, 3), layout.Fit(4, 4, 32, 24)))

	require.NoError(t, m.Start())
	assert.Error(t, m.Start())
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
}

func TestMJPEG_StreamsToClient(t *testing.T) {
	m := NewMJPEGOutput(MJPEGConfig{
		Config:  Config{Width: 32, Height: 24},
		Quality: 70,
		HUD:     func() []string { return []string{"cam"} },
	})
	require.NoError(t, m.Start())
	defer m.Stop()

	srv := httptest.NewServer(m.GetHTTPHandler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "multipart/x-mixed-replace")

	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	frame := solidFrame(16, 12, 255, 0, 0)
	require.NoError(t, m.Present(frame, layout.Fit(16, 12, 32, 24)))

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame", strings.TrimSpace(line))
	assert.NotNil(t, m.Latest())
}

func TestMJPEG_NoClientsSkipsEncoding(t *testing.T) {
	m := NewMJPEGOutput(MJPEGConfig{Config: Config{Width: 32, Height: 24}})
	require.NoError(t, m.Start())
	defer m.Stop()

	require.NoError(t, m.Present(solidFrame(4, 4, 9, 9, 9), layout.Fit(4, 4, 32, 24)))
	assert.Nil(t, m.Latest())
}

func TestMJPEG_Handlers(t *testing.T) {
	m := NewMJPEGOutput(MJPEGConfig{Config: Config{Width: 32, Height: 24, FPS: 30}})
	require.NoError(t, m.Start())
	defer m.Stop()

	rec := httptest.NewRecorder()
	m.GetStatsHandler()(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Contains(t, rec.Body.String(), "Running")
	assert.Contains(t, rec.Body.String(), "32x24 @ 30 FPS")

	rec = httptest.NewRecorder()
	m.GetSnapshotHandler()(rec, httptest.NewRequest(http.MethodGet, "/snapshot.jpg", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	m.GetViewerHandler()(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "/api/control/ws")
}
