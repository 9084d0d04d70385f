package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryanchriswhite/illuminate/internal/compositor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNode(t *testing.T, root, node, name, index string) {
	t.Helper()
	dir := filepath.Join(root, node)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "name"), []byte(name+"\n"), 0o644))
	if index != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "index"), []byte(index+"\n"), 0o644))
	}
}

func TestV4L2Enumerator(t *testing.T) {
	root := t.TempDir()
	writeNode(t, root, "video10", "USB Cam", "0")
	writeNode(t, root, "video2", "HD Webcam", "0")
	writeNode(t, root, "video3", "HD Webcam", "1")
	writeNode(t, root, "video0", "Integrated", "")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "v4l-subdev0"), 0o755))

	e := &V4L2Enumerator{SysfsRoot: root, DevRoot: "/dev"}
	got, err := e.Devices()
	require.NoError(t, err)

	assert.Equal(t, []Device{
		{ID: "/dev/video0", Name: "Integrated"},
		{ID: "/dev/video2", Name: "HD Webcam"},
		{ID: "/dev/video10", Name: "USB Cam"},
	}, got)
}

func TestV4L2Enumerator_MissingRoot(t *testing.T) {
	e := &V4L2Enumerator{SysfsRoot: filepath.Join(t.TempDir(), "absent"), DevRoot: "/dev"}
	got, err := e.Devices()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPatternEnumerator(t *testing.T) {
	got, err := PatternEnumerator{Next: threeCameras()}.Devices()
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.True(t, IsPattern(got[3].ID))
	assert.False(t, IsPattern(got[0].ID))
}

func TestPatternStream(t *testing.T) {
	d := Descriptor{DeviceID: PatternPrefix + "0", Name: "Test Pattern", Width: 64, Height: 48}
	s, err := NewPatternStream(d, 200)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Stop()

	dst := &compositor.Frame{}
	seq, ok := s.Poll(dst, 0)
	require.True(t, ok)
	assert.Equal(t, 64, dst.Width)
	assert.Equal(t, 48, dst.Height)
	assert.Len(t, dst.Pix, 64*48*compositor.BytesPerPixel)

	assert.Eventually(t, func() bool {
		_, ok := s.Poll(dst, seq)
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.NoError(t, s.Err())
}

func TestNewOpener_RoutesPatternDevices(t *testing.T) {
	open := NewOpener(BackendGst, 30)
	s, err := open(Descriptor{DeviceID: PatternPrefix + "0", Width: 8, Height: 8})
	require.NoError(t, err)
	assert.IsType(t, &PatternStream{}, s)

	open = NewOpener(BackendSubprocess, 30)
	s, err = open(Descriptor{DeviceID: "/dev/video0", Width: 640, Height: 480})
	require.NoError(t, err)
	assert.IsType(t, &SubprocessStream{}, s)
}

func TestSubprocessArgs(t *testing.T) {
	s, err := NewSubprocessStream(Descriptor{DeviceID: "/dev/video2", Width: 640, Height: 480}, 30)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"-q",
		"v4l2src", "device=/dev/video2", "do-timestamp=true", "!",
		"video/x-raw,width=640,height=480,framerate=30/1", "!",
		"videoconvert", "!",
		"video/x-raw,format=RGBA",
		"!", "fdsink", "fd=1", "sync=false",
	}, s.Args())
}

func TestSubprocessStream_MissingBinary(t *testing.T) {
	old := GstLaunchBinary
	GstLaunchBinary = filepath.Join(t.TempDir(), "no-such-gst-launch")
	defer func() { GstLaunchBinary = old }()

	s, err := NewSubprocessStream(Descriptor{DeviceID: "/dev/video0", Width: 4, Height: 4}, 0)
	require.NoError(t, err)
	err = s.Start()
	require.Error(t, err)
	assert.Equal(t, StatusDeviceUnavailable, Classify(err))
}

func TestNewStreams_RejectEmptyMode(t *testing.T) {
	_, err := NewGstStream(Descriptor{DeviceID: "/dev/video0"}, 30)
	assert.ErrorIs(t, err, ErrUnsupportedMode)
	_, err = NewPatternStream(Descriptor{}, 30)
	assert.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestClassifyNil(t *testing.T) {
	assert.Equal(t, StatusOK, Classify(nil))
}
