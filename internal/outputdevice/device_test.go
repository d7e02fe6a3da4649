package outputdevice

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/tlplay/internal/compare"
	"github.com/mantonx/tlplay/internal/config"
	"github.com/mantonx/tlplay/internal/requestqueue"
	"github.com/mantonx/tlplay/pkg/imageio"
)

type fakeSource struct {
	mu      sync.Mutex
	video   compare.Result
	haveVid bool
}

func (s *fakeSource) setVideo(r compare.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = r
	s.haveVid = true
}

func (s *fakeSource) CurrentVideo() (compare.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.haveVid
	s.haveVid = false
	return s.video, had
}
func (s *fakeSource) CurrentAudio() (requestqueue.AudioResult, bool) { return requestqueue.AudioResult{}, false }
func (s *fakeSource) ViewTransform() ViewTransform                   { return ViewTransform{Zoom: 1} }
func (s *fakeSource) ColorOptions() ColorOptions                     { return ColorOptions{} }
func (s *fakeSource) Overlay() *imageio.Image                        { return nil }
func (s *fakeSource) Volume() (float64, bool, float64)               { return 1, false, 0 }

func newTestDevice(t *testing.T) (*Device, *fakeSource) {
	t.Helper()
	src := &fakeSource{}
	cfg := config.OutputDeviceConfig{PollFrameRate: 240}
	d := New(src, cfg)
	d.SetEnabled(true)
	d.Start()
	t.Cleanup(d.Stop)
	return d, src
}

func TestDeviceHasNoFrameBeforeFirstPoll(t *testing.T) {
	d, _ := newTestDevice(t)
	_, ok := d.CurrentFrame()
	assert.False(t, ok)
}

func TestDevicePublishesNewFrameOnPoll(t *testing.T) {
	d, src := newTestDevice(t)
	src.setVideo(compare.Result{RenderSize: compare.Box{W: 1920, H: 1080}})

	require.Eventually(t, func() bool {
		f, ok := d.CurrentFrame()
		return ok && f.Video.RenderSize.W == 1920
	}, time.Second, 5*time.Millisecond)
}

func TestDeviceRepeatsLastFrameWhenNoneAvailable(t *testing.T) {
	d, src := newTestDevice(t)
	src.setVideo(compare.Result{RenderSize: compare.Box{W: 1280, H: 720}})

	require.Eventually(t, func() bool {
		f, ok := d.CurrentFrame()
		return ok && f.Sequence > 0
	}, time.Second, 5*time.Millisecond)

	first, _ := d.CurrentFrame()
	time.Sleep(50 * time.Millisecond)
	second, _ := d.CurrentFrame()
	assert.Equal(t, first.Sequence, second.Sequence)
	assert.Equal(t, compare.Box{W: 1280, H: 720}, second.Video.RenderSize)
}

func TestSetEnabledFalseDeactivates(t *testing.T) {
	d, _ := newTestDevice(t)
	d.SetActive(true)
	d.SetEnabled(false)
	assert.False(t, d.Active.Value())
	assert.False(t, d.Enabled.Value())
}
