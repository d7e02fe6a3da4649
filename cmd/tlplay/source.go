package main

import (
	"context"
	"sync"

	"github.com/mantonx/tlplay/internal/compare"
	"github.com/mantonx/tlplay/internal/outputdevice"
	"github.com/mantonx/tlplay/internal/player"
	"github.com/mantonx/tlplay/internal/requestqueue"
	"github.com/mantonx/tlplay/pkg/imageio"
)

// playerSource adapts a Player and its compare.Pipeline to
// outputdevice.Source: it watches the player's VideoData/AudioData
// observables, runs every new video frame through the compare pipeline,
// and hands the device whatever composited result is newest.
type playerSource struct {
	player  *player.Player
	compare *compare.Pipeline

	mu        sync.Mutex
	video     compare.Result
	haveVideo bool
	audio     requestqueue.AudioResult
	haveAudio bool
}

func newPlayerSource(p *player.Player, cmp *compare.Pipeline) *playerSource {
	s := &playerSource{player: p, compare: cmp}

	videoCh, _ := p.VideoData.Subscribe()
	audioCh, _ := p.AudioData.Subscribe()

	go func() {
		for result := range videoCh {
			composed, err := cmp.Advance(context.Background(), p.CurrentTime.Value(), result, compare.Options{})
			if err != nil {
				continue
			}
			s.mu.Lock()
			s.video = composed
			s.haveVideo = true
			s.mu.Unlock()
		}
	}()

	go func() {
		for result := range audioCh {
			s.mu.Lock()
			s.audio = result
			s.haveAudio = true
			s.mu.Unlock()
		}
	}()

	return s
}

func (s *playerSource) CurrentVideo() (compare.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.haveVideo
	s.haveVideo = false
	return s.video, had
}

func (s *playerSource) CurrentAudio() (requestqueue.AudioResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.haveAudio
	s.haveAudio = false
	return s.audio, had
}

func (s *playerSource) ViewTransform() outputdevice.ViewTransform {
	return outputdevice.ViewTransform{Zoom: 1}
}

func (s *playerSource) ColorOptions() outputdevice.ColorOptions {
	return outputdevice.ColorOptions{}
}

func (s *playerSource) Overlay() *imageio.Image { return nil }

func (s *playerSource) Volume() (level float64, muted bool, audioOffsetSeconds float64) {
	return 1, false, 0
}
