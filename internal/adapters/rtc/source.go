package rtc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/DhrubaAgarwalla/private-chat-box/internal/callctl"
)

const (
	audioFrameInterval = 20 * time.Millisecond
	videoFrameInterval = 33 * time.Millisecond
)

// silentOpusFrame decodes to 20ms of silence.
var silentOpusFrame = []byte{0xf8, 0xff, 0xfe}

// SyntheticSource produces a stream of silence and blank video. It stands in
// for real device capture in the headless peer and in tests; a browser-side
// client would bring its own capture behind the same interface.
type SyntheticSource struct{}

func (SyntheticSource) Capture(_ context.Context) (callctl.MediaStream, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "chatbox")
	if err != nil {
		return nil, err
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "chatbox")
	if err != nil {
		return nil, err
	}

	s := &Stream{
		audio: audio,
		video: video,
		done:  make(chan struct{}),
	}
	s.audioOn.Store(true)
	s.videoOn.Store(true)
	go s.pump()
	return s, nil
}

// Stream implements callctl.MediaStream over two pion sample tracks.
// Disabling a track pauses its sample writer; the transport is untouched, so
// mute never renegotiates.
type Stream struct {
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	audioOn atomic.Bool
	videoOn atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

func (s *Stream) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{s.audio, s.video}
}

func (s *Stream) SetAudioEnabled(on bool) { s.audioOn.Store(on) }
func (s *Stream) SetVideoEnabled(on bool) { s.videoOn.Store(on) }
func (s *Stream) AudioEnabled() bool      { return s.audioOn.Load() }
func (s *Stream) VideoEnabled() bool      { return s.videoOn.Load() }

func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Stream) pump() {
	audioTicker := time.NewTicker(audioFrameInterval)
	videoTicker := time.NewTicker(videoFrameInterval)
	defer audioTicker.Stop()
	defer videoTicker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-audioTicker.C:
			if !s.audioOn.Load() {
				continue
			}
			_ = s.audio.WriteSample(media.Sample{Data: silentOpusFrame, Duration: audioFrameInterval})
		case <-videoTicker.C:
			if !s.videoOn.Load() {
				continue
			}
			_ = s.video.WriteSample(media.Sample{Data: blankVP8Frame(), Duration: videoFrameInterval})
		}
	}
}

// blankVP8Frame is a minimal keyframe-shaped payload; remote decoders show
// black. Good enough for a headless peer that only needs media to flow.
func blankVP8Frame() []byte {
	return []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x10, 0x00, 0x10, 0x00}
}
