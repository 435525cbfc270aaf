package liveview

import (
	"bytes"
	"sync"
	"testing"

	"github.com/danmuck/lvstream/internal/protocol/frame"
)

type recorder struct {
	mu        sync.Mutex
	images    []ImagePacket
	focus     []FocusRegionSet
	playback  []PlaybackStatusPacket
	closed    int
	closedSig chan struct{}
}

func newRecorder() *recorder {
	return &recorder{closedSig: make(chan struct{}, 8)}
}

func (r *recorder) OnImage(p ImagePacket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = append(r.images, p)
}

func (r *recorder) OnFocusRegions(p FocusRegionSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.focus = append(r.focus, p)
}

func (r *recorder) OnPlaybackStatus(p PlaybackStatusPacket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playback = append(r.playback, p)
}

func (r *recorder) OnClosed() {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
	r.closedSig <- struct{}{}
}

func (r *recorder) counts() (images, focus, playback, closed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.images), len(r.focus), len(r.playback), r.closed
}

func writeFrame(t *testing.T, buf *bytes.Buffer, f frame.Frame) {
	t.Helper()
	if err := frame.WriteFrame(buf, f); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func imageFrame(width, height uint16, payload []byte, padding int) frame.Frame {
	return frame.Frame{
		Header:  frame.CommonHeader{Type: frame.TypeLiveImage},
		Fields:  frame.ImageFields(width, height),
		Payload: payload,
		Padding: padding,
	}
}

func focusFrame(major, minor uint8, records []frame.FocusRecord, size int) frame.Frame {
	return frame.Frame{
		Header:  frame.CommonHeader{Type: frame.TypeFocusInfo},
		Fields:  frame.FocusFields(major, minor, uint16(len(records)), uint16(size)),
		Payload: frame.EncodeFocusRecords(records, size),
	}
}

func playbackFrame(major, minor uint8, durationMS, positionMS uint32) frame.Frame {
	return frame.Frame{
		Header:  frame.CommonHeader{Type: frame.TypePlaybackInfo},
		Fields:  frame.PlaybackFields(major, minor),
		Payload: frame.EncodePlaybackInfo(durationMS, positionMS),
		Padding: 8,
	}
}
