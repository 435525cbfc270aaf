// Package fakecam serves a synthetic liveview stream for local runs and tests.
package fakecam

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/danmuck/lvstream/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Width  uint16
	Height uint16
	// FrameInterval is the delay between image frames. Zero streams as fast as possible.
	FrameInterval time.Duration
	// Frames ends the stream after this many image frames; zero means until the client leaves.
	Frames int
	// FocusEvery emits a focus frame after every N image frames; zero disables.
	FocusEvery int
	// Playback switches image frames to the playback type and emits playback info.
	Playback         bool
	PlaybackDuration time.Duration
	// UnknownEvery emits a frame with an unassigned type after every N image frames.
	UnknownEvery int
	Padding      int
	// Image overrides the generated JPEG.
	Image []byte
}

func DefaultOptions() Options {
	return Options{
		Width:            640,
		Height:           480,
		FrameInterval:    33 * time.Millisecond,
		FocusEvery:       15,
		PlaybackDuration: 90 * time.Second,
		Padding:          8,
	}
}

// Camera is an http.Handler streaming liveview frames on every GET.
type Camera struct {
	opts     Options
	image    []byte
	requests atomic.Int64
}

func New(opts Options) *Camera {
	img := opts.Image
	if len(img) == 0 {
		img = testPattern(int(opts.Width), int(opts.Height))
	}
	return &Camera{opts: opts, image: img}
}

// Requests returns how many stream requests were served.
func (c *Camera) Requests() int64 {
	return c.requests.Load()
}

func (c *Camera) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	c.requests.Add(1)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	flush()
	if err := c.WriteStream(r.Context(), w, flush); err != nil {
		log.Debug().Err(err).Str("component", "fakecam").Msg("stream ended")
	}
}

// WriteStream writes frames to w until ctx ends, the frame budget is spent,
// or a write fails. flush may be nil.
func (c *Camera) WriteStream(ctx context.Context, w io.Writer, flush func()) error {
	var ticker *time.Ticker
	if c.opts.FrameInterval > 0 {
		ticker = time.NewTicker(c.opts.FrameInterval)
		defer ticker.Stop()
	}

	imageType := frame.TypeLiveImage
	if c.opts.Playback {
		imageType = frame.TypePlaybackImage
	}

	var seq uint16
	start := time.Now()
	for n := 1; c.opts.Frames == 0 || n <= c.opts.Frames; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := []frame.Frame{{
			Header:  frame.CommonHeader{Type: imageType},
			Fields:  frame.ImageFields(c.opts.Width, c.opts.Height),
			Payload: c.image,
			Padding: c.opts.Padding,
		}}
		if c.opts.FocusEvery > 0 && n%c.opts.FocusEvery == 0 {
			out = append(out, c.focusFrame(n))
		}
		if c.opts.Playback {
			out = append(out, c.playbackFrame(time.Since(start)))
		}
		if c.opts.UnknownEvery > 0 && n%c.opts.UnknownEvery == 0 {
			out = append(out, frame.Frame{
				Header:  frame.CommonHeader{Type: 0x7F},
				Payload: []byte("reserved"),
				Padding: c.opts.Padding,
			})
		}

		for _, f := range out {
			seq++
			f.Header.Sequence = seq
			f.Header.Timestamp = uint32(time.Since(start).Milliseconds())
			if err := frame.WriteFrame(w, f); err != nil {
				return err
			}
		}
		if flush != nil {
			flush()
		}

		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
	return nil
}

// focusFrame moves one contrast-AF region across the frame.
func (c *Camera) focusFrame(n int) frame.Frame {
	w, h := int(c.opts.Width), int(c.opts.Height)
	size := max(min(w, h)/4, 1)
	x := (n * 7) % max(w-size, 1)
	y := (n * 3) % max(h-size, 1)
	records := []frame.FocusRecord{{
		TopLeftX:         uint16(x),
		TopLeftY:         uint16(y),
		BottomRightX:     uint16(x + size),
		BottomRightY:     uint16(y + size),
		Category:         1,
		Status:           4,
		AdditionalStatus: 1,
	}}
	return frame.Frame{
		Header:  frame.CommonHeader{Type: frame.TypeFocusInfo},
		Fields:  frame.FocusFields(1, 0, uint16(len(records)), frame.FocusRecordLen),
		Payload: frame.EncodeFocusRecords(records, frame.FocusRecordLen),
		Padding: c.opts.Padding,
	}
}

func (c *Camera) playbackFrame(elapsed time.Duration) frame.Frame {
	duration := c.opts.PlaybackDuration
	position := elapsed
	if duration > 0 {
		position = elapsed % duration
	}
	return frame.Frame{
		Header:  frame.CommonHeader{Type: frame.TypePlaybackInfo},
		Fields:  frame.PlaybackFields(1, 0),
		Payload: frame.EncodePlaybackInfo(uint32(duration.Milliseconds()), uint32(position.Milliseconds())),
		Padding: c.opts.Padding,
	}
}

func testPattern(w, h int) []byte {
	w, h = max(w, 1), max(h, 1)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 0x80, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
		return []byte{0xFF, 0xD8, 0xFF, 0xD9}
	}
	return buf.Bytes()
}
