package liveview

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/lvstream/internal/observability"
	"github.com/danmuck/lvstream/internal/protocol/frame"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Analyzer demultiplexes a liveview byte stream into packets. It is not safe
// for concurrent ReadNextPayload calls; the stream is strictly sequential.
type Analyzer struct {
	reader  *exactReader
	handler PacketHandler
	logger  zerolog.Logger

	alive     func() bool
	packets   atomic.Int64
	done      chan struct{}
	closeOnce sync.Once

	fpsInterval time.Duration
	fpsReport   func(fps float64)

	commonHeader  [frame.CommonHeaderLen]byte
	payloadHeader [frame.PayloadHeaderLen]byte
}

// NewAnalyzer reads frames from r while alive reports true. A nil alive keeps
// the analyzer running until Close.
func NewAnalyzer(r io.Reader, handler PacketHandler, cfg Config, alive func() bool) *Analyzer {
	cfg = cfg.WithDefaults()
	if handler == nil {
		handler = HandlerFuncs{}
	}
	a := &Analyzer{
		handler:     handler,
		logger:      log.With().Str("component", "liveview.analyzer").Logger(),
		done:        make(chan struct{}),
		fpsInterval: cfg.FpsInterval,
		alive:       alive,
	}
	a.reader = newExactReader(r, cfg.ReadBufferSize, a.IsOpen)
	a.fpsReport = a.logFPS
	return a
}

// IsOpen reports whether the stream is still wanted: the caller's predicate
// holds and Close has not been called.
func (a *Analyzer) IsOpen() bool {
	select {
	case <-a.done:
		return false
	default:
	}
	return a.alive == nil || a.alive()
}

// Close stops the fps ticker and makes later reads fail with ErrCancelled.
// The underlying stream is owned by the caller.
func (a *Analyzer) Close() {
	a.closeOnce.Do(func() {
		close(a.done)
	})
}

// ReadNextPayload reads exactly one frame and emits at most one packet.
// Unsupported payload types and sub-format versions are consumed silently.
func (a *Analyzer) ReadNextPayload() error {
	if err := a.reader.ReadFull(a.commonHeader[:]); err != nil {
		return err
	}
	common, err := frame.DecodeCommonHeader(a.commonHeader[:])
	if err != nil {
		a.logger.Warn().Err(err).Msg("unexpected common header")
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	if err := a.reader.ReadFull(a.payloadHeader[:]); err != nil {
		return err
	}
	header, err := frame.DecodePayloadHeader(a.payloadHeader[:])
	if err != nil {
		a.logger.Warn().Err(err).Msg("unexpected payload header")
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	payload, err := a.reader.ReadBytes(header.DataSize)
	if err != nil {
		return err
	}
	if err := a.reader.Discard(header.PaddingSize); err != nil {
		return err
	}

	a.logger.Trace().
		Str("type", common.Type.String()).
		Uint16("seq", common.Sequence).
		Uint32("ts", common.Timestamp).
		Int("size", header.DataSize).
		Int("padding", header.PaddingSize).
		Msg("frame")

	switch {
	case common.Type.IsImage():
		a.emitImage(header, payload)
		return nil
	case common.Type == frame.TypeFocusInfo:
		return a.emitFocusRegions(header, payload)
	case common.Type == frame.TypePlaybackInfo:
		return a.emitPlaybackStatus(header, payload)
	default:
		a.logger.Debug().Str("type", common.Type.String()).Msg("unsupported payload type")
		observability.RecordSkip("unsupported_type")
		return nil
	}
}

func (a *Analyzer) emitImage(header frame.PayloadHeader, payload []byte) {
	width, height := header.ImageSize()
	a.packets.Add(1)
	observability.RecordPacket("image", len(payload))
	a.handler.OnImage(ImagePacket{
		ImageData: payload,
		Width:     width,
		Height:    height,
	})
}

func (a *Analyzer) emitFocusRegions(header frame.PayloadHeader, payload []byte) error {
	if !a.supportedVersion(header, "focus_info") {
		return nil
	}
	count, size := header.FocusLayout()
	records, err := frame.DecodeFocusRecords(payload, count, size)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	regions := make([]FocusRegion, 0, len(records))
	for _, r := range records {
		regions = append(regions, FocusRegion{
			TopLeft:          Point{X: uint(r.TopLeftX), Y: uint(r.TopLeftY)},
			BottomRight:      Point{X: uint(r.BottomRightX), Y: uint(r.BottomRightY)},
			Category:         Category(r.Category),
			Status:           Status(r.Status),
			AdditionalStatus: AdditionalStatus(r.AdditionalStatus),
		})
	}
	observability.RecordPacket("focus", len(payload))
	a.handler.OnFocusRegions(FocusRegionSet{Regions: regions})
	return nil
}

func (a *Analyzer) emitPlaybackStatus(header frame.PayloadHeader, payload []byte) error {
	if !a.supportedVersion(header, "playback_info") {
		return nil
	}
	durationMS, positionMS, err := frame.DecodePlaybackInfo(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	observability.RecordPacket("playback", len(payload))
	a.handler.OnPlaybackStatus(PlaybackStatusPacket{
		Duration:        time.Duration(durationMS) * time.Millisecond,
		CurrentPosition: time.Duration(positionMS) * time.Millisecond,
	})
	return nil
}

// Only sub-format 1.0 is decoded; other versions are dropped without error.
func (a *Analyzer) supportedVersion(header frame.PayloadHeader, kind string) bool {
	major, minor := header.Version()
	if major == 1 && minor == 0 {
		return true
	}
	a.logger.Debug().Str("type", kind).Uint8("major", major).Uint8("minor", minor).Msg("unsupported version")
	observability.RecordSkip("unsupported_version")
	return false
}

// RunFpsDetector reports image packets per second every fps interval until
// Close. It returns immediately; the ticker runs on its own goroutine.
func (a *Analyzer) RunFpsDetector() {
	go func() {
		ticker := time.NewTicker(a.fpsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-a.done:
				return
			case <-ticker.C:
				if !a.IsOpen() {
					return
				}
				a.fpsReport(a.takeFPS())
			}
		}
	}()
}

func (a *Analyzer) takeFPS() float64 {
	return float64(a.packets.Swap(0)) / a.fpsInterval.Seconds()
}

func (a *Analyzer) logFPS(fps float64) {
	observability.SetFPS(fps)
	a.logger.Info().Float64("fps", fps).Msg("throughput")
}
