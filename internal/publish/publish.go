// Package publish forwards decoded liveview packets to NATS subjects.
package publish

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/lvstream/internal/liveview"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	SubjectImage    = "image"
	SubjectFocus    = "focus"
	SubjectPlayback = "playback"
	SubjectClosed   = "closed"

	HeaderWidth  = "Lv-Width"
	HeaderHeight = "Lv-Height"
)

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	PublishMsg(m *nats.Msg) error
}

type Publisher struct {
	conn          Conn
	prefix        string
	publishImages bool
	logger        zerolog.Logger
}

var _ liveview.Handler = (*Publisher)(nil)

// Connect dials NATS with reconnects left to the client library.
func Connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("component", "publish").Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("component", "publish").Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
}

func New(conn Conn, prefix string, publishImages bool) *Publisher {
	return &Publisher{
		conn:          conn,
		prefix:        strings.TrimSuffix(strings.TrimSpace(prefix), "."),
		publishImages: publishImages,
		logger:        log.With().Str("component", "publish").Logger(),
	}
}

func (p *Publisher) Subject(kind string) string {
	return p.prefix + "." + kind
}

func (p *Publisher) OnImage(pkt liveview.ImagePacket) {
	if !p.publishImages {
		return
	}
	msg := nats.NewMsg(p.Subject(SubjectImage))
	msg.Header.Set(HeaderWidth, strconv.FormatUint(uint64(pkt.Width), 10))
	msg.Header.Set(HeaderHeight, strconv.FormatUint(uint64(pkt.Height), 10))
	msg.Data = pkt.ImageData
	p.publish(msg)
}

func (p *Publisher) OnFocusRegions(pkt liveview.FocusRegionSet) {
	p.publishJSON(SubjectFocus, liveview.NewFocusView(pkt))
}

func (p *Publisher) OnPlaybackStatus(pkt liveview.PlaybackStatusPacket) {
	p.publishJSON(SubjectPlayback, liveview.NewPlaybackView(pkt))
}

func (p *Publisher) OnClosed() {
	p.publish(nats.NewMsg(p.Subject(SubjectClosed)))
}

func (p *Publisher) publishJSON(kind string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Error().Err(err).Str("kind", kind).Msg("encode packet")
		return
	}
	msg := nats.NewMsg(p.Subject(kind))
	msg.Header.Set("Content-Type", "application/json")
	msg.Data = data
	p.publish(msg)
}

// Publish failures are logged; they must not stall the read loop.
func (p *Publisher) publish(msg *nats.Msg) {
	if err := p.conn.PublishMsg(msg); err != nil {
		p.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("publish failed")
	}
}
