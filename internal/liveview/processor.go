package liveview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/lvstream/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ConnectionState uint8

const (
	Closed ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// stateWord packs a connection generation with its state so one atomic value
// identifies both which attempt is current and where it is.
type stateWord uint64

func packState(gen uint64, s ConnectionState) stateWord {
	return stateWord(gen<<2 | uint64(s))
}

func (w stateWord) gen() uint64 {
	return uint64(w) >> 2
}

func (w stateWord) state() ConnectionState {
	return ConnectionState(w & 3)
}

// connHandle is the transport abort for one connection generation.
type connHandle struct {
	gen    uint64
	cancel context.CancelFunc
}

type openResult struct {
	resp *http.Response
	err  error
}

// Processor owns one liveview connection at a time: it opens the stream,
// drives an Analyzer over the body and reports packets to its Handler.
type Processor struct {
	cfg     Config
	handler Handler
	logger  zerolog.Logger
	word    atomic.Uint64
	conn    atomic.Pointer[connHandle]
}

func NewProcessor(handler Handler, cfg Config) *Processor {
	if handler == nil {
		handler = HandlerFuncs{}
	}
	return &Processor{
		cfg:     cfg.WithDefaults(),
		handler: handler,
		logger:  log.With().Str("component", "liveview.processor").Logger(),
	}
}

func (p *Processor) load() stateWord {
	return stateWord(p.word.Load())
}

func (p *Processor) swap(from, to stateWord) bool {
	if !p.word.CompareAndSwap(uint64(from), uint64(to)) {
		return false
	}
	observability.SetConnectionState(int(to.state()))
	return true
}

func (p *Processor) State() ConnectionState {
	return p.load().state()
}

// IsProcessing reports whether a connection attempt or stream is active.
func (p *Processor) IsProcessing() bool {
	return p.State() != Closed
}

// OpenConnection connects to target and starts the read loop. It returns
// true once connected, false when the request failed, was answered with a
// non-200 status, timed out, or ctx was cancelled while connecting. A zero
// timeout uses Config.RequestTimeout. When a connection is already active
// it returns true without issuing a request.
func (p *Processor) OpenConnection(ctx context.Context, target string, timeout time.Duration) (bool, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return false, fmt.Errorf("%w: target url required", ErrInvalidArgument)
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false, fmt.Errorf("%w: target %q is not an http url", ErrInvalidArgument, target)
	}
	if timeout <= 0 {
		timeout = p.cfg.RequestTimeout
	}

	cur := p.load()
	if cur.state() != Closed {
		return true, nil
	}
	gen := cur.gen() + 1
	connecting := packState(gen, Connecting)
	if !p.swap(cur, connecting) {
		// Another caller won the transition out of Closed.
		return true, nil
	}
	closed := packState(gen, Closed)

	session := uuid.NewString()
	logger := p.logger.With().Str("session", session).Str("target", u.Redacted()).Logger()
	logger.Debug().Dur("timeout", timeout).Msg("open connection")

	reqCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		p.swap(connecting, closed)
		return false, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	// Stored before Connected is reachable so CloseConnection always finds it.
	p.conn.Store(&connHandle{gen: gen, cancel: cancel})

	done := make(chan openResult, 1)
	go func() {
		resp, err := p.cfg.HTTPClient.Do(req)
		done <- openResult{resp: resp, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res openResult
	select {
	case res = <-done:
	case <-timer.C:
		logger.Warn().Msg("open request timeout: aborting request")
		p.abort(connecting, closed, cancel, done)
		return false, nil
	case <-ctx.Done():
		logger.Debug().Err(ctx.Err()).Msg("open request cancelled: aborting request")
		p.abort(connecting, closed, cancel, done)
		return false, nil
	}

	if res.err != nil {
		logger.Warn().Err(res.err).Msg("open request failed")
		cancel()
		p.swap(connecting, closed)
		return false, nil
	}
	if res.resp.StatusCode != http.StatusOK {
		logger.Warn().Int("status", res.resp.StatusCode).Msg("open request rejected")
		_ = res.resp.Body.Close()
		cancel()
		p.swap(connecting, closed)
		return false, nil
	}
	if !p.swap(connecting, packState(gen, Connected)) {
		// Closed while the response was in flight.
		logger.Debug().Msg("connection closed before response")
		_ = res.resp.Body.Close()
		cancel()
		return false, nil
	}

	logger.Info().Msg("connected liveview stream")
	go p.readLoop(gen, logger, res.resp.Body, cancel)
	return true, nil
}

// abort retires a connecting attempt and releases any response that raced in.
func (p *Processor) abort(connecting, closed stateWord, cancel context.CancelFunc, done <-chan openResult) {
	p.swap(connecting, closed)
	cancel()
	go func() {
		if res := <-done; res.resp != nil {
			_ = res.resp.Body.Close()
		}
	}()
}

func (p *Processor) readLoop(gen uint64, logger zerolog.Logger, body io.ReadCloser, cancel context.CancelFunc) {
	connected := packState(gen, Connected)
	analyzer := NewAnalyzer(body, p.handler, p.cfg, func() bool {
		return p.load() == connected
	})
	analyzer.logger = logger.With().Str("component", "liveview.analyzer").Logger()
	analyzer.RunFpsDetector()

	defer func() {
		analyzer.Close()
		_ = body.Close()
		cancel()
		p.swap(connected, packState(gen, Closed))
		logger.Info().Msg("disconnected liveview stream")
		p.handler.OnClosed()
	}()

	for p.load() == connected {
		if err := analyzer.ReadNextPayload(); err != nil {
			if errors.Is(err, ErrCancelled) {
				logger.Debug().Err(err).Msg("finish reading loop")
			} else {
				logger.Warn().Err(err).Msg("finish reading loop")
			}
			return
		}
	}
	logger.Debug().Msg("connection closed: finish reading loop")
}

// CloseConnection marks the current connection closed. A connected stream
// has its request cancelled, so a read blocked on a quiet camera returns and
// the read loop releases the body and fires OnClosed. A connecting attempt is
// left to resolve on its own and returns false.
func (p *Processor) CloseConnection() {
	for {
		cur := p.load()
		if cur.state() == Closed {
			return
		}
		if p.swap(cur, packState(cur.gen(), Closed)) {
			p.logger.Debug().Str("from", cur.state().String()).Msg("close connection")
			if cur.state() == Connected {
				p.release(cur.gen())
			}
			return
		}
	}
}

// release aborts the transport of generation gen if it is still the latest.
func (p *Processor) release(gen uint64) {
	if h := p.conn.Load(); h != nil && h.gen == gen {
		h.cancel()
	}
}
