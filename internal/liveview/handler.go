package liveview

// PacketHandler receives decoded packets in stream order from the read loop
// goroutine. Ownership of each packet passes to the handler.
type PacketHandler interface {
	OnImage(ImagePacket)
	OnFocusRegions(FocusRegionSet)
	OnPlaybackStatus(PlaybackStatusPacket)
}

// Handler adds the terminal notification fired once per connected stream.
type Handler interface {
	PacketHandler
	OnClosed()
}

// HandlerFuncs adapts optional funcs to Handler. Nil funcs are skipped.
type HandlerFuncs struct {
	Image          func(ImagePacket)
	FocusRegions   func(FocusRegionSet)
	PlaybackStatus func(PlaybackStatusPacket)
	Closed         func()
}

var _ Handler = HandlerFuncs{}

func (h HandlerFuncs) OnImage(p ImagePacket) {
	if h.Image != nil {
		h.Image(p)
	}
}

func (h HandlerFuncs) OnFocusRegions(p FocusRegionSet) {
	if h.FocusRegions != nil {
		h.FocusRegions(p)
	}
}

func (h HandlerFuncs) OnPlaybackStatus(p PlaybackStatusPacket) {
	if h.PlaybackStatus != nil {
		h.PlaybackStatus(p)
	}
}

func (h HandlerFuncs) OnClosed() {
	if h.Closed != nil {
		h.Closed()
	}
}

// Handlers fans every notification out to each handler in order.
type Handlers []Handler

var _ Handler = Handlers(nil)

func (hs Handlers) OnImage(p ImagePacket) {
	for _, h := range hs {
		h.OnImage(p)
	}
}

func (hs Handlers) OnFocusRegions(p FocusRegionSet) {
	for _, h := range hs {
		h.OnFocusRegions(p)
	}
}

func (hs Handlers) OnPlaybackStatus(p PlaybackStatusPacket) {
	for _, h := range hs {
		h.OnPlaybackStatus(p)
	}
}

func (hs Handlers) OnClosed() {
	for _, h := range hs {
		h.OnClosed()
	}
}
