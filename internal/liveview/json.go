package liveview

// JSON documents for packets forwarded outside the process (relay, NATS).
// Enum fields carry both the raw wire code and its name.

type EnumView struct {
	Code uint8  `json:"code"`
	Name string `json:"name"`
}

type FocusRegionView struct {
	TopLeftX         uint     `json:"top_left_x"`
	TopLeftY         uint     `json:"top_left_y"`
	BottomRightX     uint     `json:"bottom_right_x"`
	BottomRightY     uint     `json:"bottom_right_y"`
	Category         EnumView `json:"category"`
	Status           EnumView `json:"status"`
	AdditionalStatus EnumView `json:"additional_status"`
}

type FocusView struct {
	Regions []FocusRegionView `json:"regions"`
}

type PlaybackView struct {
	DurationMS int64 `json:"duration_ms"`
	PositionMS int64 `json:"position_ms"`
}

type ImageView struct {
	Width  uint `json:"width"`
	Height uint `json:"height"`
	Bytes  int  `json:"bytes"`
}

func NewFocusView(set FocusRegionSet) FocusView {
	out := FocusView{Regions: make([]FocusRegionView, 0, len(set.Regions))}
	for _, r := range set.Regions {
		out.Regions = append(out.Regions, FocusRegionView{
			TopLeftX:         r.TopLeft.X,
			TopLeftY:         r.TopLeft.Y,
			BottomRightX:     r.BottomRight.X,
			BottomRightY:     r.BottomRight.Y,
			Category:         EnumView{Code: uint8(r.Category), Name: r.Category.String()},
			Status:           EnumView{Code: uint8(r.Status), Name: r.Status.String()},
			AdditionalStatus: EnumView{Code: uint8(r.AdditionalStatus), Name: r.AdditionalStatus.String()},
		})
	}
	return out
}

func NewPlaybackView(p PlaybackStatusPacket) PlaybackView {
	return PlaybackView{
		DurationMS: p.Duration.Milliseconds(),
		PositionMS: p.CurrentPosition.Milliseconds(),
	}
}

func NewImageView(p ImagePacket) ImageView {
	return ImageView{Width: p.Width, Height: p.Height, Bytes: len(p.ImageData)}
}
