package liveview

import (
	"fmt"
	"time"
)

// ImagePacket is one compressed image frame (JPEG on current cameras).
type ImagePacket struct {
	ImageData []byte
	Width     uint
	Height    uint
}

type Point struct {
	X uint
	Y uint
}

// FocusRegion is one autofocus region in image pixel coordinates.
type FocusRegion struct {
	TopLeft          Point
	BottomRight      Point
	Category         Category
	Status           Status
	AdditionalStatus AdditionalStatus
}

// FocusRegionSet keeps regions in the order they appeared on the wire.
type FocusRegionSet struct {
	Regions []FocusRegion
}

type PlaybackStatusPacket struct {
	Duration        time.Duration
	CurrentPosition time.Duration
}

// Category, Status and AdditionalStatus carry the raw wire byte. Codes
// outside the named set are kept as-is.
type Category uint8

const (
	CategoryInvalid Category = iota
	CategoryContrastAF
	CategoryPhaseDetectionAF
	CategoryReserved
	CategoryFace
	CategoryTracking
)

func (c Category) String() string {
	switch c {
	case CategoryInvalid:
		return "invalid"
	case CategoryContrastAF:
		return "contrast_af"
	case CategoryPhaseDetectionAF:
		return "phase_detection_af"
	case CategoryFace:
		return "face"
	case CategoryTracking:
		return "tracking"
	default:
		return fmt.Sprintf("reserved(0x%02x)", uint8(c))
	}
}

type Status uint8

const (
	StatusInvalid Status = iota
	StatusNormal
	StatusMain
	StatusSub
	StatusFocused
	StatusReserved1
	StatusReserved2
	StatusReserved3
)

func (s Status) String() string {
	switch s {
	case StatusInvalid:
		return "invalid"
	case StatusNormal:
		return "normal"
	case StatusMain:
		return "main"
	case StatusSub:
		return "sub"
	case StatusFocused:
		return "focused"
	default:
		return fmt.Sprintf("reserved(0x%02x)", uint8(s))
	}
}

type AdditionalStatus uint8

const (
	AdditionalStatusInvalid AdditionalStatus = iota
	AdditionalStatusSelected
	AdditionalStatusLargeFrame
)

func (s AdditionalStatus) String() string {
	switch s {
	case AdditionalStatusInvalid:
		return "invalid"
	case AdditionalStatusSelected:
		return "selected"
	case AdditionalStatusLargeFrame:
		return "large_frame"
	default:
		return fmt.Sprintf("reserved(0x%02x)", uint8(s))
	}
}
