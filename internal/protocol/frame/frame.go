package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	CommonHeaderLen  = 8
	PayloadHeaderLen = 128
	// FieldsLen is the type-specific area of the payload header (offset 8..127).
	FieldsLen = PayloadHeaderLen - 8

	StartByte       byte = 0xFF
	MaxDataSize          = 1<<24 - 1
	MaxPaddingSize       = 1<<8 - 1
	FocusRecordLen       = 11
	PlaybackInfoLen      = 8
)

// PayloadMagic is the fixed prefix of every payload header.
var PayloadMagic = [4]byte{0x24, 0x35, 0x68, 0x79}

var (
	ErrShortHeader     = errors.New("frame: short header")
	ErrBadStartByte    = errors.New("frame: bad common header")
	ErrBadPayloadMagic = errors.New("frame: bad payload header")
	ErrTruncated       = errors.New("frame: truncated payload")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrPaddingTooLarge = errors.New("frame: padding too large")
	ErrFieldsTooLarge  = errors.New("frame: payload header fields too large")
)

// PayloadType is byte 1 of the common header.
type PayloadType uint8

const (
	TypeLiveImage     PayloadType = 0x01
	TypeFocusInfo     PayloadType = 0x02
	TypePlaybackImage PayloadType = 0x11
	TypePlaybackInfo  PayloadType = 0x12
)

func (t PayloadType) IsImage() bool {
	return t == TypeLiveImage || t == TypePlaybackImage
}

func (t PayloadType) String() string {
	switch t {
	case TypeLiveImage:
		return "live_image"
	case TypeFocusInfo:
		return "focus_info"
	case TypePlaybackImage:
		return "playback_image"
	case TypePlaybackInfo:
		return "playback_info"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// CommonHeader is the 8-byte header that starts every frame.
type CommonHeader struct {
	Type      PayloadType
	Sequence  uint16
	Timestamp uint32
}

// PayloadHeader is the 128-byte header that follows the common header.
// Raw keeps the full header so type-specific fields can be decoded lazily.
type PayloadHeader struct {
	DataSize    int
	PaddingSize int
	Raw         []byte
}

// ImageSize returns the width/height fields of an image frame.
func (h PayloadHeader) ImageSize() (width, height uint) {
	return uint(Uint(h.Raw, 8, 2)), uint(Uint(h.Raw, 10, 2))
}

// Version returns the major/minor sub-format bytes of focus and playback frames.
func (h PayloadHeader) Version() (major, minor uint8) {
	return h.Raw[8], h.Raw[9]
}

// FocusLayout returns the record count and per-record size of a focus frame.
func (h PayloadHeader) FocusLayout() (count, size int) {
	return Uint(h.Raw, 10, 2), Uint(h.Raw, 12, 2)
}

// Uint decodes an unsigned big-endian integer of n bytes (n <= 4) at off.
func Uint(b []byte, off, n int) int {
	v := 0
	for i := 0; i < n; i++ {
		v = v<<8 | int(b[off+i])
	}
	return v
}

func DecodeCommonHeader(b []byte) (CommonHeader, error) {
	if len(b) != CommonHeaderLen {
		return CommonHeader{}, ErrShortHeader
	}
	if b[0] != StartByte {
		return CommonHeader{}, fmt.Errorf("%w: start byte 0x%02x", ErrBadStartByte, b[0])
	}
	return CommonHeader{
		Type:      PayloadType(b[1]),
		Sequence:  binary.BigEndian.Uint16(b[2:4]),
		Timestamp: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

func DecodePayloadHeader(b []byte) (PayloadHeader, error) {
	if len(b) != PayloadHeaderLen {
		return PayloadHeader{}, ErrShortHeader
	}
	if b[0] != PayloadMagic[0] || b[1] != PayloadMagic[1] || b[2] != PayloadMagic[2] || b[3] != PayloadMagic[3] {
		return PayloadHeader{}, fmt.Errorf("%w: magic % x", ErrBadPayloadMagic, b[0:4])
	}
	return PayloadHeader{
		DataSize:    Uint(b, 4, 3),
		PaddingSize: Uint(b, 7, 1),
		Raw:         b,
	}, nil
}

// FocusRecord is one focus-region record as laid out on the wire.
type FocusRecord struct {
	TopLeftX         uint16
	TopLeftY         uint16
	BottomRightX     uint16
	BottomRightY     uint16
	Category         uint8
	Status           uint8
	AdditionalStatus uint8
}

// DecodeFocusRecords reads count records of size bytes each from payload.
// A size below FocusRecordLen makes records overlap; cameras are trusted on
// stride, so that is decoded as is rather than rejected.
func DecodeFocusRecords(payload []byte, count, size int) ([]FocusRecord, error) {
	if count > 0 && (count-1)*size+FocusRecordLen > len(payload) {
		return nil, fmt.Errorf("%w: %d focus records of %d bytes in %d byte payload", ErrTruncated, count, size, len(payload))
	}
	out := make([]FocusRecord, 0, count)
	for i := 0; i < count; i++ {
		off := i * size
		out = append(out, FocusRecord{
			TopLeftX:         uint16(Uint(payload, off, 2)),
			TopLeftY:         uint16(Uint(payload, off+2, 2)),
			BottomRightX:     uint16(Uint(payload, off+4, 2)),
			BottomRightY:     uint16(Uint(payload, off+6, 2)),
			Category:         payload[off+8],
			Status:           payload[off+9],
			AdditionalStatus: payload[off+10],
		})
	}
	return out, nil
}

// DecodePlaybackInfo returns the duration and position millisecond counts.
func DecodePlaybackInfo(payload []byte) (durationMS, positionMS uint32, err error) {
	if len(payload) < PlaybackInfoLen {
		return 0, 0, fmt.Errorf("%w: playback info is %d bytes", ErrTruncated, len(payload))
	}
	return uint32(Uint(payload, 0, 4)), uint32(Uint(payload, 4, 4)), nil
}

// Frame is one complete wire frame, used on the encode side.
type Frame struct {
	Header CommonHeader
	// Fields is copied into the payload header starting at offset 8.
	Fields  []byte
	Payload []byte
	Padding int
}

func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxDataSize {
		return ErrPayloadTooLarge
	}
	if f.Padding < 0 || f.Padding > MaxPaddingSize {
		return ErrPaddingTooLarge
	}
	if len(f.Fields) > FieldsLen {
		return ErrFieldsTooLarge
	}

	buf := make([]byte, CommonHeaderLen+PayloadHeaderLen+len(f.Payload)+f.Padding)
	buf[0] = StartByte
	buf[1] = byte(f.Header.Type)
	binary.BigEndian.PutUint16(buf[2:4], f.Header.Sequence)
	binary.BigEndian.PutUint32(buf[4:8], f.Header.Timestamp)

	ph := buf[CommonHeaderLen : CommonHeaderLen+PayloadHeaderLen]
	copy(ph[0:4], PayloadMagic[:])
	size := len(f.Payload)
	ph[4] = byte(size >> 16)
	ph[5] = byte(size >> 8)
	ph[6] = byte(size)
	ph[7] = byte(f.Padding)
	copy(ph[8:], f.Fields)

	copy(buf[CommonHeaderLen+PayloadHeaderLen:], f.Payload)
	_, err := w.Write(buf)
	return err
}

func ImageFields(width, height uint16) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[0:2], width)
	binary.BigEndian.PutUint16(b[2:4], height)
	return b
}

func FocusFields(major, minor uint8, count, size uint16) []byte {
	b := make([]byte, 6)
	b[0] = major
	b[1] = minor
	binary.BigEndian.PutUint16(b[2:4], count)
	binary.BigEndian.PutUint16(b[4:6], size)
	return b
}

func PlaybackFields(major, minor uint8) []byte {
	return []byte{major, minor}
}

// EncodeFocusRecords lays records out at a stride of size bytes (size >= FocusRecordLen).
func EncodeFocusRecords(records []FocusRecord, size int) []byte {
	if size < FocusRecordLen {
		size = FocusRecordLen
	}
	out := make([]byte, len(records)*size)
	for i, r := range records {
		b := out[i*size:]
		binary.BigEndian.PutUint16(b[0:2], r.TopLeftX)
		binary.BigEndian.PutUint16(b[2:4], r.TopLeftY)
		binary.BigEndian.PutUint16(b[4:6], r.BottomRightX)
		binary.BigEndian.PutUint16(b[6:8], r.BottomRightY)
		b[8] = r.Category
		b[9] = r.Status
		b[10] = r.AdditionalStatus
	}
	return out
}

func EncodePlaybackInfo(durationMS, positionMS uint32) []byte {
	b := make([]byte, PlaybackInfoLen)
	binary.BigEndian.PutUint32(b[0:4], durationMS)
	binary.BigEndian.PutUint32(b[4:8], positionMS)
	return b
}
