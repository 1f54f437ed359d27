package transport

import (
	"encoding/binary"
	"errors"
	"io"
)

// SV2 message type constants (Mining Protocol subset this daemon speaks).
const (
	MsgSetupConnection        uint8 = 0x00
	MsgSetupConnectionSuccess uint8 = 0x01
	MsgSetupConnectionError   uint8 = 0x02

	MsgOpenStandardMiningChannel        uint8 = 0x10
	MsgOpenStandardMiningChannelSuccess uint8 = 0x11
	MsgOpenStandardMiningChannelError   uint8 = 0x12

	MsgNewMiningJob   uint8 = 0x20
	MsgSetNewPrevHash uint8 = 0x22

	MsgSubmitSharesStandard uint8 = 0x30
	MsgSubmitSharesSuccess  uint8 = 0x32
	MsgSubmitSharesError    uint8 = 0x33

	MsgSetTarget uint8 = 0x40

	MsgReconnect uint8 = 0x50
)

// SV2 error codes carried in SetupConnectionError / SubmitSharesError.
const (
	ErrUnknownMessage     uint8 = 0x00
	ErrInvalidChannelID   uint8 = 0x02
	ErrInvalidJobID       uint8 = 0x03
	ErrStaleShare         uint8 = 0x06
	ErrDuplicateShare     uint8 = 0x07
	ErrLowDifficultyShare uint8 = 0x08
	ErrUnauthorized       uint8 = 0x09
	ErrInvalidNonce       uint8 = 0x0A
)

// FrameHeaderSize is the fixed size of an SV2 frame header in bytes.
const FrameHeaderSize = 6

// ErrFrameTooLarge guards against unbounded allocation from a corrupt or
// hostile length field.
var ErrFrameTooLarge = errors.New("sv2: frame exceeds maximum allowed size")

// MaxFrameSize bounds a single SV2 message payload.
const MaxFrameSize = 1 << 20

// FrameHeader is the 6-byte SV2 frame header:
// [extension_type: u16 LE][msg_type: u8][msg_length: u24 LE].
type FrameHeader struct {
	ExtensionType uint16
	MsgType       uint8
	MsgLength     uint32
}

// Serialize writes the header in wire format.
func (h FrameHeader) Serialize() []byte {
	buf := make([]byte, FrameHeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], h.ExtensionType)
	buf[2] = h.MsgType
	buf[3] = byte(h.MsgLength)
	buf[4] = byte(h.MsgLength >> 8)
	buf[5] = byte(h.MsgLength >> 16)
	return buf
}

// ParseFrameHeader decodes a 6-byte header.
func ParseFrameHeader(b []byte) (FrameHeader, error) {
	if len(b) < FrameHeaderSize {
		return FrameHeader{}, errors.New("sv2: short header")
	}
	return FrameHeader{
		ExtensionType: binary.LittleEndian.Uint16(b[0:2]),
		MsgType:       b[2],
		MsgLength:     uint32(b[3]) | uint32(b[4])<<8 | uint32(b[5])<<16,
	}, nil
}

// Frame is a decoded SV2 message: its header plus raw payload bytes.
type Frame struct {
	Header  FrameHeader
	Payload []byte
}

// ReadFrame reads one SV2 frame from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	hdr := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	h, err := ParseFrameHeader(hdr)
	if err != nil {
		return nil, err
	}
	if h.MsgLength > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, h.MsgLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return &Frame{Header: h, Payload: payload}, nil
}

// WriteFrame serializes and writes one SV2 frame to w.
func WriteFrame(w io.Writer, extensionType uint16, msgType uint8, payload []byte) error {
	h := FrameHeader{ExtensionType: extensionType, MsgType: msgType, MsgLength: uint32(len(payload))}
	if _, err := w.Write(h.Serialize()); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// STR0255 is a Stratum V2 length-prefixed string (1-byte length, max 255).
type STR0255 string

// Serialize encodes the string with its length prefix, truncating to 255
// bytes if necessary.
func (s STR0255) Serialize() []byte {
	str := string(s)
	if len(str) > 255 {
		str = str[:255]
	}
	buf := make([]byte, 1+len(str))
	buf[0] = byte(len(str))
	copy(buf[1:], str)
	return buf
}

// ParseSTR0255 decodes a length-prefixed string, returning the string and
// the number of bytes consumed.
func ParseSTR0255(data []byte) (STR0255, int, error) {
	if len(data) < 1 {
		return "", 0, errors.New("sv2: truncated string")
	}
	n := int(data[0])
	if len(data) < 1+n {
		return "", 0, errors.New("sv2: truncated string")
	}
	return STR0255(data[1 : 1+n]), 1 + n, nil
}
