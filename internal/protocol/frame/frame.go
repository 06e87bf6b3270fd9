package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/zmtpwire/internal/protocol"
)

const (
	FlagMore byte = 0x01
	FlagLong byte = 0x02

	flagsKnown = FlagMore | FlagLong

	// MaxShortLen is the largest payload carried by the 1-byte length field.
	MaxShortLen = 0xff

	// MaxFrameBytes is the hard ceiling for Limits.MaxPayloadBytes.
	MaxFrameBytes uint64 = 1 << 31
)

var ErrLimitTooLarge = errors.New("frame: payload limit above ceiling")

// Frame is one wire unit.
type Frame struct {
	More    bool
	Long    bool
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}

func (l Limits) WithDefaults() Limits {
	if l.MaxPayloadBytes == 0 {
		l.MaxPayloadBytes = DefaultLimits().MaxPayloadBytes
	}
	return l
}

// Validate rejects limits above MaxFrameBytes.
func (l Limits) Validate() error {
	if l.MaxPayloadBytes > MaxFrameBytes {
		return fmt.Errorf("%w: %d > %d", ErrLimitTooLarge, l.MaxPayloadBytes, MaxFrameBytes)
	}
	return nil
}

// maxPayload is the effective per-frame cap, never above MaxFrameBytes.
func (l Limits) maxPayload() uint64 {
	return min(l.WithDefaults().MaxPayloadBytes, MaxFrameBytes)
}

// Encode returns [flags][length][payload]. The 8-byte length field is used when
// long is set or the payload does not fit the short form.
func Encode(payload []byte, more, long bool) []byte {
	hdr := header(len(payload), more, long)
	out := make([]byte, 0, len(hdr)+len(payload))
	out = append(out, hdr...)
	return append(out, payload...)
}

func header(n int, more, long bool) []byte {
	var flags byte
	if more {
		flags |= FlagMore
	}
	if long || n > MaxShortLen {
		flags |= FlagLong
		buf := make([]byte, 9)
		buf[0] = flags
		binary.BigEndian.PutUint64(buf[1:9], uint64(n))
		return buf
	}
	return []byte{flags, byte(n)}
}

// Flags returns the flag byte f would be written with.
func (f Frame) Flags() byte {
	return header(len(f.Payload), f.More, f.Long)[0]
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	if uint64(len(f.Payload)) > limits.maxPayload() {
		return protocol.ErrPayloadTooLarge
	}
	if _, err := w.Write(header(len(f.Payload), f.More, f.Long)); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrame decodes exactly one frame. The length width is taken from the flag
// byte only. A stream that ends before the flag byte yields io.EOF; one that
// ends later yields protocol.ErrTruncatedFrame.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	limit := limits.maxPayload()

	var buf [9]byte
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, err
	}
	flags := buf[0]
	if flags&^flagsKnown != 0 {
		return Frame{}, fmt.Errorf("%w: 0x%02x", protocol.ErrInvalidFlags, flags)
	}

	f := Frame{
		More: flags&FlagMore != 0,
		Long: flags&FlagLong != 0,
	}

	var length uint64
	if f.Long {
		if _, err := io.ReadFull(r, buf[1:9]); err != nil {
			return Frame{}, truncated("length", err)
		}
		length = binary.BigEndian.Uint64(buf[1:9])
	} else {
		if _, err := io.ReadFull(r, buf[1:2]); err != nil {
			return Frame{}, truncated("length", err)
		}
		length = uint64(buf[1])
	}
	if length > limit {
		return Frame{}, fmt.Errorf("%w: %d > %d", protocol.ErrPayloadTooLarge, length, limit)
	}

	f.Payload = make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return Frame{}, truncated("payload", err)
		}
	}
	return f, nil
}

func truncated(part string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s: %w", protocol.ErrTruncatedFrame, part, io.ErrUnexpectedEOF)
	}
	return fmt.Errorf("%w: %s: %w", protocol.ErrTruncatedFrame, part, err)
}
