// Package message reassembles frames into logical messages and applies the
// role-specific prefix frames on write.
package message

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/zmtpwire/internal/protocol"
	"github.com/danmuck/zmtpwire/internal/protocol/frame"
)

var ErrEmpty = errors.New("message: empty message")

// Message is an ordered, non-empty list of frame payloads. A message with one
// part is a bare payload.
type Message [][]byte

// Bare wraps a single payload.
func Bare(payload []byte) Message {
	return Message{payload}
}

// Multipart builds a message from parts in order.
func Multipart(parts ...[]byte) Message {
	return Message(parts)
}

// IsMultipart reports whether m carries more than one part.
func (m Message) IsMultipart() bool {
	return len(m) > 1
}

// Payload returns the bare payload of a single-part message, nil otherwise.
func (m Message) Payload() []byte {
	if len(m) != 1 {
		return nil
	}
	return m[0]
}

// Parts returns the ordered payloads.
func (m Message) Parts() [][]byte {
	return [][]byte(m)
}

// Size is the total payload byte count.
func (m Message) Size() int {
	n := 0
	for _, p := range m {
		n += len(p)
	}
	return n
}

func (m Message) String() string {
	if len(m) == 1 {
		return fmt.Sprintf("%q", m[0])
	}
	parts := make([]string, len(m))
	for i, p := range m {
		parts[i] = fmt.Sprintf("%q", p)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Read decodes frames until one arrives without MORE. io.EOF before the first
// frame is returned as is; a stream that ends or fails inside a multipart
// message yields protocol.ErrTruncatedFrame.
func Read(r io.Reader, limits frame.Limits) (Message, error) {
	var msg Message
	for {
		f, err := frame.ReadFrame(r, limits)
		if err != nil {
			if len(msg) == 0 {
				return nil, err
			}
			switch {
			case errors.Is(err, io.EOF):
				return nil, fmt.Errorf("%w: stream ended after %d parts: %w", protocol.ErrTruncatedFrame, len(msg), io.ErrUnexpectedEOF)
			case errors.Is(err, protocol.ErrTruncatedFrame),
				errors.Is(err, protocol.ErrInvalidFlags),
				errors.Is(err, protocol.ErrPayloadTooLarge):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: stream failed after %d parts: %w", protocol.ErrTruncatedFrame, len(msg), err)
			}
		}
		msg = append(msg, f.Payload)
		if !f.More {
			return msg, nil
		}
	}
}

// Validate checks msg against limits without writing anything.
func Validate(msg Message, limits frame.Limits) error {
	if len(msg) == 0 {
		return ErrEmpty
	}
	limit := min(limits.WithDefaults().MaxPayloadBytes, frame.MaxFrameBytes)
	for i, p := range msg {
		if uint64(len(p)) > limit {
			return fmt.Errorf("%w: part %d has %d bytes", protocol.ErrPayloadTooLarge, i, len(p))
		}
	}
	return nil
}

// Write emits the prefix frame required by the remote role, then the parts of
// msg with MORE set on all but the last. identity is only used when the remote
// role is ROUTER.
func Write(w io.Writer, msg Message, remote protocol.Role, identity []byte, limits frame.Limits) error {
	if err := Validate(msg, limits); err != nil {
		return err
	}
	frames := make([]frame.Frame, 0, len(msg)+1)
	switch PrefixFor(remote) {
	case PrefixDelimiter:
		frames = append(frames, frame.Frame{More: true})
	case PrefixIdentity:
		frames = append(frames, frame.Frame{More: true, Payload: identity})
	}
	for i, p := range msg {
		frames = append(frames, frame.Frame{More: i < len(msg)-1, Payload: p})
	}
	for _, f := range frames {
		if err := frame.WriteFrame(w, f, limits); err != nil {
			return err
		}
	}
	return nil
}
