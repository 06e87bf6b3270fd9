package message

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/zmtpwire/internal/protocol"
	"github.com/danmuck/zmtpwire/internal/protocol/frame"
	"github.com/danmuck/zmtpwire/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

// readFrames decodes every frame left in buf.
func readFrames(t *testing.T, buf *bytes.Buffer) []frame.Frame {
	t.Helper()
	var out []frame.Frame
	for buf.Len() > 0 {
		f, err := frame.ReadFrame(buf, frame.DefaultLimits())
		require.NoError(t, err)
		out = append(out, f)
	}
	return out
}

func TestReadMultipart(t *testing.T) {
	testlog.Start(t)
	var wire []byte
	wire = append(wire, frame.Encode([]byte("A"), true, false)...)
	wire = append(wire, frame.Encode([]byte("B"), true, false)...)
	wire = append(wire, frame.Encode([]byte("C"), false, false)...)

	msg, err := Read(bytes.NewReader(wire), frame.DefaultLimits())
	require.NoError(t, err)
	require.True(t, msg.IsMultipart())
	require.Nil(t, msg.Payload())
	require.Equal(t, [][]byte{[]byte("A"), []byte("B"), []byte("C")}, msg.Parts())
}

func TestReadSingleFrameIsBare(t *testing.T) {
	testlog.Start(t)
	msg, err := Read(bytes.NewReader(frame.Encode([]byte("X"), false, false)), frame.DefaultLimits())
	require.NoError(t, err)
	require.False(t, msg.IsMultipart())
	require.Equal(t, []byte("X"), msg.Payload())
}

func TestReadStopsAtMessageBoundary(t *testing.T) {
	testlog.Start(t)
	var wire []byte
	wire = append(wire, frame.Encode([]byte("one"), false, false)...)
	wire = append(wire, frame.Encode([]byte("two"), false, false)...)
	r := bytes.NewReader(wire)

	first, err := Read(r, frame.DefaultLimits())
	require.NoError(t, err)
	require.Equal(t, []byte("one"), first.Payload())
	second, err := Read(r, frame.DefaultLimits())
	require.NoError(t, err)
	require.Equal(t, []byte("two"), second.Payload())
	_, err = Read(r, frame.DefaultLimits())
	require.Equal(t, io.EOF, err)
}

func TestReadTruncatedMultipart(t *testing.T) {
	testlog.Start(t)
	wire := frame.Encode([]byte("A"), true, false)
	_, err := Read(bytes.NewReader(wire), frame.DefaultLimits())
	require.ErrorIs(t, err, protocol.ErrTruncatedFrame)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// failAfter serves data and then fails every read with err.
type failAfter struct {
	data []byte
	err  error
}

func (r *failAfter) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestReadStreamErrorInsideMultipart(t *testing.T) {
	testlog.Start(t)
	reset := errors.New("connection reset by peer")
	r := &failAfter{data: frame.Encode([]byte("A"), true, false), err: reset}

	_, err := Read(r, frame.DefaultLimits())
	require.ErrorIs(t, err, protocol.ErrTruncatedFrame)
	require.ErrorIs(t, err, reset)
	require.Equal(t, "truncated_frame", protocol.Kind(err))
}

func TestReadStreamErrorBeforeFirstFrame(t *testing.T) {
	testlog.Start(t)
	reset := errors.New("connection reset by peer")
	_, err := Read(&failAfter{err: reset}, frame.DefaultLimits())
	require.ErrorIs(t, err, reset)
	require.NotErrorIs(t, err, protocol.ErrTruncatedFrame)
}

func TestReadKeepsFrameErrorKindInsideMultipart(t *testing.T) {
	testlog.Start(t)
	wire := append(frame.Encode([]byte("A"), true, false), 0x04, 0x00)
	_, err := Read(bytes.NewReader(wire), frame.DefaultLimits())
	require.ErrorIs(t, err, protocol.ErrInvalidFlags)
	require.Equal(t, "invalid_flags", protocol.Kind(err))
}

func TestWriteDelimiterForRequestReply(t *testing.T) {
	testlog.Start(t)
	for _, remote := range []protocol.Role{protocol.RoleReq, protocol.RoleRep} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, Bare([]byte("ping")), remote, []byte("ignored"), frame.DefaultLimits()))
		frames := readFrames(t, &buf)
		require.Len(t, frames, 2, "remote=%s", remote)
		require.True(t, frames[0].More)
		require.Empty(t, frames[0].Payload)
		require.False(t, frames[1].More)
		require.Equal(t, []byte("ping"), frames[1].Payload)
	}
}

func TestWriteIdentityForRouter(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Bare([]byte("reply")), protocol.RoleRouter, []byte{0x01, 0x02}, frame.DefaultLimits()))
	require.Equal(t, []byte{0x01, 0x02, 0x01, 0x02, 0x00, 0x05, 'r', 'e', 'p', 'l', 'y'}, buf.Bytes())

	frames := readFrames(t, bytes.NewBuffer(buf.Bytes()))
	require.Len(t, frames, 2)
	require.True(t, frames[0].More)
	require.Equal(t, []byte{0x01, 0x02}, frames[0].Payload)
	require.False(t, frames[1].More)
	require.Equal(t, []byte("reply"), frames[1].Payload)
}

func TestWriteNoPrefixRoles(t *testing.T) {
	testlog.Start(t)
	for _, remote := range []protocol.Role{
		protocol.RolePair, protocol.RolePub, protocol.RoleSub, protocol.RoleDealer,
		protocol.RolePull, protocol.RolePush,
	} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, Multipart([]byte("a"), []byte("b")), remote, []byte("id"), frame.DefaultLimits()))
		frames := readFrames(t, &buf)
		require.Len(t, frames, 2, "remote=%s", remote)
		require.Equal(t, []byte("a"), frames[0].Payload)
		require.True(t, frames[0].More)
		require.Equal(t, []byte("b"), frames[1].Payload)
		require.False(t, frames[1].More)
	}
}

func TestPrefixTableCoversEveryRole(t *testing.T) {
	testlog.Start(t)
	want := map[protocol.Role]Prefix{
		protocol.RolePair:   PrefixNone,
		protocol.RolePub:    PrefixNone,
		protocol.RoleSub:    PrefixNone,
		protocol.RoleReq:    PrefixDelimiter,
		protocol.RoleRep:    PrefixDelimiter,
		protocol.RoleDealer: PrefixNone,
		protocol.RoleRouter: PrefixIdentity,
		protocol.RolePull:   PrefixNone,
		protocol.RolePush:   PrefixNone,
	}
	for role, prefix := range want {
		require.Equal(t, prefix, PrefixFor(role), "role=%s", role)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Multipart([]byte("x"), nil, []byte("z")), protocol.RoleDealer, nil, frame.DefaultLimits()))
	msg, err := Read(&buf, frame.DefaultLimits())
	require.NoError(t, err)
	require.Len(t, msg, 3)
	require.Empty(t, msg[1])
}

func TestWriteEmptyMessage(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	require.ErrorIs(t, Write(&buf, nil, protocol.RolePair, nil, frame.DefaultLimits()), ErrEmpty)
	require.Zero(t, buf.Len())
}

func TestStripDelimiter(t *testing.T) {
	testlog.Start(t)
	msg, err := StripDelimiter(Multipart(nil, []byte("hello")))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), msg.Payload())

	msg, err = StripDelimiter(Multipart([]byte{}, []byte("a"), []byte("b")))
	require.NoError(t, err)
	require.True(t, msg.IsMultipart())

	_, err = StripDelimiter(Bare([]byte("hello")))
	require.ErrorIs(t, err, protocol.ErrUnexpectedDelimiter)
	_, err = StripDelimiter(Bare(nil))
	require.ErrorIs(t, err, protocol.ErrUnexpectedDelimiter)
	_, err = StripDelimiter(Multipart([]byte("x"), []byte("hello")))
	require.ErrorIs(t, err, protocol.ErrUnexpectedDelimiter)
}

func TestMessageString(t *testing.T) {
	testlog.Start(t)
	require.Equal(t, `"X"`, Bare([]byte("X")).String())
	require.Equal(t, `["" "hello"]`, Multipart(nil, []byte("hello")).String())
}

func TestWriteOversizedPartWritesNothing(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	err := Write(&buf, Multipart([]byte("ok"), make([]byte, 64)), protocol.RoleReq, nil, frame.Limits{MaxPayloadBytes: 16})
	require.ErrorIs(t, err, protocol.ErrPayloadTooLarge)
	require.Zero(t, buf.Len())
}
