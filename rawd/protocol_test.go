package rawd

import (
	"bytes"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRequestRoundtrip(t *testing.T) {
	require := require.New(t)

	req := Request{Cmd: CmdRayHeaders, Abbrev: "DB_DBZ", Sweep: SweepAll}
	got, err := decodeRequest(req.encode())
	require.NoError(err)
	require.Equal(req, got)

	// blank abbreviation means default type
	req = Request{Cmd: CmdData, Sweep: 3}
	got, err = decodeRequest(req.encode())
	require.NoError(err)
	require.Equal("", got.Abbrev)
	require.Equal(uint32(3), got.Sweep)

	_, err = decodeRequest([]byte{1, 2, 3})
	require.ErrorIs(err, ErrProtocol)

	bad := Request{Cmd: 99}.encode()
	_, err = decodeRequest(bad)
	require.ErrorIs(err, ErrProtocol)
}

func TestResponseSevenSlots(t *testing.T) {
	require := require.New(t)

	// every response carries all seven slots, error or not
	for _, resp := range []Response{
		{Status: StatusOkay, NumSweeps: 2, NumRays: 360, NumBins: 720, SweepTime: 1710500000.25, TimeZone: "UTC-05:00", ErrFlag: 0},
		{Status: StatusError},
		{Status: StatusError, TimeZone: "UTC+09:30"},
	} {
		var buf bytes.Buffer
		require.NoError(WriteResponse(&buf, resp))
		require.Equal(responseSize, buf.Len())

		got, err := ReadResponse(&buf)
		require.NoError(err)
		require.Equal(resp, got)
	}
}

func TestResponseTruncated(t *testing.T) {
	_, err := ReadResponse(bytes.NewReader([]byte{1, 2, 3}))
	require.ErrorIs(t, err, ErrProtocol)
}

func connPair(t *testing.T) (*net.UnixConn, *net.UnixConn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)

	mk := func(fd int) *net.UnixConn {
		f := os.NewFile(uintptr(fd), "socketpair")
		defer f.Close()
		c, err := net.FileConn(f)
		require.NoError(t, err)
		uc, ok := c.(*net.UnixConn)
		require.True(t, ok)
		return uc
	}
	a, b := mk(fds[0]), mk(fds[1])
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestSendRecvRequestPassesFds(t *testing.T) {
	require := require.New(t)
	cli, srv := connPair(t)

	errR, errW, err := os.Pipe()
	require.NoError(err)
	defer errR.Close()
	bulkR, bulkW, err := os.Pipe()
	require.NoError(err)
	defer bulkR.Close()

	req := Request{Cmd: CmdVolumeHeaders, Abbrev: "DB_VEL", Sweep: 1}
	require.NoError(SendRequest(cli, req, errW, bulkW))
	errW.Close()
	bulkW.Close()

	got, errChan, bulkChan, err := RecvRequest(srv)
	require.NoError(err)
	require.Equal(req, got)

	// the received descriptors are live: what the daemon writes shows
	// up on the client's pipe ends
	_, err = bulkChan.WriteString("bulk bytes")
	require.NoError(err)
	_, err = errChan.WriteString("oops")
	require.NoError(err)
	bulkChan.Close()
	errChan.Close()

	buf := make([]byte, 32)
	n, _ := bulkR.Read(buf)
	require.Equal("bulk bytes", string(buf[:n]))
	n, _ = errR.Read(buf)
	require.Equal("oops", string(buf[:n]))
}

func TestRecvRequestRejectsWrongFdCount(t *testing.T) {
	require := require.New(t)
	cli, srv := connPair(t)

	f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	require.NoError(err)
	defer f.Close()

	// one fd instead of the mandatory two
	oob := unix.UnixRights(int(f.Fd()))
	_, _, err = cli.WriteMsgUnix(Request{Cmd: CmdExit}.encode(), oob, nil)
	require.NoError(err)

	_, _, _, err = RecvRequest(srv)
	require.ErrorIs(err, ErrProtocol)
}
