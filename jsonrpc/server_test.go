package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, handler ServerHandlerFunc, keepAlive bool) *Server {
	t.Helper()

	s, err := NewServer("127.0.0.1:0", handler, keepAlive)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe() }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, s.Shutdown(ctx))
		require.NoError(t, <-done)
	})
	return s
}

func echoHandler(conn net.Conn, req *APIRequest, parseErr error) error {
	if parseErr != nil {
		return WriteError(conn, "", parseErr)
	}
	if req.Command == "fail" {
		return WriteError(conn, req.Command, errors.New("failed on purpose"))
	}
	return WriteResult(conn, req.Command, map[string]string{"parameter": string(req.Parameter)})
}

// failingListener fails every Accept with EMFILE until closed.
type failingListener struct {
	net.Listener
	accepts atomic.Int32
}

func (l *failingListener) Accept() (net.Conn, error) {
	l.accepts.Add(1)
	return nil, &net.OpError{Op: "accept", Net: "tcp", Err: syscall.EMFILE}
}

func TestAcceptErrorBackoff(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", echoHandler, false)
	require.NoError(t, err)
	ln := &failingListener{Listener: s.listener}
	s.listener = ln

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe() }()

	time.Sleep(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, <-done)

	// backoff of 5, 10, 20, 40 and 80ms allows about six attempts in 200ms
	n := ln.accepts.Load()
	require.GreaterOrEqual(t, n, int32(2))
	require.LessOrEqual(t, n, int32(8))
}

func TestCallHonorsContextDeadline(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	// accept and never reply
	go func() {
		conn, err := l.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(2 * time.Second)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = NewTCPClient(l.Addr().String()).Call(ctx, "status", nil)
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestCall(t *testing.T) {
	s := startServer(t, echoHandler, false)
	c := NewTCPClient(s.Addr().String())

	resp, err := c.Call(context.Background(), "status", nil)
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "status", resp.Command)

	resp, err = c.Call(context.Background(), "echo", 42)
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"parameter": "42"}, resp.Result)

	resp, err = c.Call(context.Background(), "fail", nil)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, "failed on purpose", resp.Error)
}

func TestKeepAlive(t *testing.T) {
	s := startServer(t, echoHandler, true)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	r := bufio.NewReader(conn)
	for _, cmd := range []string{"a", "b", "c"} {
		_, err := conn.Write([]byte(`{"command":"` + cmd + `"}` + "\n"))
		require.NoError(t, err)

		line, err := r.ReadBytes('\n')
		require.NoError(t, err)

		var resp Response
		require.NoError(t, json.Unmarshal(line, &resp))
		require.Equal(t, cmd, resp.Command)
	}
}

func TestMalformedRequest(t *testing.T) {
	s := startServer(t, echoHandler, false)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not json\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.False(t, resp.OK)
	require.NotEmpty(t, resp.Error)
}

func TestDefaultHandler(t *testing.T) {
	s := startServer(t, nil, false)

	resp, err := NewTCPClient(s.Addr().String()).Call(context.Background(), "anything", nil)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "anything")
}

func TestPrepareJSONResponse(t *testing.T) {
	buf, err := PrepareJSONResponse(map[string]int{"a": 1})
	require.NoError(t, err)
	require.Equal(t, "{\"a\":1}\n", string(buf))
}
