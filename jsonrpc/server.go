// Package jsonrpc is a line oriented JSON command server: one request object
// per line in, one response object per line out.
package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	log "pwmfan/log"
)

type APIRequest struct {
	Command   string          `json:"command"`
	Parameter json.RawMessage `json:"parameter,omitempty"`
}

// ServerHandlerFunc answers one request. parseErr is set when the line was
// not a valid request.
type ServerHandlerFunc func(conn net.Conn, req *APIRequest, parseErr error) error

const maxRequestLine = 65536

// Accept error backoff bounds.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

type Server struct {
	listener       net.Listener
	done           chan struct{}
	wg             sync.WaitGroup
	handler        ServerHandlerFunc
	bConnKeepAlive bool
	ReadTimeout    time.Duration
}

func NewServer(addr string, handler ServerHandlerFunc, bKeepAlive bool) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener:       l,
		done:           make(chan struct{}),
		handler:        handler,
		bConnKeepAlive: bKeepAlive,
		ReadTimeout:    5 * time.Second,
	}
	if s.handler == nil {
		s.handler = DefaultServerHandler
	}
	s.wg.Add(1)
	return s, nil
}

// Addr is the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// ListenAndServe accepts connections until Shutdown. It must be called
// exactly once.
func (s *Server) ListenAndServe() error {
	defer s.wg.Done()

	var delay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			log.Errorf("Accept error %v; retrying in %v", err, delay)

			t := time.NewTimer(delay)
			select {
			case <-s.done:
				t.Stop()
				return nil
			case <-t.C:
			}
			continue
		}
		delay = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// Shutdown stops accepting and waits for open connections until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.listener.Close()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	log.Debug("Connection from ", conn.RemoteAddr())

	r := bufio.NewReaderSize(conn, 4096)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
			log.Debugf("set deadline: %v", err)
		}

		line, err := readLine(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrDeadlineExceeded) {
				log.Infof("connection %v: %v", conn.RemoteAddr(), err)
			}
			break
		}
		if len(line) == 0 {
			continue
		}

		req := APIRequest{}
		perr := json.Unmarshal(line, &req)
		if err := s.handler(conn, &req, perr); err != nil {
			log.Error(err)
			break
		}

		select {
		case <-s.done:
			return
		default:
		}

		if !s.bConnKeepAlive {
			// one command per connection by default
			break
		}
	}

	log.Debug("Server disconnected from ", conn.RemoteAddr())
}

// readLine returns the next line without its terminator. A final line
// without a newline is returned at EOF.
func readLine(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return buf, nil
			}
			return nil, err
		}
		buf = append(buf, chunk...)
		if len(buf) > maxRequestLine {
			return nil, fmt.Errorf("request line longer than %d bytes", maxRequestLine)
		}
		if !isPrefix {
			return buf, nil
		}
	}
}

func DefaultServerHandler(conn net.Conn, req *APIRequest, parseErr error) error {
	log.Infof("received from %v: %+v, error: %v", conn.RemoteAddr(), req, parseErr)
	return WriteError(conn, "unhandled", fmt.Errorf("no handler for %q", req.Command))
}
