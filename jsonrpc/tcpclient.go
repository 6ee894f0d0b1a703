package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

type TCPClient struct {
	Addr         string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func NewTCPClient(addr string) *TCPClient {
	return &TCPClient{
		Addr:         addr,
		DialTimeout:  time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Call sends one command on a fresh connection and decodes the reply.
func (c *TCPClient) Call(ctx context.Context, command string, parameter interface{}) (*Response, error) {
	req := struct {
		Command   string      `json:"command"`
		Parameter interface{} `json:"parameter,omitempty"`
	}{command, parameter}

	buf, err := PrepareJSONResponse(req)
	if err != nil {
		return nil, err
	}

	d := net.Dialer{Timeout: c.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(deadline(ctx, c.WriteTimeout)); err != nil {
		return nil, err
	}
	if _, err := conn.Write(buf); err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(deadline(ctx, c.ReadTimeout)); err != nil {
		return nil, err
	}
	line, err := readLine(bufio.NewReader(conn))
	if err != nil {
		return nil, fmt.Errorf("read reply from %s: %w", c.Addr, err)
	}

	resp := &Response{}
	if err := json.Unmarshal(line, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// deadline is now+d, cut short by the deadline of ctx.
func deadline(ctx context.Context, d time.Duration) time.Time {
	t := time.Now().Add(d)
	if dl, ok := ctx.Deadline(); ok && dl.Before(t) {
		return dl
	}
	return t
}
