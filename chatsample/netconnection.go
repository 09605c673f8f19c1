package main

import (
	"bufio"
	"context"
	"net"
	"time"

	"github.com/philippseith/hublifetime"
)

// netConnection is a line based chat connection over TCP. Each frame written by the
// hub is followed by a newline, each line read is one command.
type netConnection struct {
	*hublifetime.ConnectionBase
	timeout time.Duration
	conn    net.Conn
	scanner *bufio.Scanner
}

func newNetConnection(ctx context.Context, conn net.Conn, timeout time.Duration) *netConnection {
	return &netConnection{
		ConnectionBase: hublifetime.NewConnectionBase(ctx, ""),
		timeout:        timeout,
		conn:           conn,
		scanner:        bufio.NewScanner(conn),
	}
}

func (nc *netConnection) Write(p []byte) (n int, err error) {
	if nc.timeout > 0 {
		defer func() { _ = nc.conn.SetWriteDeadline(time.Time{}) }()
		_ = nc.conn.SetWriteDeadline(time.Now().Add(nc.timeout))
	}
	line := make([]byte, 0, len(p)+1)
	line = append(append(line, p...), '\n')
	if _, err := nc.conn.Write(line); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ReadMessage reads the next command line
func (nc *netConnection) ReadMessage(context.Context) ([]byte, error) {
	if !nc.scanner.Scan() {
		if err := nc.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, net.ErrClosed
	}
	return append([]byte(nil), nc.scanner.Bytes()...), nil
}

func (nc *netConnection) Abort() {
	nc.ConnectionBase.Abort()
	_ = nc.conn.Close()
}
