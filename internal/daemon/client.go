package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jwulff/rehearse/internal/capture"
	"github.com/jwulff/rehearse/internal/recorder"
	"github.com/jwulff/rehearse/internal/transcript"
)

// ErrConnectionClosed is returned once the daemon hangs up.
var ErrConnectionClosed = errors.New("connection closed")

// CommandError is a failed response. It unwraps to the matching capture,
// recorder or transcript sentinel when the code maps to one.
type CommandError struct {
	Cmd     string
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("daemon %s: %s (%s)", e.Cmd, e.Message, e.Code)
	}
	return fmt.Sprintf("daemon %s: %s", e.Cmd, e.Message)
}

func (e *CommandError) Unwrap() error {
	switch e.Code {
	case CodePermissionDenied:
		return capture.ErrPermissionDenied
	case CodeDeviceUnavailable:
		return capture.ErrDeviceUnavailable
	case CodeConstraintUnsatisfiable:
		return capture.ErrConstraintUnsatisfiable
	case CodeUnsupportedFormat:
		return recorder.ErrUnsupportedFormat
	case CodeRecognitionUnsupported:
		return transcript.ErrUnsupported
	case CodeInsecureContext:
		return transcript.ErrInsecureContext
	}
	return nil
}

// SocketPath returns the default daemon socket path.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "rehearse", "rehearse.sock")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "rehearse", "rehearse.sock")
}

// Client communicates with the capture daemon over a Unix socket.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	mu      sync.Mutex
	nextID  atomic.Uint64
	resync  bool // an aborted read left a partial line behind
}

// Connect dials the daemon Unix socket.
func Connect(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}

	return &Client{conn: conn, scanner: newScanner(conn)}, nil
}

func newScanner(conn net.Conn) *bufio.Scanner {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024) // chunks are inlined as base64
	return scanner
}

// Close shuts down the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SendCommand sends a command and reads its response line.
func (c *Client) SendCommand(cmd Command) (Response, error) {
	return c.SendCommandContext(context.Background(), cmd)
}

// SendCommandContext is SendCommand bounded by ctx. Responses left over
// from an earlier abandoned command are skipped by ID.
func (c *Client) SendCommandContext(ctx context.Context, cmd Command) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd.ID = c.nextID.Add(1)
	data, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("marshal command: %w", err)
	}

	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
		close(fired)
	})
	defer func() {
		if !stop() {
			<-fired
			c.conn.SetDeadline(time.Time{})
		}
	}()

	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, fmt.Errorf("write command: %w", err)
	}

	for {
		if !c.scanner.Scan() {
			if ctx.Err() != nil {
				c.scanner = newScanner(c.conn)
				c.resync = true
				return Response{}, ctx.Err()
			}
			if err := c.scanner.Err(); err != nil {
				return Response{}, fmt.Errorf("read response: %w", err)
			}
			return Response{}, ErrConnectionClosed
		}

		var resp Response
		if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
			if c.resync {
				continue
			}
			return Response{}, fmt.Errorf("unmarshal response: %w", err)
		}
		if resp.ID != 0 && resp.ID != cmd.ID {
			continue
		}
		c.resync = false
		return resp, nil
	}
}

// Do sends cmd and turns a failed response into a *CommandError.
func (c *Client) Do(ctx context.Context, cmd Command) (Response, error) {
	resp, err := c.SendCommandContext(ctx, cmd)
	if err != nil {
		return Response{}, err
	}
	if !resp.OK {
		return resp, &CommandError{Cmd: cmd.Cmd, Code: resp.Code, Message: resp.Error}
	}
	return resp, nil
}

// ReadEvent reads the next NDJSON event line. Blocks until data arrives.
// After calling Subscribe, use this in a loop to receive events.
func (c *Client) ReadEvent() (Event, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Event{}, fmt.Errorf("read event: %w", err)
		}
		return Event{}, ErrConnectionClosed
	}

	var ev Event
	if err := json.Unmarshal(c.scanner.Bytes(), &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}

	return ev, nil
}
