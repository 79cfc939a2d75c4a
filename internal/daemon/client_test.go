package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jwulff/rehearse/internal/capture"
)

// startMockDaemon creates a Unix socket that accepts one connection,
// reads a command, and writes back a canned response.
func startMockDaemon(t *testing.T, response Response) (string, func()) {
	t.Helper()

	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// Read one line (the command)
		buf := make([]byte, 4096)
		if _, err := conn.Read(buf); err != nil {
			return
		}

		data, _ := json.Marshal(response)
		data = append(data, '\n')
		conn.Write(data)
	}()

	return sockPath, func() {
		ln.Close()
		os.Remove(sockPath)
	}
}

// mockDaemon serves any number of connections. Every command goes through
// handle; subscribe connections also receive pushed events.
type mockDaemon struct {
	t      *testing.T
	path   string
	ln     net.Listener
	handle func(Command) Response

	mu    sync.Mutex // guards cmds, subs, conns, muted and all writes
	cmds  []Command
	subs  []net.Conn
	conns []net.Conn
	muted map[string]bool
}

func newMockDaemon(t *testing.T, handle func(Command) Response) *mockDaemon {
	t.Helper()
	path := filepath.Join(t.TempDir(), "d.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &mockDaemon{t: t, path: path, ln: ln, handle: handle}
	go d.accept()
	t.Cleanup(d.close)
	return d
}

func (d *mockDaemon) accept() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.conns = append(d.conns, conn)
		d.mu.Unlock()
		go d.serve(conn)
	}
}

func (d *mockDaemon) serve(conn net.Conn) {
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		var cmd Command
		if err := json.Unmarshal(sc.Bytes(), &cmd); err != nil {
			return
		}
		resp := Response{OK: true}
		if d.handle != nil {
			resp = d.handle(cmd)
		}
		resp.ID = cmd.ID

		d.mu.Lock()
		d.cmds = append(d.cmds, cmd)
		if cmd.Cmd == CmdSubscribe {
			d.subs = append(d.subs, conn)
		}
		if !d.muted[cmd.Cmd] {
			writeLine(conn, resp)
		}
		d.mu.Unlock()
	}
}

// mute makes the daemon accept the named commands without ever answering
// them, as a wedged daemon would.
func (d *mockDaemon) mute(names ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.muted == nil {
		d.muted = make(map[string]bool)
	}
	for _, n := range names {
		d.muted[n] = true
	}
}

func (d *mockDaemon) push(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.subs {
		writeLine(c, ev)
	}
}

func (d *mockDaemon) commands(name string) []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Command
	for _, c := range d.cmds {
		if c.Cmd == name {
			out = append(out, c)
		}
	}
	return out
}

// hangUp drops every open connection, as a crashing daemon would.
func (d *mockDaemon) hangUp() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.conns {
		c.Close()
	}
}

func (d *mockDaemon) close() {
	d.ln.Close()
	d.hangUp()
}

func writeLine(conn net.Conn, v any) {
	data, _ := json.Marshal(v)
	conn.Write(append(data, '\n'))
}

func TestClientSendCommand(t *testing.T) {
	resp := Response{
		OK:         true,
		ResourceID: "res-1",
		Tracks:     []Track{{ID: "v1", Kind: "video"}},
	}

	sockPath, cleanup := startMockDaemon(t, resp)
	defer cleanup()

	client, err := Connect(sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	got, err := client.SendCommand(Command{Cmd: CmdAcquire})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if !got.OK {
		t.Error("ok = false, want true")
	}
	if got.ResourceID != "res-1" {
		t.Errorf("resourceId = %q, want %q", got.ResourceID, "res-1")
	}
}

func TestClientConnectFailure(t *testing.T) {
	_, err := Connect("/nonexistent/path/rehearse.sock")
	if err == nil {
		t.Error("expected error connecting to nonexistent socket")
	}
}

func TestClientConnectionClosed(t *testing.T) {
	d := newMockDaemon(t, nil)
	client, err := Connect(d.path)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if _, err := client.SendCommand(Command{Cmd: CmdCapabilities}); err != nil {
		t.Fatalf("capabilities: %v", err)
	}
	d.hangUp()

	_, err = client.SendCommand(Command{Cmd: CmdCapabilities})
	if err == nil {
		t.Fatal("expected error after hang-up")
	}
}

func TestClientDoMapsErrorCodes(t *testing.T) {
	d := newMockDaemon(t, func(cmd Command) Response {
		return Response{OK: false, Error: "camera busy", Code: CodeDeviceUnavailable}
	})
	client, err := Connect(d.path)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	_, err = client.Do(context.Background(), Command{Cmd: CmdAcquire})
	if !errors.Is(err, capture.ErrDeviceUnavailable) {
		t.Errorf("err = %v, want ErrDeviceUnavailable", err)
	}
	var cerr *CommandError
	if !errors.As(err, &cerr) || cerr.Message != "camera busy" || cerr.Cmd != CmdAcquire {
		t.Errorf("err = %#v, want CommandError for acquire", err)
	}
}

func TestClientSkipsAbandonedResponse(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	d := newMockDaemon(t, func(cmd Command) Response {
		if cmd.Cmd == CmdAcquire {
			<-release
			return Response{OK: true, ResourceID: "late"}
		}
		return Response{OK: true, Version: "1"}
	})
	client, err := Connect(d.path)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	defer once.Do(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = client.SendCommandContext(ctx, Command{Cmd: CmdAcquire})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	once.Do(func() { close(release) })
	resp, err := client.SendCommand(Command{Cmd: CmdCapabilities})
	if err != nil {
		t.Fatalf("capabilities: %v", err)
	}
	if resp.Version != "1" || resp.ResourceID != "" {
		t.Errorf("resp = %+v, want the capabilities response", resp)
	}
}

// startMockEventStream creates a daemon that sends a subscribe response
// then streams events.
func startMockEventStream(t *testing.T, events []Event) (string, func()) {
	t.Helper()

	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// Read subscribe command
		buf := make([]byte, 4096)
		conn.Read(buf)

		resp, _ := json.Marshal(Response{OK: true})
		conn.Write(append(resp, '\n'))

		for _, ev := range events {
			data, _ := json.Marshal(ev)
			conn.Write(append(data, '\n'))
		}
	}()

	return sockPath, func() {
		ln.Close()
		os.Remove(sockPath)
	}
}

func TestClientReadEvents(t *testing.T) {
	events := []Event{
		{Event: EvTranscript, Partial: "hello"},
		{Event: EvChunk, RecordingID: "rec-1", Data: []byte("abc")},
	}

	sockPath, cleanup := startMockEventStream(t, events)
	defer cleanup()

	client, err := Connect(sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	_, err = client.SendCommand(Command{Cmd: CmdSubscribe})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ev1, err := client.ReadEvent()
	if err != nil {
		t.Fatalf("read event 1: %v", err)
	}
	if ev1.Event != EvTranscript || ev1.Partial != "hello" {
		t.Errorf("event1 = %+v", ev1)
	}

	ev2, err := client.ReadEvent()
	if err != nil {
		t.Fatalf("read event 2: %v", err)
	}
	if ev2.Event != EvChunk || string(ev2.Data) != "abc" {
		t.Errorf("event2 = %+v", ev2)
	}

	if _, err := client.ReadEvent(); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("err = %v, want ErrConnectionClosed", err)
	}
}
