package attach

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"github.com/relaycore/relaycore/internal/protocol"
)

// detachKey is Ctrl-], the telnet escape. It never reaches the session.
const detachKey = 0x1d

// resizePollInterval is how often the local TTY geometry is re-read.
// Polling is portable where SIGWINCH is not, and half a second is
// imperceptible for a window drag.
const resizePollInterval = 500 * time.Millisecond

// client wires one local TTY to one remote terminal session.
type client struct {
	mu         sync.Mutex
	conn       *websocket.Conn
	terminalID string

	done      chan struct{}
	closeOnce sync.Once
}

func attachCmd(url, token, shell string) error {
	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return fmt.Errorf("attach requires an interactive terminal")
	}

	cols, rows, err := term.GetSize(stdinFd)
	if err != nil {
		return fmt.Errorf("read terminal size: %w", err)
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (HTTP %d)", url, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", url, err)
	}
	c := &client{conn: conn, done: make(chan struct{})}
	defer conn.Close()

	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return fmt.Errorf("set terminal raw mode: %w", err)
	}
	defer term.Restore(stdinFd, oldState)

	if err := c.send(protocol.EventTerminalCreate, protocol.TerminalCreatePayload{
		Cols:  cols,
		Rows:  rows,
		Shell: shell,
	}); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	go c.readLoop()
	go c.stdinLoop()
	go c.resizeLoop(stdinFd, cols, rows)

	<-c.done

	// Best effort: the server's idle sweep reaps the session anyway.
	if id := c.sessionID(); id != "" {
		c.send(protocol.EventTerminalDestroy, protocol.TerminalDestroyPayload{TerminalID: id})
	}
	return nil
}

// readLoop renders server events until the connection drops or the session
// ends. Presence and room traffic on the same connection is ignored.
func (c *client) readLoop() {
	defer c.finish()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			continue
		}

		switch env.Event {
		case protocol.EventTerminalCreated, protocol.EventTerminalAttached:
			var p protocol.TerminalCreatedPayload
			if json.Unmarshal(env.Data, &p) == nil {
				c.setSessionID(p.TerminalID)
			}
		case protocol.EventTerminalData:
			var p protocol.TerminalDataPayload
			if json.Unmarshal(env.Data, &p) == nil {
				os.Stdout.WriteString(p.Data)
			}
		case protocol.EventTerminalDestroyed:
			c.setSessionID("")
			return
		case protocol.EventTerminalError:
			var p protocol.TerminalErrorPayload
			if json.Unmarshal(env.Data, &p) == nil {
				fmt.Fprintf(os.Stderr, "\r\nterminal error: %s\r\n", p.Message)
			}
			return
		case protocol.EventNotification:
			var p protocol.NotificationPayload
			if json.Unmarshal(env.Data, &p) == nil {
				fmt.Fprintf(os.Stderr, "\r\n[%s] %s\r\n", p.Type, p.Message)
			}
		}
	}
}

// stdinLoop forwards keystrokes, watching for the detach key.
func (c *client) stdinLoop() {
	buf := make([]byte, 1024)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			c.finish()
			return
		}
		chunk := buf[:n]
		if i := bytes.IndexByte(chunk, detachKey); i >= 0 {
			c.forwardInput(chunk[:i])
			c.finish()
			return
		}
		c.forwardInput(chunk)
	}
}

// resizeLoop keeps the remote session's geometry in step with the local TTY.
func (c *client) resizeLoop(fd, cols, rows int) {
	ticker := time.NewTicker(resizePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			newCols, newRows, err := term.GetSize(fd)
			if err != nil || (newCols == cols && newRows == rows) {
				continue
			}
			cols, rows = newCols, newRows
			if id := c.sessionID(); id != "" {
				c.send(protocol.EventTerminalResize, protocol.TerminalResizePayload{
					TerminalID: id,
					Cols:       cols,
					Rows:       rows,
				})
			}
		}
	}
}

// forwardInput sends keystrokes to the session. Input typed before the
// session exists is dropped.
func (c *client) forwardInput(data []byte) {
	if len(data) == 0 {
		return
	}
	id := c.sessionID()
	if id == "" {
		return
	}
	c.send(protocol.EventTerminalInput, protocol.TerminalInputPayload{
		TerminalID: id,
		Input:      string(data),
	})
}

func (c *client) send(event string, payload any) error {
	msg, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *client) sessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminalID
}

func (c *client) setSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminalID = id
}

func (c *client) finish() {
	c.closeOnce.Do(func() { close(c.done) })
}
