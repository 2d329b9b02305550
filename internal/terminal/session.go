// Package terminal defines the session record shared by the manager and its
// shell backings, and the backing contract both implementations satisfy.
package terminal

import (
	"sync"
	"time"
)

// Status describes a session's lifecycle state.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Backing modes reported in session info.
const (
	ModePTY       = "pty"
	ModeSimulated = "simulated"
)

// Geometry outside these bounds falls back to the configured defaults.
const (
	maxCols = 1000
	maxRows = 1000
)

// backing abstracts the shell behind a session: a real process on a
// pseudo-terminal, or the in-process simulated shell.
type backing interface {
	// start begins producing output. It is called exactly once, after the
	// session is registered with the manager, so no output can arrive for
	// a session nobody can look up yet.
	start()

	// write feeds input to the shell. exited reports that the input caused
	// the shell to terminate; the caller then destroys the session.
	write(input []byte) (exited bool, err error)

	resize(cols, rows int) error
	close() error
	pid() int
	mode() string
}

// Session is one terminal attached to a shell. The owner and shell are
// fixed at creation; state is guarded by mu, the output callbacks by cbMu
// so they can be swapped while the shell holds mu.
type Session struct {
	id          string
	ownerUserID string
	shell       string

	mu           sync.Mutex
	cols         int
	rows         int
	status       Status
	createdAt    time.Time
	lastActivity time.Time
	backing      backing

	cbMu   sync.Mutex
	onData func(sessionID string, data []byte)
	onExit func(sessionID, reason string)
}

// Info is the read-only projection of a session.
type Info struct {
	ID             string    `json:"id"`
	PID            int       `json:"pid,omitempty"`
	OwnerUserID    string    `json:"ownerUserId,omitempty"`
	Shell          string    `json:"shell"`
	Cols           int       `json:"cols"`
	Rows           int       `json:"rows"`
	Status         Status    `json:"status"`
	Mode           string    `json:"mode"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

func (s *Session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:             s.id,
		PID:            s.backing.pid(),
		OwnerUserID:    s.ownerUserID,
		Shell:          s.shell,
		Cols:           s.cols,
		Rows:           s.rows,
		Status:         s.status,
		Mode:           s.backing.mode(),
		CreatedAt:      s.createdAt,
		LastActivityAt: s.lastActivity,
	}
}

func (s *Session) write(now time.Time, input []byte) (exited bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return false, nil
	}
	s.lastActivity = now
	return s.backing.write(input)
}

func (s *Session) resize(now time.Time, cols, rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return nil
	}
	s.cols, s.rows = cols, rows
	s.lastActivity = now
	return s.backing.resize(cols, rows)
}

func (s *Session) lastActivityAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

// deliver hands shell output to the current data callback.
func (s *Session) deliver(data []byte) {
	s.cbMu.Lock()
	h := s.onData
	s.cbMu.Unlock()
	if h != nil {
		h(s.id, data)
	}
}

func (s *Session) exitNotify(reason string) {
	s.cbMu.Lock()
	h := s.onExit
	s.cbMu.Unlock()
	if h != nil {
		h(s.id, reason)
	}
}

// rebind points the session's output at a different consumer. Used when an
// owner reconnects and attaches to a session that outlived its connection.
func (s *Session) rebind(onData func(string, []byte), onExit func(string, string)) {
	s.cbMu.Lock()
	s.onData = onData
	s.onExit = onExit
	s.cbMu.Unlock()
}

// stop closes the backing once. Holding mu here also fences off concurrent
// writes, which keeps backends from seeing input after close.
func (s *Session) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusStopped {
		return
	}
	s.status = StatusStopped
	_ = s.backing.close()
}

func clampGeometry(cols, rows, defCols, defRows int) (int, int) {
	if cols <= 0 || cols > maxCols {
		cols = defCols
	}
	if rows <= 0 || rows > maxRows {
		rows = defRows
	}
	return cols, rows
}
