// Package terminal manages interactive shell sessions for connected
// clients. Each session is backed by a real shell on a pseudo-terminal when
// the host allows it, and falls back to a deterministic simulated shell when
// it does not, so the feature works the same from the client's point of
// view either way.
//
// The manager never schedules its own maintenance: idle sessions are only
// reaped when the owner of the manager calls SweepIdle.
package terminal

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrManagerClosed is returned by Create after Shutdown.
var ErrManagerClosed = errors.New("terminal manager is shut down")

// Options configures a Manager.
type Options struct {
	DefaultShell string
	HomeDir      string
	User         string
	DefaultCols  int
	DefaultRows  int

	// DisablePTY forces every session onto the simulated shell. Used in
	// tests and on hosts where spawning shells is off the table.
	DisablePTY bool
}

// CreateOptions describes one session request.
type CreateOptions struct {
	OwnerUserID string
	Shell       string
	Cols        int
	Rows        int

	// OnCreated is called once the session is resolvable by id, before any
	// output flows, so callers can announce the session first.
	OnCreated func(info Info)

	// OnData receives shell output. It is called from internal goroutines
	// and must not block.
	OnData func(sessionID string, data []byte)

	// OnExit is called exactly once when the session is destroyed, with
	// the reason it went away.
	OnExit func(sessionID, reason string)
}

// Manager owns all live terminal sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byOwner  map[string]map[string]struct{}
	closed   bool

	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewManager returns a Manager with zero-value options filled in.
func NewManager(opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultShell == "" {
		opts.DefaultShell = "/bin/bash"
	}
	if opts.DefaultCols <= 0 {
		opts.DefaultCols = 80
	}
	if opts.DefaultRows <= 0 {
		opts.DefaultRows = 24
	}
	if opts.User == "" {
		opts.User = "user"
	}
	if opts.HomeDir == "" {
		opts.HomeDir = "/home/" + opts.User
	}
	return &Manager{
		sessions: make(map[string]*Session),
		byOwner:  make(map[string]map[string]struct{}),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Create spawns a new session. It tries a real PTY first and silently falls
// back to the simulated shell when the host cannot provide one; the only
// trace of the fallback is the mode in the returned Info and a log line.
func (m *Manager) Create(opts CreateOptions) (Info, error) {
	shell := opts.Shell
	if shell == "" {
		shell = m.opts.DefaultShell
	}
	cols, rows := clampGeometry(opts.Cols, opts.Rows, m.opts.DefaultCols, m.opts.DefaultRows)

	id := uuid.NewString()
	now := m.now()
	s := &Session{
		id:           id,
		ownerUserID:  opts.OwnerUserID,
		shell:        shell,
		cols:         cols,
		rows:         rows,
		status:       StatusRunning,
		createdAt:    now,
		lastActivity: now,
		onData:       opts.OnData,
		onExit:       opts.OnExit,
	}

	exited := func() {
		m.destroy(id, "process exited")
	}
	s.backing = m.newBacking(shell, cols, rows, s.deliver, exited)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = s.backing.close()
		return Info{}, ErrManagerClosed
	}
	m.sessions[id] = s
	if opts.OwnerUserID != "" {
		owned := m.byOwner[opts.OwnerUserID]
		if owned == nil {
			owned = make(map[string]struct{})
			m.byOwner[opts.OwnerUserID] = owned
		}
		owned[id] = struct{}{}
	}
	m.mu.Unlock()

	if opts.OnCreated != nil {
		opts.OnCreated(s.info())
	}

	// Output only starts flowing once the session is resolvable by id and
	// the caller has been told about it.
	s.backing.start()

	m.logger.Info("terminal session created",
		"session", id,
		"mode", s.backing.mode(),
		"shell", shell,
		"cols", cols,
		"rows", rows,
		"owner", opts.OwnerUserID)
	return s.info(), nil
}

func (m *Manager) newBacking(shell string, cols, rows int, emit func([]byte), exited func()) backing {
	if !m.opts.DisablePTY {
		b, err := newPTYBacking(ptyConfig{
			Shell:  shell,
			Dir:    m.opts.HomeDir,
			Cols:   cols,
			Rows:   rows,
			OnData: emit,
			OnExit: exited,
		})
		if err == nil {
			return b
		}
		m.logger.Warn("pty allocation failed, falling back to simulated shell",
			"shell", shell, "error", err)
	}
	return newSimBacking(simConfig{
		User:    m.opts.User,
		HomeDir: m.opts.HomeDir,
		Emit:    emit,
		Now:     m.now,
	})
}

// Write feeds input to a session. Unknown ids report false; write failures
// on a dying session are logged, not surfaced.
func (m *Manager) Write(id string, input []byte) bool {
	s := m.get(id)
	if s == nil {
		return false
	}
	exited, err := s.write(m.now(), input)
	if err != nil {
		m.logger.Debug("terminal write failed", "session", id, "error", err)
	}
	if exited {
		m.destroy(id, "exit")
	}
	return true
}

// Resize changes a session's geometry. Out-of-range values snap to the
// configured defaults.
func (m *Manager) Resize(id string, cols, rows int) bool {
	s := m.get(id)
	if s == nil {
		return false
	}
	cols, rows = clampGeometry(cols, rows, m.opts.DefaultCols, m.opts.DefaultRows)
	if err := s.resize(m.now(), cols, rows); err != nil {
		m.logger.Debug("terminal resize failed", "session", id, "error", err)
	}
	return true
}

// Destroy tears a session down. It reports false when the id is unknown,
// including the second call for the same id.
func (m *Manager) Destroy(id string) bool {
	return m.destroy(id, "destroyed")
}

// destroy removes the session from the maps first, so exactly one caller
// wins when a user destroy races the process exiting, then stops the
// backing and fires OnExit.
func (m *Manager) destroy(id, reason string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, id)
	if s.ownerUserID != "" {
		if owned := m.byOwner[s.ownerUserID]; owned != nil {
			delete(owned, id)
			if len(owned) == 0 {
				delete(m.byOwner, s.ownerUserID)
			}
		}
	}
	m.mu.Unlock()

	s.stop()
	s.exitNotify(reason)
	m.logger.Info("terminal session destroyed", "session", id, "reason", reason)
	return true
}

// Rebind attaches an existing session's output to a new consumer, for
// owners reconnecting to a session that outlived their connection. It
// reports false for unknown ids.
func (m *Manager) Rebind(id string, onData func(sessionID string, data []byte), onExit func(sessionID, reason string)) (Info, bool) {
	s := m.get(id)
	if s == nil {
		return Info{}, false
	}
	s.rebind(onData, onExit)
	s.touch(m.now())
	m.logger.Info("terminal session rebound", "session", id)
	return s.info(), true
}

// SweepIdle destroys every session whose last activity is strictly older
// than maxIdle and returns how many went away. A session idle for exactly
// maxIdle survives until the next sweep.
func (m *Manager) SweepIdle(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.RLock()
	var idle []string
	for id, s := range m.sessions {
		if s.lastActivityAt().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	sort.Strings(idle)
	reaped := 0
	for _, id := range idle {
		if m.destroy(id, "idle timeout") {
			reaped++
		}
	}
	if reaped > 0 {
		m.logger.Info("idle terminal sessions reaped", "count", reaped)
	}
	return reaped
}

// Get returns a session's info.
func (m *Manager) Get(id string) (Info, bool) {
	s := m.get(id)
	if s == nil {
		return Info{}, false
	}
	return s.info(), true
}

// ForUser returns the sessions owned by a user, oldest first.
func (m *Manager) ForUser(userID string) []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.byOwner[userID]))
	for id := range m.byOwner[userID] {
		if s, ok := m.sessions[id]; ok {
			sessions = append(sessions, s)
		}
	}
	m.mu.RUnlock()
	return infosSorted(sessions)
}

// All returns every live session, oldest first.
func (m *Manager) All() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()
	return infosSorted(sessions)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown destroys every session and refuses further creates.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		m.destroy(id, "server shutdown")
	}
	m.logger.Info("terminal manager shut down", "sessions", len(ids))
}

func (m *Manager) get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

func infosSorted(sessions []*Session) []Info {
	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}
