// Package terminal implements the simulated shell: a deterministic in-process
// stand-in used when the host cannot provide a pseudo-terminal.
package terminal

import (
	"fmt"
	"strings"
	"time"
)

const simHostname = "relaycore"

// simConfig configures the simulated shell.
type simConfig struct {
	User    string
	HomeDir string
	Emit    func(data []byte)
	Now     func() time.Time
}

// simBacking is the deterministic in-process shell used when no real PTY is
// available. It echoes keystrokes, keeps a pending line buffer, and answers
// a small fixed command vocabulary, so a client sees a plausible terminal
// either way. All methods run under the owning session's lock.
type simBacking struct {
	user     string
	cwd      string
	env      map[string]string
	pending  []byte
	commands int
	exited   bool
	emit     func([]byte)
	now      func() time.Time
}

func newSimBacking(cfg simConfig) *simBacking {
	user := cfg.User
	if user == "" {
		user = "user"
	}
	home := cfg.HomeDir
	if home == "" {
		home = "/home/" + user
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &simBacking{
		user: user,
		cwd:  home,
		env: map[string]string{
			"HOME":  home,
			"USER":  user,
			"SHELL": "/bin/bash",
			"TERM":  "xterm-256color",
		},
		emit: cfg.Emit,
		now:  now,
	}
}

func (b *simBacking) start() {
	b.emit([]byte("Welcome to relaycore terminal (simulated)\r\nType 'help' to list available commands.\r\n"))
	b.emit([]byte(b.prompt()))
}

// write interprets raw keystrokes: printable bytes are echoed and buffered,
// carriage return executes the pending line, DEL and backspace erase, and
// Ctrl-C abandons the line.
func (b *simBacking) write(input []byte) (bool, error) {
	if b.exited {
		return true, nil
	}
	var echo []byte
	flush := func() {
		if len(echo) > 0 {
			b.emit(echo)
			echo = nil
		}
	}

	var prev byte
	for _, c := range input {
		if c == '\n' && prev == '\r' {
			prev = c
			continue
		}
		prev = c
		switch {
		case c == '\r' || c == '\n':
			echo = append(echo, '\r', '\n')
			flush()
			b.execLine()
			if b.exited {
				return true, nil
			}
		case c == 0x7f || c == 0x08:
			if len(b.pending) > 0 {
				b.pending = b.pending[:len(b.pending)-1]
				echo = append(echo, '\b', ' ', '\b')
			}
		case c == 0x03:
			b.pending = b.pending[:0]
			echo = append(echo, "^C\r\n"...)
			echo = append(echo, b.prompt()...)
		case c >= 0x20 || c == '\t':
			b.pending = append(b.pending, c)
			echo = append(echo, c)
		}
	}
	flush()
	return false, nil
}

func (b *simBacking) execLine() {
	line := strings.TrimSpace(string(b.pending))
	b.pending = b.pending[:0]
	if line != "" {
		b.run(line)
		if b.exited {
			return
		}
	}
	b.emit([]byte(b.prompt()))
}

func (b *simBacking) run(line string) {
	b.commands++
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	if name == "exit" {
		b.exited = true
		b.emit([]byte("logout\r\n"))
		return
	}
	cmd, ok := simCommands[name]
	if !ok {
		b.emit(fmt.Appendf(nil, "bash: %s: command not found\r\n", name))
		return
	}
	if out := cmd(b, args); out != "" {
		b.emit([]byte(out))
	}
}

func (b *simBacking) prompt() string {
	dir := b.cwd
	if home := b.env["HOME"]; home != "" && strings.HasPrefix(dir, home) {
		dir = "~" + strings.TrimPrefix(dir, home)
	}
	return fmt.Sprintf("%s@%s:%s$ ", b.user, simHostname, dir)
}

var simCommands = map[string]func(b *simBacking, args []string) string{
	"pwd": func(b *simBacking, _ []string) string {
		return b.cwd + "\r\n"
	},
	"ls": func(_ *simBacking, _ []string) string {
		return "documents  downloads  projects\r\n"
	},
	"whoami": func(b *simBacking, _ []string) string {
		return b.user + "\r\n"
	},
	"date": func(b *simBacking, _ []string) string {
		return b.now().Format(time.UnixDate) + "\r\n"
	},
	"echo": func(_ *simBacking, args []string) string {
		return strings.Join(args, " ") + "\r\n"
	},
	"clear": func(_ *simBacking, _ []string) string {
		return "\x1b[2J\x1b[H"
	},
	"help": func(_ *simBacking, _ []string) string {
		return "Available commands: pwd, ls, whoami, date, echo, clear, help, exit\r\n"
	},
}

func (b *simBacking) resize(int, int) error { return nil }

func (b *simBacking) close() error {
	b.exited = true
	return nil
}

func (b *simBacking) pid() int { return 0 }

func (b *simBacking) mode() string { return ModeSimulated }
