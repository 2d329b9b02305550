//go:build linux

package terminal

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// ptyConfig carries what newPTYBacking needs to put a shell on a fresh
// pseudo-terminal.
type ptyConfig struct {
	Shell  string
	Dir    string
	Cols   int
	Rows   int
	OnData func(data []byte)
	OnExit func()
}

// ptyBacking runs a real shell as the session leader of a pseudo-terminal.
type ptyBacking struct {
	master *os.File
	cmd    *exec.Cmd
	onData func([]byte)
	onExit func()

	finishOnce sync.Once
	done       chan struct{}
}

func newPTYBacking(cfg ptyConfig) (*ptyBacking, error) {
	master, slave, err := openPTY()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(cfg.Shell)
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0, // the slave is fd 0 in the child
	}
	if err := cmd.Start(); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("starting %s: %w", cfg.Shell, err)
	}
	slave.Close()

	b := &ptyBacking{
		master: master,
		cmd:    cmd,
		onData: cfg.OnData,
		onExit: cfg.OnExit,
		done:   make(chan struct{}),
	}
	_ = b.resize(cfg.Cols, cfg.Rows)
	return b, nil
}

// openPTY allocates a master/slave pair via /dev/ptmx.
func openPTY() (master, slave *os.File, err error) {
	master, err = os.OpenFile("/dev/ptmx", os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("opening /dev/ptmx: %w", err)
	}
	if err := unix.IoctlSetPointerInt(int(master.Fd()), unix.TIOCSPTLCK, 0); err != nil {
		master.Close()
		return nil, nil, fmt.Errorf("unlocking pty: %w", err)
	}
	n, err := unix.IoctlGetInt(int(master.Fd()), unix.TIOCGPTN)
	if err != nil {
		master.Close()
		return nil, nil, fmt.Errorf("resolving pty slave: %w", err)
	}
	slave, err = os.OpenFile(fmt.Sprintf("/dev/pts/%d", n), os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		master.Close()
		return nil, nil, fmt.Errorf("opening pty slave: %w", err)
	}
	return master, slave, nil
}

func (b *ptyBacking) start() {
	go b.pumpOutput()
	go b.reap()
}

func (b *ptyBacking) pumpOutput() {
	buf := make([]byte, 4096)
	for {
		n, err := b.master.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			b.onData(data)
		}
		if err != nil {
			b.finish()
			return
		}
	}
}

func (b *ptyBacking) reap() {
	_ = b.cmd.Wait()
	b.finish()
}

// finish runs once no matter who notices the shell is gone first: the
// output pump hitting EIO, the reaper seeing the exit, or close.
func (b *ptyBacking) finish() {
	b.finishOnce.Do(func() {
		close(b.done)
		b.master.Close()
		if b.onExit != nil {
			b.onExit()
		}
	})
}

func (b *ptyBacking) write(input []byte) (bool, error) {
	_, err := b.master.Write(input)
	return false, err
}

func (b *ptyBacking) resize(cols, rows int) error {
	return unix.IoctlSetWinsize(int(b.master.Fd()), unix.TIOCSWINSZ, &unix.Winsize{
		Col: uint16(cols),
		Row: uint16(rows),
	})
}

func (b *ptyBacking) close() error {
	select {
	case <-b.done:
		return nil
	default:
	}
	if b.cmd.Process != nil {
		_ = b.cmd.Process.Kill()
	}
	return b.master.Close()
}

func (b *ptyBacking) pid() int {
	if b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

func (b *ptyBacking) mode() string { return ModePTY }
