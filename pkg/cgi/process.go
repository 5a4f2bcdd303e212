// Package cgi implements the async CGI subsystem: process spawn with
// nonblocking pipes registered in the caller's readiness loop,
// backpressured stdin feed, stdout accumulation, reaping, and timeouts. It
// follows a Create/Command/Close process-lifecycle shape, generalized from
// a sandboxed single command to a CGI child wired through raw nonblocking
// pipes instead of os/exec's buffered Stdin/Stdout fields.
package cgi

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Maruffly/webserv-sub000/pkg/tailbuffer"
)

// Process is one running CGI child, registered with the event loop by its
// two pipe file descriptors.
type Process struct {
	cmd *exec.Cmd

	stdinWrite *os.File // parent's write end; nil if the request has no body
	stdoutRead *os.File // parent's read end

	// diagnostics is a bounded tail of combined stdout+stderr, kept for
	// error logging when a script that closed its output exited non-zero or
	// was killed by a signal; it does not gate response correctness.
	diagnostics io.ReadWriter

	Output     []byte
	body       []byte
	bodyOffset int

	PID      int
	Start    time.Time
	killed   bool
	reaped   bool
	ExitCode int
}

// StdinFD returns the parent write end's fd for registration with the
// event loop's poller, or -1 if the request carried no body.
func (p *Process) StdinFD() int {
	if p.stdinWrite == nil {
		return -1
	}
	return int(p.stdinWrite.Fd())
}

// StdoutFD returns the parent read end's fd for registration with the
// event loop's poller.
func (p *Process) StdoutFD() int {
	return int(p.stdoutRead.Fd())
}

// Spawn builds the pipes and forks the interpreter (or the script
// directly when interpreter is empty) with argv composed from the
// location's cgi_pass/cgi_param directives, sets the parent's pipe ends
// nonblocking, and returns immediately without waiting for the child.
func Spawn(scriptPath, interpreter string, extraArgv []string, env []string, body []byte) (*Process, error) {
	stdoutRead, stdoutWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("cgi: create stdout pipe: %w", err)
	}

	var stdinRead, stdinWrite *os.File
	if len(body) > 0 {
		stdinRead, stdinWrite, err = os.Pipe()
		if err != nil {
			stdoutRead.Close()
			stdoutWrite.Close()
			return nil, fmt.Errorf("cgi: create stdin pipe: %w", err)
		}
	}

	name := scriptPath
	args := []string{}
	if interpreter != "" {
		name = interpreter
		args = append(args, scriptPath)
	}
	args = append(args, extraArgv...)

	cmd := exec.Command(name, args...)
	cmd.Dir = filepath.Dir(scriptPath)
	cmd.Env = env
	cmd.Stdout = stdoutWrite
	cmd.Stderr = stdoutWrite
	if stdinRead != nil {
		cmd.Stdin = stdinRead
	} else {
		cmd.Stdin = nil
	}

	if err := cmd.Start(); err != nil {
		stdoutRead.Close()
		stdoutWrite.Close()
		if stdinRead != nil {
			stdinRead.Close()
			stdinWrite.Close()
		}
		return nil, fmt.Errorf("cgi: start: %w", err)
	}

	// The child has its own copy of the write/read ends via fork; the
	// parent only needs the opposite ends.
	stdoutWrite.Close()
	if stdinRead != nil {
		stdinRead.Close()
	}

	if err := unix.SetNonblock(int(stdoutRead.Fd()), true); err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("cgi: set stdout nonblocking: %w", err)
	}
	if stdinWrite != nil {
		if err := unix.SetNonblock(int(stdinWrite.Fd()), true); err != nil {
			_ = cmd.Process.Kill()
			return nil, fmt.Errorf("cgi: set stdin nonblocking: %w", err)
		}
	}

	return &Process{
		cmd:         cmd,
		stdinWrite:  stdinWrite,
		stdoutRead:  stdoutRead,
		diagnostics: tailbuffer.NewTailBuffer(4096),
		body:        body,
		PID:         cmd.Process.Pid,
		Start:       time.Now(),
	}, nil
}

// stdinChunk bounds a single stdin write.
const stdinChunk = 64 * 1024

// FeedStdin writes one bounded chunk of the remaining body to the child's
// stdin pipe. It returns done=true once the whole body has been written
// and the pipe closed/unregistered. Transient errors (EAGAIN/EINTR) are
// reported via retry=true so the caller waits for the next writable event
// instead of treating it as failure.
func (p *Process) FeedStdin() (done bool, retry bool, err error) {
	if p.stdinWrite == nil {
		return true, false, nil
	}
	remaining := p.body[p.bodyOffset:]
	if len(remaining) == 0 {
		p.closeStdin()
		return true, false, nil
	}
	chunk := remaining
	if len(chunk) > stdinChunk {
		chunk = chunk[:stdinChunk]
	}
	n, werr := unix.Write(int(p.stdinWrite.Fd()), chunk)
	if werr != nil {
		if werr == unix.EAGAIN || werr == unix.EINTR {
			return false, true, nil
		}
		return false, false, werr
	}
	p.bodyOffset += n
	if p.bodyOffset >= len(p.body) {
		p.closeStdin()
		return true, false, nil
	}
	return false, false, nil
}

func (p *Process) closeStdin() {
	if p.stdinWrite != nil {
		p.stdinWrite.Close()
		p.stdinWrite = nil
	}
}

// stdoutChunk is the read buffer size for one readiness-driven drain pass.
const stdoutChunk = 32 * 1024

// DrainStdout reads one readiness-driven pass of the child's combined
// stdout/stderr into Output. eof is true once the child has closed its
// end.
func (p *Process) DrainStdout() (eof bool, retry bool, err error) {
	buf := make([]byte, stdoutChunk)
	n, rerr := unix.Read(int(p.stdoutRead.Fd()), buf)
	if n > 0 {
		p.Output = append(p.Output, buf[:n]...)
		p.diagnostics.Write(buf[:n])
	}
	if rerr != nil {
		if rerr == unix.EAGAIN || rerr == unix.EINTR {
			return false, true, nil
		}
		return false, false, rerr
	}
	if n == 0 {
		return true, false, nil
	}
	return false, false, nil
}

// Close releases both pipe ends. Safe to call multiple times.
func (p *Process) Close() {
	p.closeStdin()
	if p.stdoutRead != nil {
		p.stdoutRead.Close()
	}
}

// Kill sends SIGKILL to the child, used on timeout or an unrecoverable
// stdin write failure.
func (p *Process) Kill() error {
	if p.killed || p.cmd.Process == nil {
		return nil
	}
	p.killed = true
	return p.cmd.Process.Signal(syscall.SIGKILL)
}

// TryReap performs a nonblocking wait for the child. ok is false if the
// child has not yet exited. The loop's shutdown path polls it to give
// in-flight children a grace period before Kill; during normal operation
// the loop reaps children with Reap.
func (p *Process) TryReap() (ok bool, exitCode int, signaled bool) {
	if p.reaped {
		return true, p.ExitCode, p.killed
	}
	var ws syscall.WaitStatus
	pid, err := syscall.Wait4(p.PID, &ws, syscall.WNOHANG, nil)
	if err != nil || pid == 0 {
		return false, 0, false
	}
	p.reaped = true
	if ws.Signaled() {
		p.ExitCode = -1
		return true, -1, true
	}
	p.ExitCode = ws.ExitStatus()
	return true, p.ExitCode, false
}

// Reap performs a blocking wait for the child. Called once the child is
// known-terminated (stdout EOF observed, or just SIGKILLed), so the wait
// is bounded by the kernel rather than by the child's own runtime.
func (p *Process) Reap() (exitCode int, signaled bool) {
	if p.reaped {
		return p.ExitCode, p.killed
	}
	var ws syscall.WaitStatus
	_, err := syscall.Wait4(p.PID, &ws, 0, nil)
	p.reaped = true
	if err != nil {
		return -1, p.killed
	}
	if ws.Signaled() {
		p.ExitCode = -1
		return -1, true
	}
	p.ExitCode = ws.ExitStatus()
	return p.ExitCode, false
}

// Diagnostics returns the bounded tail of combined stdout/stderr captured
// so far, for inclusion in error logs when a script misbehaves.
func (p *Process) Diagnostics() []byte {
	buf := make([]byte, 4096)
	n, _ := p.diagnostics.Read(buf)
	return buf[:n]
}
