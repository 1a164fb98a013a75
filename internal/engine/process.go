package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Process is one started tool instance
type Process interface {
	// Output is the merged stdout and stderr stream
	Output() io.Reader
	Wait() error
	// Terminate asks the whole process group to stop
	Terminate() error
	// Kill forcefully stops the whole process group
	Kill() error
	// Close releases the output stream, unblocking pending reads
	Close() error
}

// Launcher starts tool processes
type Launcher interface {
	Launch(binary string, args []string) (Process, error)
}

// ExecLauncher starts processes with os/exec in their own process group, so
// signals reach helpers such as ffmpeg that the tool spawns
type ExecLauncher struct {
	Dir string
	Env []string
}

// Launch starts binary with args
func (l ExecLauncher) Launch(binary string, args []string) (Process, error) {
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}

	cmd := exec.Command(binary, args...)
	cmd.Dir = l.Dir
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}
	cmd.Stdout = writer
	cmd.Stderr = writer
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("failed to start %s: %w", binary, err)
	}
	// The child holds its own copy of the write end
	writer.Close()

	return &execProcess{cmd: cmd, output: reader}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	output *os.File
}

func (p *execProcess) Output() io.Reader { return p.output }

func (p *execProcess) Wait() error { return p.cmd.Wait() }

func (p *execProcess) Terminate() error { return p.signalGroup(unix.SIGTERM) }

func (p *execProcess) Kill() error { return p.signalGroup(unix.SIGKILL) }

func (p *execProcess) Close() error { return p.output.Close() }

func (p *execProcess) signalGroup(sig syscall.Signal) error {
	pid := p.cmd.Process.Pid
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// exitCode extracts the exit status from a Wait error. -1 means the process
// did not exit normally.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
