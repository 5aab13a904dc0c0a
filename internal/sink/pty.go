//go:build !windows

package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/srg/fa15bridge/internal/groutine"
)

// DefaultPollTimeoutMs bounds how long the PTY loops wait for readiness before checking for shutdown.
const DefaultPollTimeoutMs = 50

// PTYOptions configures a virtual serial port.
type PTYOptions struct {
	BufferSize    int            // ring buffer capacity in bytes for frames waiting to be written
	Symlink       string         // optional stable path pointing at the slave device
	Logger        *logrus.Logger // nil discards logs
	PollTimeoutMs int            // 0 uses DefaultPollTimeoutMs
}

var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// PTY exposes frames on a pseudo-terminal so serial-port software can open the slave like a COM port.
// Write never blocks: frames are queued in a ring buffer and a background loop drains it into the master.
// When no client reads the slave the queue fills and further bytes are dropped.
type PTY struct {
	logger        *logrus.Logger
	master        *os.File
	masterFd      int32
	slave         *os.File
	ttyName       string
	symlink       string
	pollTimeoutMs int

	// writeMu makes the free-space check and the enqueue one step, so a frame is queued whole or not at all.
	writeMu sync.Mutex
	queue   *ringbuffer.RingBuffer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closed  atomic.Bool
	dropped atomic.Uint64
	written atomic.Uint64
	input   atomic.Uint64
}

// OpenPTY creates the pseudo-terminal pair in raw mode and starts its I/O loops.
func OpenPTY(opts *PTYOptions) (*PTY, error) {
	if opts == nil {
		opts = &PTYOptions{}
	}
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = 1024
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger
	}
	pollTimeout := opts.PollTimeoutMs
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeoutMs
	}

	master, masterFd, slave, err := createPTY()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &PTY{
		logger:        logger,
		master:        master,
		masterFd:      masterFd,
		slave:         slave,
		ttyName:       slave.Name(),
		pollTimeoutMs: pollTimeout,
		queue:         ringbuffer.New(bufSize),
		ctx:           ctx,
		cancel:        cancel,
	}

	if opts.Symlink != "" {
		if err := p.link(opts.Symlink); err != nil {
			cancel()
			return nil, errors.Join(err, master.Close(), slave.Close())
		}
	}

	// every field the loops read is set above; nothing below mutates them
	p.wg.Add(2)
	groutine.Go(ctx, "pty-write-loop", func(ctx context.Context) {
		p.writeLoop()
	})
	groutine.Go(ctx, "pty-input-discard", func(ctx context.Context) {
		p.discardLoop()
	})

	logger.WithField("tty", p.ttyName).Info("Created PTY device")
	return p, nil
}

// link points path at the slave, replacing a stale symlink but never a regular file.
func (p *PTY) link(path string) error {
	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("refusing to replace %s: not a symlink", path)
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove stale symlink %s: %w", path, err)
		}
	}
	if err := os.Symlink(p.ttyName, path); err != nil {
		return fmt.Errorf("failed to create symlink %s -> %s: %w", path, p.ttyName, err)
	}
	p.symlink = path
	p.logger.WithFields(logrus.Fields{"tty": p.ttyName, "symlink": path}).Info("Created tty symlink")
	return nil
}

// ErrQueueFull is returned when a frame does not fit in the PTY queue. The frame is dropped whole.
var ErrQueueFull = errors.New("pty queue full")

// Write queues data for the slave. Data is queued whole or dropped whole; a dropped write returns ErrQueueFull.
func (p *PTY) Write(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.queue.Free() < len(data) {
		p.dropped.Add(uint64(len(data)))
		return 0, fmt.Errorf("%w: dropped %d bytes (no reader on %s?)", ErrQueueFull, len(data), p.ttyName)
	}
	n, err := p.queue.Write(data)
	if err != nil {
		return n, fmt.Errorf("pty queue write failed: %w", err)
	}
	return n, nil
}

func (p *PTY) writeLoop() {
	defer p.wg.Done()
	defer groutine.Recover(p.ctx, p.logger, nil)

	master := p.master
	pollFd := []unix.PollFd{{Fd: p.masterFd, Events: unix.POLLOUT}}
	buf := make([]byte, 256)

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		n, err := p.queue.TryRead(buf)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			p.logger.WithError(err).Warn("PTY queue read failed")
		}
		if n == 0 {
			time.Sleep(time.Duration(p.pollTimeoutMs) * time.Millisecond / 5)
			continue
		}

		for off := 0; off < n; {
			written, err := master.Write(buf[off:n])
			if written > 0 {
				off += written
				p.written.Add(uint64(written))
			}
			if err == nil {
				continue
			}
			switch {
			case errors.Is(err, syscall.EINTR):
			case errors.Is(err, syscall.EAGAIN):
				if _, perr := unix.Poll(pollFd, p.pollTimeoutMs); perr != nil && !errors.Is(perr, syscall.EINTR) {
					p.logger.WithError(perr).Warn("PTY poll failed")
				}
				if p.ctx.Err() != nil {
					return
				}
			case errors.Is(err, syscall.EBADF), errors.Is(err, os.ErrClosed):
				p.logger.Debug("PTY write loop exiting: master closed")
				return
			default:
				p.logger.WithError(err).Warn("PTY write loop exiting")
				return
			}
		}
	}
}

// discardLoop reads and drops whatever the client writes to the slave, so its output never backs up.
func (p *PTY) discardLoop() {
	defer p.wg.Done()
	defer groutine.Recover(p.ctx, p.logger, nil)

	master := p.master
	pollFd := []unix.PollFd{{Fd: p.masterFd, Events: unix.POLLIN}}
	buf := make([]byte, 256)

	for {
		if p.ctx.Err() != nil {
			return
		}
		ready, err := unix.Poll(pollFd, p.pollTimeoutMs)
		if err != nil && !errors.Is(err, syscall.EINTR) {
			p.logger.WithError(err).Debug("PTY input poll failed")
			continue
		}
		if ready == 0 {
			continue
		}
		n, err := master.Read(buf)
		if n > 0 {
			p.input.Add(uint64(n))
		}
		switch {
		case err == nil, errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
		case errors.Is(err, syscall.EBADF), errors.Is(err, os.ErrClosed), errors.Is(err, io.EOF):
			return
		default:
			p.logger.WithError(err).Debug("PTY input loop exiting")
			return
		}
	}
}

// Close stops the loops, removes the symlink and closes both ends.
// The descriptors are closed only after the loops have returned, so no loop polls a reused fd.
func (p *PTY) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Duration(p.pollTimeoutMs)*time.Millisecond*3 + time.Second):
		p.logger.WithField("tty", p.ttyName).Error("PTY loops did not exit in time")
	}

	if p.symlink != "" {
		if err := os.Remove(p.symlink); err != nil {
			p.logger.WithError(err).WithField("symlink", p.symlink).Warn("Failed to remove tty symlink")
		} else {
			p.logger.WithField("symlink", p.symlink).Debug("Removed tty symlink")
		}
	}

	var errs []error
	if err := p.master.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close PTY master: %w", err))
	}
	if err := p.slave.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close PTY slave: %w", err))
	}
	return errors.Join(errs...)
}

// Name returns the slave path, or the symlink when one was requested.
func (p *PTY) Name() string {
	if p.symlink != "" {
		return p.symlink
	}
	return p.ttyName
}

// TTYName returns the slave device path (e.g. /dev/pts/5).
func (p *PTY) TTYName() string { return p.ttyName }

// Stats returns instantaneous counters.
func (p *PTY) Stats() PTYStats {
	return PTYStats{
		QueueLen:     p.queue.Length(),
		QueueCap:     p.queue.Capacity(),
		DroppedBytes: p.dropped.Load(),
		WrittenBytes: p.written.Load(),
		InputBytes:   p.input.Load(),
	}
}

// createPTY opens a pseudo-terminal with the slave in raw mode and a non-blocking master.
// The master descriptor is resolved here, once, before any goroutine can race a Close.
func createPTY() (master *os.File, masterFd int32, slave *os.File, err error) {
	master, slave, err = pty.Open()
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to create PTY (check permissions and available PTY devices): %w", err)
	}

	cleanup := func(cause error) error {
		return errors.Join(cause, master.Close(), slave.Close())
	}

	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		return nil, 0, nil, cleanup(fmt.Errorf("failed to set PTY %s to raw mode: %w", slave.Name(), err))
	}
	fd := int(master.Fd())
	if err := syscall.SetNonblock(fd, true); err != nil {
		return nil, 0, nil, cleanup(fmt.Errorf("failed to set PTY master %s non-blocking: %w", slave.Name(), err))
	}
	return master, int32(fd), slave, nil
}
