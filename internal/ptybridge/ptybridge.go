// Package ptybridge exposes a USB serial port as a pseudo terminal so that
// programs which only know how to open tty devices can talk to it.
package ptybridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/creack/pty"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	usbserial "github.com/allbin/go-usbserial"
)

const bufferSize = 4096

// Bridge copies bytes between a serial port and the master side of a pty.
type Bridge struct {
	port *usbserial.SerialPort
	log  *zap.SugaredLogger

	ptmx *os.File
	tty  *os.File
	link string

	rx atomic.Uint64
	tx atomic.Uint64
}

// New allocates a pty for port. The port must already be open.
func New(port *usbserial.SerialPort, log *zap.SugaredLogger) (*Bridge, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate pty: %w", err)
	}
	if err := makeRaw(tty); err != nil {
		return nil, multierr.Combine(err, ptmx.Close(), tty.Close())
	}
	return &Bridge{
		port: port,
		log:  log.With("port", port.Name(), "pty", tty.Name()),
		ptmx: ptmx,
		tty:  tty,
	}, nil
}

// Path returns the device path clients open, e.g. /dev/pts/4.
func (b *Bridge) Path() string {
	return b.tty.Name()
}

// Link creates a symlink to Path. Close removes it.
func (b *Bridge) Link(path string) error {
	if err := os.Symlink(b.Path(), path); err != nil {
		return fmt.Errorf("failed to link %s: %w", path, err)
	}
	b.link = path
	return nil
}

// Stats returns the bytes moved from the serial port to the pty and back.
func (b *Bridge) Stats() (rx, tx uint64) {
	return b.rx.Load(), b.tx.Load()
}

// Run pumps data both ways until ctx is done or either side fails.
func (b *Bridge) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		buf := make([]byte, bufferSize)
		for {
			n, err := b.port.ReadContext(ctx, buf)
			if err != nil {
				return err
			}
			if _, err := b.ptmx.Write(buf[:n]); err != nil {
				return fmt.Errorf("pty write: %w", err)
			}
			b.rx.Add(uint64(n))
		}
	})

	g.Go(func() error {
		buf := make([]byte, bufferSize)
		for {
			n, err := b.ptmx.Read(buf)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("pty read: %w", err)
			}
			if _, err := b.port.Write(buf[:n]); err != nil {
				return err
			}
			b.tx.Add(uint64(n))
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		// unblock the pty reader
		if err := b.ptmx.SetReadDeadline(time.Now()); err != nil {
			b.log.Debugw("pty deadline not supported", "error", err)
		}
		return ctx.Err()
	})

	b.log.Infow("bridge running")
	err := g.Wait()
	rx, tx := b.Stats()
	b.log.Infow("bridge stopped", "rx", rx, "tx", tx)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Close releases the pty and removes the link. The serial port stays open.
func (b *Bridge) Close() error {
	err := multierr.Combine(b.ptmx.Close(), b.tty.Close())
	if b.link != "" {
		if rerr := os.Remove(b.link); rerr != nil && !os.IsNotExist(rerr) {
			err = multierr.Append(err, rerr)
		}
		b.link = ""
	}
	return err
}
