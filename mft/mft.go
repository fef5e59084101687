// Package mft enumerates the Master File Table of an NTFS volume: one
// batched forward pass over every live record in the catalog, keyed by an
// internal file-reference cursor rather than journal time.
//
// The operating system is reached through the same Device seam as the
// journal package, so the batching logic is testable against scripted
// devices on any platform.
package mft

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/wangfu91/usn-journal-go/internal/winerr"
	"github.com/wangfu91/usn-journal-go/pathing"
	"github.com/wangfu91/usn-journal-go/usn"
	"github.com/wangfu91/usn-journal-go/volume"
)

// Device is the volume device whose catalog is enumerated; on Windows,
// *volume.Volume satisfies it.
type Device interface {
	Control(code uint32, in, out []byte) (uint32, error)
}

const fsctlEnumUSNData = 0x000900b3

const (
	// DefaultBufferSize is the initial size of the enumeration buffer.
	DefaultBufferSize = 64 << 10

	maxBufferSize = 1 << 20
)

// Entry is one live record of the catalog, decoded during a single
// enumeration pass. Entries carry no ordering guarantee beyond the
// monotonicity of the enumeration cursor within their pass.
type Entry struct {
	USN        usn.USN
	FileRef    usn.FileRef
	ParentRef  usn.FileRef
	Attributes uint32
	Name       string
}

// IsDir reports whether the entry describes a directory.
func (e *Entry) IsDir() bool {
	return e.Attributes&usn.AttrDirectory != 0
}

// Options configures an enumeration pass.
type Options struct {
	// LowUSN and HighUSN restrict the pass to records whose last-change
	// USN falls inside the range. The zero range covers everything.
	LowUSN  usn.USN
	HighUSN usn.USN

	// BufferSize is the initial batch buffer size. Zero selects
	// DefaultBufferSize.
	BufferSize int
}

// Enumerator enumerates the catalog of one volume device. Each Scan call
// starts an independent pass; the Enumerator itself holds no pass state.
type Enumerator struct {
	dev  Device
	opts Options
}

// New returns an Enumerator operating on dev.
func New(dev Device, opts Options) *Enumerator {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.HighUSN == 0 {
		opts.HighUSN = math.MaxInt64
	}

	return &Enumerator{dev: dev, opts: opts}
}

// Scan begins a fresh pass from the start of the catalog. The returned pass
// is single-use and forward-only; it must not be shared across goroutines,
// but independent passes may run concurrently.
func (e *Enumerator) Scan() *Pass {
	return &Pass{
		dev:  e.dev,
		opts: e.opts,
		buf:  make([]byte, e.opts.BufferSize),
	}
}

// Pass is one in-progress enumeration pass. Its cursor is the file
// reference the next batch starts from, as reported by the OS with each
// batch.
type Pass struct {
	dev  Device
	opts Options

	nextRef uint64
	buf     []byte
	off     int
	n       int

	err error
}

// Next returns the next catalog entry of the pass.
//
// It returns io.EOF once the catalog is exhausted. A malformed record is
// returned as a *usn.ParseError for that position only; calling Next again
// continues behind it. Structural failures end the pass.
func (p *Pass) Next(ctx context.Context) (Entry, error) {
	if p.err != nil {
		return Entry{}, p.err
	}

	for {
		if p.off < p.n {
			rec, length, err := usn.DecodeRecord(p.buf[:p.n], p.off)
			if err != nil {
				if length > 0 {
					p.off += length
				} else {
					p.off = p.n
				}

				return Entry{}, err
			}

			p.off += length

			return Entry{
				USN:        rec.USN,
				FileRef:    rec.FileRef,
				ParentRef:  rec.ParentRef,
				Attributes: rec.Attributes,
				Name:       rec.Name,
			}, nil
		}

		if err := p.fill(ctx); err != nil {
			return Entry{}, err
		}
	}
}

// fill issues one enumeration request at the pass cursor, with the same
// grow-and-retry buffer policy as the journal reader.
func (p *Pass) fill(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in := make([]byte, 24)
	binary.LittleEndian.PutUint64(in, p.nextRef)
	binary.LittleEndian.PutUint64(in[8:], uint64(p.opts.LowUSN))
	binary.LittleEndian.PutUint64(in[16:], uint64(p.opts.HighUSN))

	n, err := p.dev.Control(fsctlEnumUSNData, in, p.buf)
	if err != nil {
		return p.fillError(err)
	}

	if n < 8 {
		p.err = io.EOF

		return p.err
	}

	// The leading 8 bytes are the file reference to continue from.
	p.nextRef = binary.LittleEndian.Uint64(p.buf)
	p.off, p.n = 8, int(n)

	if p.off >= p.n {
		p.err = io.EOF

		return p.err
	}

	return nil
}

func (p *Pass) fillError(err error) error {
	switch {
	case winerr.Is(err, winerr.HandleEOF):
		p.err = io.EOF

	case winerr.Is(err, winerr.InsufficientBuffer), winerr.Is(err, winerr.MoreData):
		if len(p.buf) >= maxBufferSize {
			p.err = fmt.Errorf("enum usn data at ref %#x: %w", p.nextRef, ErrBufferTooSmall)

			return p.err
		}

		grown := len(p.buf) * 2
		if grown > maxBufferSize {
			grown = maxBufferSize
		}
		p.buf = make([]byte, grown)

		return nil

	case winerr.Is(err, winerr.AccessDenied):
		p.err = fmt.Errorf("enum usn data at ref %#x: %w", p.nextRef, volume.ErrAccessDenied)

	default:
		p.err = fmt.Errorf("enum usn data at ref %#x: %w", p.nextRef, err)
	}

	return p.err
}

// CollectLinks drains the pass into table, recording the parent link of
// every entry for later path resolution. Malformed records are skipped with
// a warning; structural failures abort the collection.
func CollectLinks(ctx context.Context, pass *Pass, table *pathing.Table) error {
	for {
		entry, err := pass.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var perr *usn.ParseError
			if errors.As(err, &perr) {
				slog.Warn("Skipped malformed catalog record", "err", err)

				continue
			}

			return fmt.Errorf("collect mft links: %w", err)
		}

		table.Insert(entry.FileRef, entry.ParentRef, entry.Name)
	}
}
