package journal

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/wangfu91/usn-journal-go/internal/winerr"
	"github.com/wangfu91/usn-journal-go/usn"
)

const (
	// DefaultBufferSize is the initial size of the read buffer.
	DefaultBufferSize = 64 << 10

	// maxBufferSize bounds the internal buffer growth; a record the OS
	// cannot fit into this much space surfaces as ErrBufferTooSmall.
	maxBufferSize = 1 << 20
)

// Cursor is the resumption point of a journal reader: the identity of the
// journal it was established against and the next USN to read from. It is a
// plain value so callers can persist it and resume later via [Resume];
// persistence itself is the caller's responsibility.
type Cursor struct {
	JournalID uint64
	NextUSN   usn.USN
}

// Options configures a journal reader.
type Options struct {
	// StartUSN is the position to begin reading from. Zero starts at the
	// oldest record the journal still retains.
	StartUSN usn.USN

	// ReasonMask selects which change kinds to return. Zero selects all.
	ReasonMask usn.Reason

	// OnlyOnClose restricts the sequence to records written when a file
	// was closed.
	OnlyOnClose bool

	// WaitForMore makes reads at the journal head block until further
	// records arrive instead of returning io.EOF.
	WaitForMore bool

	// Timeout is the OS-side wait bound, in seconds, applied when
	// WaitForMore is set. Zero waits indefinitely.
	Timeout uint64

	// BufferSize is the initial read buffer size. Zero selects
	// DefaultBufferSize.
	BufferSize int
}

// Reader reads the change journal forward from a cursor it exclusively
// owns. It is a single-use, forward-only sequence; it is not safe for
// concurrent use from multiple goroutines. Independent readers against the
// same volume are fine.
type Reader struct {
	dev    Device
	cursor Cursor
	opts   Options

	buf []byte
	off int
	n   int

	// err, once set, is the terminal state of the sequence: identity
	// mismatch, access denial or exhausted buffer growth. io.EOF and
	// per-record parse errors are never sticky.
	err error
}

// Reader opens a reader over the journal. The cursor is established from
// the live journal identity and opts.StartUSN; a volume without an active
// journal surfaces [ErrJournalNotFound].
func (j *Journal) Reader(ctx context.Context, opts Options) (*Reader, error) {
	stats, err := j.Query(ctx, false)
	if err != nil {
		return nil, err
	}

	return newReader(j.dev, Cursor{JournalID: stats.JournalID, NextUSN: opts.StartUSN}, opts), nil
}

// Resume opens a reader from a previously persisted cursor. It fails with
// [ErrJournalIDMismatch] when the live journal identity no longer matches
// the cursor, meaning the journal was deleted and recreated and the cursor
// position is meaningless.
func (j *Journal) Resume(ctx context.Context, cursor Cursor, opts Options) (*Reader, error) {
	stats, err := j.Query(ctx, false)
	if err != nil {
		return nil, err
	}

	if stats.JournalID != cursor.JournalID {
		return nil, fmt.Errorf("resume at usn %d: %w", cursor.NextUSN, ErrJournalIDMismatch)
	}

	return newReader(j.dev, cursor, opts), nil
}

func newReader(dev Device, cursor Cursor, opts Options) *Reader {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.ReasonMask == 0 {
		opts.ReasonMask = usn.ReasonMaskAll
	}

	return &Reader{
		dev:    dev,
		cursor: cursor,
		opts:   opts,
		buf:    make([]byte, opts.BufferSize),
	}
}

// Cursor returns the current resumption point. It advances batch-wise: after
// a successful read it points past the last record of that batch, so a
// persisted cursor resumes at the first record the reader had not yet
// fetched from the OS.
func (r *Reader) Cursor() Cursor {
	return r.cursor
}

// Next returns the next change record.
//
// It returns io.EOF at the journal head (unless WaitForMore blocks for
// more). A malformed record is returned as a *usn.ParseError for that
// position only; calling Next again continues behind it. Structural
// failures, a changed journal identity, access denial, or buffer growth
// exhausted at its maximum, are terminal: every subsequent call returns the
// same error.
func (r *Reader) Next(ctx context.Context) (usn.Record, error) {
	if r.err != nil {
		return usn.Record{}, r.err
	}

	for {
		if r.off < r.n {
			rec, length, err := usn.DecodeRecord(r.buf[:r.n], r.off)
			if err != nil {
				if length > 0 {
					// The declared length is plausible, skip just this record.
					r.off += length
				} else {
					// Unwalkable remainder, drop it; the cursor already
					// points at the next batch.
					r.off = r.n
				}

				return usn.Record{}, err
			}

			r.off += length

			return rec, nil
		}

		if err := r.fill(ctx); err != nil {
			return usn.Record{}, err
		}
	}
}

// fill issues one buffered read at the cursor. A nil return with an empty
// window means the buffer was grown in place and the read should be retried;
// the cursor is only advanced once a read succeeds.
func (r *Reader) fill(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := r.dev.Control(fsctlReadUSNJournal, r.readInput(), r.buf)
	if err != nil {
		return r.fillError(err)
	}

	if n < 8 {
		return io.EOF
	}

	// The leading 8 bytes are the USN to continue reading from.
	r.cursor.NextUSN = usn.USN(binary.LittleEndian.Uint64(r.buf))
	r.off, r.n = 8, int(n)

	if r.off >= r.n {
		return io.EOF
	}

	return nil
}

func (r *Reader) fillError(err error) error {
	switch {
	case winerr.Is(err, winerr.HandleEOF):
		return io.EOF

	case winerr.Is(err, winerr.InsufficientBuffer), winerr.Is(err, winerr.MoreData):
		if len(r.buf) >= maxBufferSize {
			r.err = fmt.Errorf("read usn journal at %d: %w", r.cursor.NextUSN, ErrBufferTooSmall)

			return r.err
		}

		grown := len(r.buf) * 2
		if grown > maxBufferSize {
			grown = maxBufferSize
		}
		r.buf = make([]byte, grown)

		return nil

	case winerr.Is(err, winerr.JournalEntryDeleted), winerr.Is(err, winerr.JournalDeleteInProgress):
		r.err = fmt.Errorf("read usn journal at %d: %w", r.cursor.NextUSN, ErrJournalIDMismatch)

		return r.err

	case winerr.Is(err, winerr.JournalNotActive):
		r.err = fmt.Errorf("read usn journal at %d: %w", r.cursor.NextUSN, ErrJournalNotFound)

		return r.err

	default:
		r.err = mapDeviceError(fmt.Sprintf("read usn journal (id=%#x, next=%d)",
			r.cursor.JournalID, r.cursor.NextUSN), err)

		return r.err
	}
}

// readInput encodes a READ_USN_JOURNAL_DATA_V0 request at the cursor.
func (r *Reader) readInput() []byte {
	var onlyOnClose uint32
	if r.opts.OnlyOnClose {
		onlyOnClose = 1
	}

	var bytesToWaitFor uint64
	if r.opts.WaitForMore {
		bytesToWaitFor = 1
	}

	in := make([]byte, 40)
	binary.LittleEndian.PutUint64(in, uint64(r.cursor.NextUSN))
	binary.LittleEndian.PutUint32(in[8:], uint32(r.opts.ReasonMask))
	binary.LittleEndian.PutUint32(in[12:], onlyOnClose)
	binary.LittleEndian.PutUint64(in[16:], r.opts.Timeout)
	binary.LittleEndian.PutUint64(in[24:], bytesToWaitFor)
	binary.LittleEndian.PutUint64(in[32:], r.cursor.JournalID)

	return in
}
