// Package journal provides querying, creation, deletion and cursor-based
// reading of the NTFS/ReFS USN change journal on a volume device.
//
// All operating system access goes through the Device interface, so the
// reading state machine is testable against scripted devices on any
// platform; on Windows, *volume.Volume satisfies Device.
package journal

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/wangfu91/usn-journal-go/internal/winerr"
	"github.com/wangfu91/usn-journal-go/usn"
	"github.com/wangfu91/usn-journal-go/volume"
)

// Device is the volume device a journal lives on. Control issues one device
// control request and reports how many bytes were written into out. The call
// blocks the calling goroutine for the duration of the OS operation.
type Device interface {
	Control(code uint32, in, out []byte) (uint32, error)
}

// Volume device control codes for change journal operations.
const (
	fsctlQueryUSNJournal  = 0x000900f4
	fsctlCreateUSNJournal = 0x000900e7
	fsctlDeleteUSNJournal = 0x000900f8
	fsctlReadUSNJournal   = 0x000900bb
)

const (
	// DefaultMaxSize is the journal maximum size used by Create when the
	// caller passes 0.
	DefaultMaxSize = 32 << 20

	// DefaultAllocationDelta is the journal allocation delta used by Create
	// when the caller passes 0.
	DefaultAllocationDelta = 8 << 20
)

// Delete flags for fsctlDeleteUSNJournal: delete and wait for completion.
const deleteFlags = 0x1 | 0x2

// Stats is the state of the change journal on a volume, as reported by the
// operating system at query time.
type Stats struct {
	JournalID       uint64
	FirstUSN        usn.USN
	NextUSN         usn.USN
	LowestValidUSN  usn.USN
	MaxUSN          usn.USN
	MaximumSize     uint64
	AllocationDelta uint64
}

// Journal manages the change journal of one volume device.
type Journal struct {
	dev Device
}

// New returns a Journal operating on dev.
func New(dev Device) *Journal {
	return &Journal{dev: dev}
}

// Query returns the current journal state. With createIfMissing set, a
// volume without an active journal gets one created with the default sizing
// and is queried again; otherwise the absence surfaces as
// [ErrJournalNotFound].
func (j *Journal) Query(ctx context.Context, createIfMissing bool) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	stats, err := j.query()
	if err == nil {
		slog.Debug("Queried USN journal",
			"journalID", fmt.Sprintf("%#x", stats.JournalID),
			"firstUSN", stats.FirstUSN,
			"nextUSN", stats.NextUSN,
		)

		return stats, nil
	}

	if winerr.Is(err, winerr.JournalNotActive) {
		if !createIfMissing {
			return Stats{}, fmt.Errorf("query usn journal: %w", ErrJournalNotFound)
		}

		if err := j.Create(ctx, 0, 0); err != nil {
			return Stats{}, err
		}

		return j.Query(ctx, false)
	}

	return Stats{}, mapDeviceError("query usn journal", err)
}

func (j *Journal) query() (Stats, error) {
	out := make([]byte, 56)
	n, err := j.dev.Control(fsctlQueryUSNJournal, nil, out)
	if err != nil {
		return Stats{}, err
	}
	if n < uint32(len(out)) {
		return Stats{}, fmt.Errorf("query usn journal: short response (%d bytes)", n)
	}

	return Stats{
		JournalID:       binary.LittleEndian.Uint64(out),
		FirstUSN:        usn.USN(binary.LittleEndian.Uint64(out[8:])),
		NextUSN:         usn.USN(binary.LittleEndian.Uint64(out[16:])),
		LowestValidUSN:  usn.USN(binary.LittleEndian.Uint64(out[24:])),
		MaxUSN:          usn.USN(binary.LittleEndian.Uint64(out[32:])),
		MaximumSize:     binary.LittleEndian.Uint64(out[40:]),
		AllocationDelta: binary.LittleEndian.Uint64(out[48:]),
	}, nil
}

// Create creates the change journal on the volume, or adjusts its sizing if
// one already exists. Zero values select the package defaults.
func (j *Journal) Create(ctx context.Context, maxSize, allocationDelta uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	if allocationDelta == 0 {
		allocationDelta = DefaultAllocationDelta
	}

	in := make([]byte, 16)
	binary.LittleEndian.PutUint64(in, maxSize)
	binary.LittleEndian.PutUint64(in[8:], allocationDelta)

	if _, err := j.dev.Control(fsctlCreateUSNJournal, in, nil); err != nil {
		return mapDeviceError("create usn journal", err)
	}

	slog.Debug("Created USN journal", "maxSize", maxSize, "allocationDelta", allocationDelta)

	return nil
}

// Delete deletes the active change journal, invalidating every cursor
// established against it, and waits for the deletion to complete.
func (j *Journal) Delete(ctx context.Context) error {
	stats, err := j.Query(ctx, false)
	if err != nil {
		return err
	}

	in := make([]byte, 16)
	binary.LittleEndian.PutUint64(in, stats.JournalID)
	binary.LittleEndian.PutUint32(in[8:], deleteFlags)

	if _, err := j.dev.Control(fsctlDeleteUSNJournal, in, nil); err != nil {
		return mapDeviceError("delete usn journal", err)
	}

	slog.Debug("Deleted USN journal", "journalID", fmt.Sprintf("%#x", stats.JournalID))

	return nil
}

// mapDeviceError translates the OS failures every control operation can
// surface into their typed forms, wrapping everything else with its
// operation context.
func mapDeviceError(op string, err error) error {
	if winerr.Is(err, winerr.AccessDenied) {
		return fmt.Errorf("%s: %w", op, volume.ErrAccessDenied)
	}

	return fmt.Errorf("%s: %w", op, err)
}
