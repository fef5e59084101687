package mft

import (
	"context"
	"encoding/binary"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangfu91/usn-journal-go/internal/winerr"
	"github.com/wangfu91/usn-journal-go/pathing"
	"github.com/wangfu91/usn-journal-go/usn"
	"github.com/wangfu91/usn-journal-go/usn/usntest"
	"github.com/wangfu91/usn-journal-go/volume"
)

type step struct {
	handle func(in, out []byte) (uint32, error)
}

// scriptDevice plays back a fixed sequence of enumeration responses,
// failing the test on any call beyond the script.
type scriptDevice struct {
	t     *testing.T
	steps []step
	n     int
}

func (d *scriptDevice) Control(code uint32, in, out []byte) (uint32, error) {
	d.t.Helper()

	require.Equal(d.t, uint32(fsctlEnumUSNData), code)
	require.Less(d.t, d.n, len(d.steps), "unexpected device control call")
	s := d.steps[d.n]
	d.n++

	return s.handle(in, out)
}

func (d *scriptDevice) done() {
	d.t.Helper()
	assert.Equal(d.t, len(d.steps), d.n, "not all scripted device calls were consumed")
}

func respond(data []byte) step {
	return step{func(_, out []byte) (uint32, error) {
		return uint32(copy(out, data)), nil
	}}
}

func fail(errno syscall.Errno) step {
	return step{func(_, _ []byte) (uint32, error) {
		return 0, errno
	}}
}

// TestPass_EnumeratesAcrossBatches tests that a pass walks every batch and
// finishes with a sticky io.EOF.
func TestPass_EnumeratesAcrossBatches(t *testing.T) {
	t.Parallel()

	dev := &scriptDevice{t: t, steps: []step{
		respond(usntest.Batch(100,
			usntest.AppendV2(nil, usn.Record{FileRef: usn.NewFileRef(10, 1), Name: "docs"}),
			usntest.AppendV2(nil, usn.Record{FileRef: usn.NewFileRef(11, 1), Name: "a.txt"}),
		)),
		respond(usntest.Batch(200,
			usntest.AppendV2(nil, usn.Record{FileRef: usn.NewFileRef(12, 1), Name: "b.txt"}),
		)),
		fail(syscall.Errno(winerr.HandleEOF)),
	}}

	pass := New(dev, Options{}).Scan()

	var names []string
	for {
		entry, err := pass.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, entry.Name)
	}

	assert.Equal(t, []string{"docs", "a.txt", "b.txt"}, names)

	// A finished pass stays finished.
	_, err := pass.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
	dev.done()
}

// TestPass_CursorFollowsBatches tests that each request continues from the
// reference the previous batch handed out.
func TestPass_CursorFollowsBatches(t *testing.T) {
	t.Parallel()

	var cursors []uint64
	record := func(next uint64, recs ...[]byte) step {
		return step{func(in, out []byte) (uint32, error) {
			cursors = append(cursors, binary.LittleEndian.Uint64(in))

			return uint32(copy(out, usntest.Batch(next, recs...))), nil
		}}
	}

	dev := &scriptDevice{t: t, steps: []step{
		record(0x40, usntest.AppendV2(nil, usn.Record{Name: "a"})),
		record(0x80, usntest.AppendV2(nil, usn.Record{Name: "b"})),
		fail(syscall.Errno(winerr.HandleEOF)),
	}}

	pass := New(dev, Options{}).Scan()
	for {
		if _, err := pass.Next(context.Background()); err != nil {
			require.ErrorIs(t, err, io.EOF)

			break
		}
	}

	assert.Equal(t, []uint64{0, 0x40}, cursors)
	dev.done()
}

// TestPass_RangeEncoding tests that the USN range restriction reaches the
// OS in the enumeration request.
func TestPass_RangeEncoding(t *testing.T) {
	t.Parallel()

	dev := &scriptDevice{t: t, steps: []step{
		{func(in, _ []byte) (uint32, error) {
			require.Len(t, in, 24)
			assert.Equal(t, uint64(100), binary.LittleEndian.Uint64(in[8:]))
			assert.Equal(t, uint64(5000), binary.LittleEndian.Uint64(in[16:]))

			return 0, syscall.Errno(winerr.HandleEOF)
		}},
	}}

	pass := New(dev, Options{LowUSN: 100, HighUSN: 5000}).Scan()
	_, err := pass.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
	dev.done()
}

// TestPass_BufferGrowth tests the grow-and-retry policy on an undersized
// enumeration buffer.
func TestPass_BufferGrowth(t *testing.T) {
	t.Parallel()

	var bufSizes []int

	dev := &scriptDevice{t: t, steps: []step{
		{func(_, out []byte) (uint32, error) {
			bufSizes = append(bufSizes, len(out))

			return 0, syscall.Errno(winerr.InsufficientBuffer)
		}},
		{func(_, out []byte) (uint32, error) {
			bufSizes = append(bufSizes, len(out))

			return uint32(copy(out, usntest.Batch(50,
				usntest.AppendV2(nil, usn.Record{Name: "big"}),
			))), nil
		}},
	}}

	pass := New(dev, Options{BufferSize: 1024}).Scan()

	entry, err := pass.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "big", entry.Name)
	assert.Equal(t, []int{1024, 2048}, bufSizes)
	dev.done()
}

// TestPass_AccessDenied tests mapping of privilege failures to the typed
// volume error.
func TestPass_AccessDenied(t *testing.T) {
	t.Parallel()

	dev := &scriptDevice{t: t, steps: []step{
		fail(syscall.Errno(winerr.AccessDenied)),
	}}

	pass := New(dev, Options{}).Scan()
	_, err := pass.Next(context.Background())
	require.ErrorIs(t, err, volume.ErrAccessDenied)
	dev.done()
}

// TestCollectLinks tests that a pass drains into a link table and that
// malformed records are skipped rather than aborting the collection.
func TestCollectLinks(t *testing.T) {
	t.Parallel()

	bad := usntest.AppendV2(nil, usn.Record{FileRef: usn.NewFileRef(99, 1), Name: "bad"})
	bad[4] = 9 // unsupported major version

	dev := &scriptDevice{t: t, steps: []step{
		respond(usntest.Batch(100,
			usntest.AppendV2(nil, usn.Record{
				FileRef:    usn.NewFileRef(usn.RootIndex, 5),
				ParentRef:  usn.NewFileRef(usn.RootIndex, 5),
				Name:       ".",
				Attributes: usn.AttrDirectory,
			}),
			bad,
			usntest.AppendV2(nil, usn.Record{
				FileRef:   usn.NewFileRef(10, 1),
				ParentRef: usn.NewFileRef(usn.RootIndex, 5),
				Name:      "a.txt",
			}),
		)),
		fail(syscall.Errno(winerr.HandleEOF)),
	}}

	table := pathing.NewTable()
	require.NoError(t, CollectLinks(context.Background(), New(dev, Options{}).Scan(), table))

	assert.Equal(t, 2, table.Len())

	parent, name, err := table.Link(usn.NewFileRef(10, 1))
	require.NoError(t, err)
	assert.Equal(t, usn.NewFileRef(usn.RootIndex, 5), parent)
	assert.Equal(t, "a.txt", name)
	dev.done()
}
