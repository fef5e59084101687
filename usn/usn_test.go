package usn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wangfu91/usn-journal-go/usn"
)

// TestFileRef_IndexSequence tests splitting a reference into its record
// index and reuse sequence halves.
func TestFileRef_IndexSequence(t *testing.T) {
	t.Parallel()

	ref := usn.NewFileRef(0x0000ABCDEF012345, 0x1F)

	assert.Equal(t, uint64(0x0000ABCDEF012345), ref.Index())
	assert.Equal(t, uint16(0x1F), ref.Sequence())
	assert.False(t, ref.IsZero())
	assert.True(t, usn.FileRef(0).IsZero())
}

// TestFileRef_SequenceDistinguishesReuse tests that two references to the
// same record slot with different sequences are distinct values.
func TestFileRef_SequenceDistinguishesReuse(t *testing.T) {
	t.Parallel()

	old := usn.NewFileRef(77, 3)
	reused := usn.NewFileRef(77, 4)

	assert.Equal(t, old.Index(), reused.Index())
	assert.NotEqual(t, old, reused)
}

// TestReason_String tests rendering of reason bitsets.
func TestReason_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "NONE", usn.Reason(0).String())
	assert.Equal(t, "FILE_CREATE", usn.ReasonFileCreate.String())
	assert.Equal(t, "FILE_CREATE | CLOSE", (usn.ReasonFileCreate | usn.ReasonClose).String())
	assert.Equal(t, "UNKNOWN", usn.Reason(0x40000000).String())
}

// TestReason_Has tests bit membership.
func TestReason_Has(t *testing.T) {
	t.Parallel()

	r := usn.ReasonDataExtend | usn.ReasonClose

	assert.True(t, r.Has(usn.ReasonDataExtend))
	assert.True(t, r.Has(usn.ReasonClose))
	assert.False(t, r.Has(usn.ReasonFileDelete))
}

// TestRecord_AttributeHelpers tests the directory and hidden predicates.
func TestRecord_AttributeHelpers(t *testing.T) {
	t.Parallel()

	dir := usn.Record{Attributes: usn.AttrDirectory}
	hidden := usn.Record{Attributes: usn.AttrHidden | usn.AttrArchive}

	assert.True(t, dir.IsDir())
	assert.False(t, dir.IsHidden())
	assert.True(t, hidden.IsHidden())
	assert.False(t, hidden.IsDir())
}
