package bitcode

import (
	"testing"

	"github.com/dekarrin/gazelle/internal/bitcode/bctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Reader_BadMagic(t *testing.T) {
	_, err := NewReader([]byte{'X', 'Y', 0, 0})
	assert.Error(t, err)
}

func Test_Reader_EmptyStreamIsEOF(t *testing.T) {
	w := bctest.New()
	r, err := NewReader(w.Bytes())
	require.NoError(t, err)

	rec := r.Advance()
	assert.Equal(t, Eof, rec.Kind)
}

func Test_Reader_UnabbrevRecordInBlock(t *testing.T) {
	w := bctest.New()
	w.EnterSubblock(2, 10, 3)
	w.UnabbrevRecord(3, 0, []uint64{'h', 'i'})
	w.EndBlock(3)

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)

	rec := r.Advance()
	require.Equal(t, StartBlock, rec.Kind)
	assert.EqualValues(t, 10, rec.ID)

	rec = r.Advance()
	require.Equal(t, DataRecord, rec.Kind)
	assert.EqualValues(t, 0, rec.ID)
	require.Equal(t, 2, r.Current().Size())
	assert.EqualValues(t, 'h', r.Next8())
	assert.EqualValues(t, 'i', r.Next8())

	rec = r.Advance()
	assert.Equal(t, EndBlock, rec.Kind)

	rec = r.Advance()
	assert.Equal(t, Eof, rec.Kind)
	assert.Zero(t, r.Errors())
}

func Test_Reader_SkipAndRewindBlock(t *testing.T) {
	w := bctest.New()
	w.EnterSubblock(2, 11, 3)
	w.UnabbrevRecord(3, 0, []uint64{1, 2, 3})
	w.UnabbrevRecord(3, 1, []uint64{4, 5})
	w.EndBlock(3)

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)

	rec := r.Advance()
	require.Equal(t, StartBlock, rec.Kind)

	// first pass: count records
	count := 0
	for {
		rec = r.Advance()
		if rec.Kind != DataRecord {
			break
		}
		count++
	}
	require.Equal(t, EndBlock, rec.Kind)
	assert.Equal(t, 2, count)
}

func Test_Reader_RewindBlockReplaysIdentically(t *testing.T) {
	w := bctest.New()
	w.EnterSubblock(2, 11, 3)
	w.UnabbrevRecord(3, 0, []uint64{7, 8})
	w.UnabbrevRecord(3, 1, []uint64{9})
	w.EndBlock(3)

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)

	rec := r.Advance()
	require.Equal(t, StartBlock, rec.Kind)

	rec = r.Advance()
	require.Equal(t, DataRecord, rec.Kind)
	assert.EqualValues(t, 0, rec.ID)

	r.RewindBlock()

	rec = r.Advance()
	require.Equal(t, DataRecord, rec.Kind)
	assert.EqualValues(t, 0, rec.ID, "rewound block should replay its first record")
	assert.EqualValues(t, 7, r.Next8())
	assert.EqualValues(t, 8, r.Next8())

	rec = r.Advance()
	require.Equal(t, DataRecord, rec.Kind)
	assert.EqualValues(t, 1, rec.ID)

	rec = r.Advance()
	assert.Equal(t, EndBlock, rec.Kind)
}

func Test_Reader_BlockInfoAbbrevsApplyToTargetBlock(t *testing.T) {
	w := bctest.New()

	// BLOCKINFO block (id 0): register one abbreviation for block id 20.
	w.EnterSubblock(2, 0, 3)
	w.SetBID(3, 20)
	w.DefineAbbrev(3, []bctest.AbbrevOpSpec{
		{Literal: true, LitValue: 7}, // record code, always 7
		{Encoding: 1, Data: 8},       // one fixed-8 operand
	})
	w.EndBlock(3)

	// Block id 20 using abbrev id 4 (the one just registered).
	w.EnterSubblock(2, 20, 3)
	w.Fixed(4, 3)
	w.Fixed(42, 8)
	w.EndBlock(3)

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)

	rec := r.Advance()
	require.Equal(t, StartBlock, rec.Kind)
	assert.EqualValues(t, 20, rec.ID)

	rec = r.Advance()
	require.Equal(t, DataRecord, rec.Kind, "errors: %s", r.Errors())
	assert.EqualValues(t, 7, rec.ID)
	assert.EqualValues(t, 42, r.Next8())

	rec = r.Advance()
	assert.Equal(t, EndBlock, rec.Kind)
}

func Test_Reader_Array(t *testing.T) {
	w := bctest.New()
	w.EnterSubblock(2, 10, 4)
	w.DefineAbbrev(4, []bctest.AbbrevOpSpec{
		{Literal: true, LitValue: 1},
		{Encoding: 3},       // array
		{Encoding: 4},       // of char6
	})
	w.Fixed(4, 4) // abbrev id 4
	w.VBR(3, 6)   // array count
	w.Char6('a')
	w.Char6('b')
	w.Char6('c')
	w.EndBlock(4)

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)

	rec := r.Advance()
	require.Equal(t, StartBlock, rec.Kind)

	rec = r.Advance()
	require.Equal(t, DataRecord, rec.Kind, "errors: %s", r.Errors())
	assert.EqualValues(t, 1, rec.ID)
	require.Equal(t, 3, rec.Size())
	assert.EqualValues(t, 'a', r.Next8())
	assert.EqualValues(t, 'b', r.Next8())
	assert.EqualValues(t, 'c', r.Next8())
}

func Test_Reader_ValueTooLarge(t *testing.T) {
	w := bctest.New()
	w.EnterSubblock(2, 10, 3)
	w.UnabbrevRecord(3, 0, []uint64{300})
	w.EndBlock(3)

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)
	r.Advance()
	r.Advance()

	v := r.Next8()
	assert.EqualValues(t, 300&0xFF, v)
	assert.True(t, r.Errors().Has(ErrValueTooLarge))
}

func Test_Reader_UnknownBlockIsStillNavigable(t *testing.T) {
	// the grammar loader skips blocks it doesn't recognize; the reader must
	// support that without special-casing the block id.
	w := bctest.New()
	w.EnterSubblock(2, 99, 3)
	w.UnabbrevRecord(3, 0, []uint64{1})
	w.EndBlock(3)
	w.EnterSubblock(2, 10, 3)
	w.UnabbrevRecord(3, 0, []uint64{2})
	w.EndBlock(3)

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)

	rec := r.Advance()
	require.Equal(t, StartBlock, rec.Kind)
	assert.EqualValues(t, 99, rec.ID)
	r.SkipBlock()

	rec = r.Advance()
	require.Equal(t, StartBlock, rec.Kind)
	assert.EqualValues(t, 10, rec.ID)
}
