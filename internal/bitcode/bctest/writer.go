// Package bctest builds small, hand-assembled bitcode containers for use in
// tests of the bitcode reader and the grammar loader. It is test support
// only: the real encoder lives in the (out-of-scope) grammar compiler.
package bctest

// Writer assembles a bitcode-format byte stream bit by bit, LSB-first,
// mirroring the reader's bit order exactly.
type Writer struct {
	bits []byte // one bit per slice entry, for simplicity; packed on Bytes()

	// lenFieldBitPos/blockBodyStart track open ENTER_SUBBLOCK length fields,
	// one entry per currently-open block, so EndBlock can patch the length
	// once the body size is known.
	lenFieldBitPos []int
	blockBodyStart []int
}

func New() *Writer {
	w := &Writer{}
	w.Magic()
	return w
}

// Magic appends the 4-byte "BC\xc0\xde"-style prefix (only the first two
// bytes are meaningful to the reader; the rest are filler).
func (w *Writer) Magic() *Writer {
	w.fixed(uint64('B'), 8)
	w.fixed(uint64('C'), 8)
	w.fixed(0xC0, 8)
	w.fixed(0xDE, 8)
	return w
}

func (w *Writer) fixed(v uint64, n uint) *Writer {
	for i := uint(0); i < n; i++ {
		w.bits = append(w.bits, byte((v>>i)&1))
	}
	return w
}

// Fixed writes an n-bit fixed-width field.
func (w *Writer) Fixed(v uint64, n uint) *Writer {
	return w.fixed(v, n)
}

// VBR writes v in groups of n bits, continuation-flagged, little-endian
// across groups.
func (w *Writer) VBR(v uint64, n uint) *Writer {
	payloadBits := n - 1
	mask := uint64(1)<<payloadBits - 1
	for {
		chunk := v & mask
		v >>= payloadBits
		if v != 0 {
			w.fixed(chunk|(1<<payloadBits), n)
		} else {
			w.fixed(chunk, n)
			break
		}
	}
	return w
}

// Align32 pads with zero bits to the next 32-bit boundary.
func (w *Writer) Align32() *Writer {
	rem := len(w.bits) % 32
	if rem != 0 {
		for i := 0; i < 32-rem; i++ {
			w.bits = append(w.bits, 0)
		}
	}
	return w
}

// Char6 encodes a byte using the char6 alphabet.
func (w *Writer) Char6(c byte) *Writer {
	var v uint64
	switch {
	case c >= 'a' && c <= 'z':
		v = uint64(c - 'a')
	case c >= 'A' && c <= 'Z':
		v = uint64(c-'A') + 26
	case c >= '0' && c <= '9':
		v = uint64(c-'0') + 52
	case c == '.':
		v = 62
	case c == '_':
		v = 63
	default:
		panic("char6: out of range byte")
	}
	return w.fixed(v, 6)
}

// EnterSubblock writes an ENTER_SUBBLOCK record (under the given enclosing
// abbrev width) and returns a Block helper for writing its length field once
// the body is known. The caller must call Block.Close() after writing the
// body (including its own END_BLOCK).
func (w *Writer) EnterSubblock(enclosingWidth uint, blockID uint64, newWidth uint) *Writer {
	w.Fixed(1, enclosingWidth) // ENTER_SUBBLOCK abbrev id
	w.VBR(blockID, 8)
	w.VBR(uint64(newWidth), 4)
	w.Align32()
	w.lenFieldBitPos = append(w.lenFieldBitPos, len(w.bits))
	w.fixed(0, 32) // placeholder length, patched in Close
	w.blockBodyStart = append(w.blockBodyStart, len(w.bits))
	return w
}

// EndBlock writes the END_BLOCK abbrev id (under the given width) and
// aligns to 32 bits, then patches the most recently opened block's length
// field.
func (w *Writer) EndBlock(width uint) *Writer {
	w.Fixed(0, width)
	w.Align32()
	n := len(w.lenFieldBitPos)
	bodyStart := w.blockBodyStart[n-1]
	lenBits := len(w.bits) - bodyStart
	w.patchFixed32(w.lenFieldBitPos[n-1], uint64(lenBits/32))
	w.lenFieldBitPos = w.lenFieldBitPos[:n-1]
	w.blockBodyStart = w.blockBodyStart[:n-1]
	return w
}

func (w *Writer) patchFixed32(bitPos int, v uint64) {
	for i := uint(0); i < 32; i++ {
		w.bits[bitPos+int(i)] = byte((v >> i) & 1)
	}
}

// DefineAbbrev writes a DEFINE_ABBREV record (abbrev id 2) under the given
// width. ops is a list of simple literal/fixed/vbr/array/char6 descriptors.
type AbbrevOpSpec struct {
	Literal  bool
	LitValue uint64
	Encoding byte // 1=Fixed 2=VBR 3=Array 4=Char6
	Data     uint64
}

func (w *Writer) DefineAbbrev(width uint, ops []AbbrevOpSpec) *Writer {
	w.Fixed(2, width)
	w.VBR(uint64(len(ops)), 5)
	for _, op := range ops {
		if op.Literal {
			w.Fixed(1, 1)
			w.VBR(op.LitValue, 8)
		} else {
			w.Fixed(0, 1)
			w.Fixed(uint64(op.Encoding), 3)
			if op.Encoding == 1 || op.Encoding == 2 {
				w.VBR(op.Data, 5)
			}
		}
	}
	return w
}

// UnabbrevRecord writes an UNABBREV_RECORD (abbrev id 3) under the given
// width with the given record code and operand values.
func (w *Writer) UnabbrevRecord(width uint, code uint64, ops []uint64) *Writer {
	w.Fixed(3, width)
	w.VBR(code, 6)
	w.VBR(uint64(len(ops)), 6)
	for _, v := range ops {
		w.VBR(v, 6)
	}
	return w
}

// SetBID writes a BLOCKINFO SETBID record (unabbreviated record code 1).
func (w *Writer) SetBID(width uint, targetBlockID uint64) *Writer {
	return w.UnabbrevRecord(width, 1, []uint64{targetBlockID})
}

// Bytes packs the accumulated bitstream into bytes, padding the final byte
// with zero bits.
func (w *Writer) Bytes() []byte {
	n := (len(w.bits) + 7) / 8
	out := make([]byte, n)
	for i, b := range w.bits {
		if b != 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}
