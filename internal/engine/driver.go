package engine

import (
	"errors"
	"io"

	"github.com/dekarrin/gazelle/internal/gzlerr"
)

// DriverStatus is the outcome of a whole-file parse run through ParseFile.
// It extends Status with the driver-level PREMATURE_EOF_ERROR outcome
// described in spec §4.4/§7, which only applies once the file itself (not
// just the grammar) has been exhausted.
type DriverStatus int

const (
	DriverOK DriverStatus = iota
	DriverError
	DriverCancelled
	DriverResourceLimitExceeded
	DriverPrematureEOF
)

func (s DriverStatus) String() string {
	switch s {
	case DriverOK:
		return "OK"
	case DriverError:
		return "ERROR"
	case DriverCancelled:
		return "CANCELLED"
	case DriverResourceLimitExceeded:
		return "RESOURCE_LIMIT_EXCEEDED"
	case DriverPrematureEOF:
		return "PREMATURE_EOF_ERROR"
	default:
		return "UNKNOWN"
	}
}

const defaultMinFreeBytes = 4000

// FileDriver is the buffered file driver of spec §4.4: a thin loop that
// reads a file in chunks, hands each chunk to a ParseState, and slides its
// own buffer forward behind the engine's open_terminal_offset watermark,
// discarding only bytes the engine has promised never to ask for again.
type FileDriver struct {
	r       io.Reader
	minFree int

	buf       []byte
	filled    int
	bufOffset int
	atEOF     bool
}

// NewFileDriver wraps r. minFree is the minimum free buffer space
// maintained before each read; zero or negative selects a ~4000 byte
// default.
func NewFileDriver(r io.Reader, minFree int) *FileDriver {
	if minFree <= 0 {
		minFree = defaultMinFreeBytes
	}
	return &FileDriver{
		r:       r,
		minFree: minFree,
		buf:     make([]byte, minFree),
	}
}

func (d *FileDriver) ensureFree() {
	if cap(d.buf)-d.filled >= d.minFree {
		return
	}
	newCap := cap(d.buf) * 2
	if newCap-d.filled < d.minFree {
		newCap = d.filled + d.minFree
	}
	nb := make([]byte, newCap)
	copy(nb, d.buf[:d.filled])
	d.buf = nb
}

// readMore reads as much as is available into the buffer's free space and
// reports how many bytes it got. It does not treat io.EOF as an error.
func (d *FileDriver) readMore() (int, error) {
	if d.atEOF {
		return 0, nil
	}
	n, err := d.r.Read(d.buf[d.filled:cap(d.buf)])
	d.filled += n
	if err != nil {
		if errors.Is(err, io.EOF) {
			d.atEOF = true
			return n, nil
		}
		return n, err
	}
	return n, nil
}

// compact drops bytes strictly before openOff, sliding the retained tail
// to the front of the buffer.
func (d *FileDriver) compact(openOff Offset) {
	drop := openOff.Byte - d.bufOffset
	if drop <= 0 {
		return
	}
	if drop > d.filled {
		drop = d.filled
	}
	copy(d.buf, d.buf[drop:d.filled])
	d.filled -= drop
	d.bufOffset += drop
}

// ParseFile drives ps to the end of d's underlying reader, implementing
// spec §4.4's read/parse/compact loop.
func ParseFile(ps *ParseState, d *FileDriver) (DriverStatus, error) {
	for {
		d.ensureFree()
		before := d.filled
		n, err := d.readMore()
		if err != nil {
			return DriverError, gzlerr.Wrap(err, gzlerr.KindIO, "reading input file")
		}

		slice := d.buf[before : before+n]
		status, perr := ps.Parse(slice)

		d.compact(ps.OpenTerminalOffset())

		switch status {
		case StatusOK:
			if d.atEOF {
				ok, ferr := ps.FinishParse()
				if ferr != nil {
					return DriverError, ferr
				}
				if !ok {
					return DriverPrematureEOF, gzlerr.New(gzlerr.KindPrematureEOF, "end of file reached in a non-accepting configuration")
				}
				return DriverOK, nil
			}
			// not yet at EOF (or EOF reached this pass but the engine may
			// still want another zero-length call to notice it): loop.
			continue
		case StatusHardEOF:
			return DriverOK, nil
		case StatusCancelled:
			return DriverCancelled, nil
		case StatusResourceLimitExceeded:
			return DriverResourceLimitExceeded, perr
		default:
			return DriverError, perr
		}
	}
}
