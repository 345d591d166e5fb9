package ts

import "fmt"

const (
	flagPCR       = 0x10
	flagOPCR      = 0x08
	flagSplice    = 0x04
	flagPrivate   = 0x02
	flagExtension = 0x01
)

// TrimStuffing drops the trailing stuffing bytes of an adaptation field.
func TrimStuffing(af []byte) ([]byte, error) {
	if len(af) <= 1 {
		return af, nil
	}

	flags := af[1]
	pos := 2
	if flags&flagPCR != 0 {
		pos += 6
	}
	if flags&flagOPCR != 0 {
		pos += 6
	}
	if flags&flagSplice != 0 {
		pos++
	}
	if flags&flagPrivate != 0 {
		if pos >= len(af) {
			return nil, fmt.Errorf("%w: private data length missing", ErrAdaptationField)
		}
		pos += 1 + int(af[pos])
	}
	if flags&flagExtension != 0 {
		if pos >= len(af) {
			return nil, fmt.Errorf("%w: extension length missing", ErrAdaptationField)
		}
		pos += 1 + int(af[pos])
	}
	if pos > len(af) {
		return nil, fmt.Errorf("%w: fields need %d bytes, have %d", ErrAdaptationField, pos, len(af))
	}

	out := append([]byte(nil), af[:pos]...)
	out[0] = byte(pos - 1)
	return out, nil
}

// stuff grows af by n bytes of stuffing, creating it when absent.
func stuff(af []byte, n int) []byte {
	switch {
	case len(af) == 0 && n == 1:
		return []byte{0}
	case len(af) == 0:
		out := make([]byte, n)
		out[0] = byte(n - 1)
		fill(out[2:])
		return out
	case len(af) == 1:
		out := make([]byte, 1+n)
		out[0] = byte(n)
		fill(out[2:])
		return out
	default:
		out := make([]byte, len(af)+n)
		copy(out, af)
		out[0] += byte(n)
		fill(out[len(af):])
		return out
	}
}

func fill(b []byte) {
	for i := range b {
		b[i] = 0xff
	}
}
