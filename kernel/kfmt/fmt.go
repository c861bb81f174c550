// Package kfmt implements the diagnostic output path of the kernel: a
// printf that can be used before any heap exists, an early ring buffer that
// holds output until a console is attached, and the kernel panic routine.
package kfmt

import (
	"io"
	"unsafe"
)

// maxBufSize defines the buffer size for formatting numbers.
const maxBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numFmtBuf [maxBufSize + 1]byte

	// singleByte is a shared buffer for emitting one character at a time.
	// Slicing the format string directly would allocate.
	singleByte = []byte(" ")

	// earlyPrintBuffer stores Printf output produced before an output sink
	// is attached.
	earlyPrintBuffer ringBuffer

	// outputSink receives the output of Printf. While nil, output is
	// captured by earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and flushes
// any output accumulated in the early print buffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// Output returns the writer that Printf currently sends its output to. A nil
// result means that output is captured by the early print buffer.
func Output() io.Writer {
	return outputSink
}

// Printf provides a minimal Printf implementation that can be safely used
// before the Go allocator is available. It supports the following verbs:
//
//	%s the uninterpreted bytes of a string or byte slice
//	%o base 8
//	%d base 10
//	%x base 16, lower-case
//	%t "true" or "false"
//
// An optional decimal width may precede the verb. Strings and base-10
// integers are left-padded with spaces; base-8 and base-16 integers are
// left-padded with zeroes.
//
// Arguments are never checked for io.Stringer and %p is not supported as
// both would pull in reflect and trigger allocations.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but writes the formatted output to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		ch                 byte
		argIndex           int
		litStart, pos, pad int
		fmtLen             = len(format)
	)

	for pos < fmtLen {
		if format[pos] != '%' {
			pos++
			continue
		}

		writeLiteral(w, format, litStart, pos)

		pad = 0
		pos++
	verb:
		for ; pos < fmtLen; pos++ {
			ch = format[pos]
			switch {
			case ch == '%':
				singleByte[0] = '%'
				doWrite(w, singleByte)
				break verb
			case ch >= '0' && ch <= '9':
				pad = pad*10 + int(ch-'0')
			case ch == 'd' || ch == 'x' || ch == 'o' || ch == 's' || ch == 't':
				if argIndex >= len(args) {
					doWrite(w, errMissingArg)
					break verb
				}

				switch ch {
				case 'o':
					fmtInt(w, args[argIndex], 8, pad)
				case 'd':
					fmtInt(w, args[argIndex], 10, pad)
				case 'x':
					fmtInt(w, args[argIndex], 16, pad)
				case 's':
					fmtString(w, args[argIndex], pad)
				case 't':
					fmtBool(w, args[argIndex])
				}

				argIndex++
				break verb
			default:
				doWrite(w, errNoVerb)
				break verb
			}
		}

		if pos == fmtLen {
			// format ended while parsing a verb
			doWrite(w, errNoVerb)
		}
		litStart, pos = pos+1, pos+1
	}

	writeLiteral(w, format, litStart, fmtLen)

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

// writeLiteral emits format[from:to] one byte at a time.
func writeLiteral(w io.Writer, format string, from, to int) {
	for i := from; i < to; i++ {
		singleByte[0] = format[i]
		doWrite(w, singleByte)
	}
}

func fmtBool(w io.Writer, v interface{}) {
	bVal, ok := v.(bool)
	switch {
	case !ok:
		doWrite(w, errWrongArgType)
	case bVal:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

// fmtString prints a string or []byte value left-padded to padLen.
func fmtString(w io.Writer, v interface{}, padLen int) {
	switch castedVal := v.(type) {
	case string:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		writeLiteral(w, castedVal, 0, len(castedVal))
	case []byte:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		doWrite(w, castedVal)
	default:
		doWrite(w, errWrongArgType)
	}
}

func fmtRepeat(w io.Writer, ch byte, count int) {
	singleByte[0] = ch
	for i := 0; i < count; i++ {
		doWrite(w, singleByte)
	}
}

// fmtInt prints v in the requested base applying padLen. All built-in
// integer types are supported.
func fmtInt(w io.Writer, v interface{}, base, padLen int) {
	var (
		uval     uint64
		negative bool
		padCh    = byte('0')
		n        int
	)

	if padLen > maxBufSize-1 {
		padLen = maxBufSize - 1
	}
	if base == 10 {
		padCh = ' '
	}

	switch t := v.(type) {
	case uint8:
		uval = uint64(t)
	case uint16:
		uval = uint64(t)
	case uint32:
		uval = uint64(t)
	case uint64:
		uval = t
	case uint:
		uval = uint64(t)
	case uintptr:
		uval = uint64(t)
	case int8:
		uval, negative = abs(int64(t))
	case int16:
		uval, negative = abs(int64(t))
	case int32:
		uval, negative = abs(int64(t))
	case int64:
		uval, negative = abs(t)
	case int:
		uval, negative = abs(int64(t))
	default:
		doWrite(w, errWrongArgType)
		return
	}

	// Digits are produced least-significant first and reversed at the end.
	for {
		digit := byte(uval % uint64(base))
		if digit < 10 {
			numFmtBuf[n] = '0' + digit
		} else {
			numFmtBuf[n] = 'a' + digit - 10
		}
		n++

		uval /= uint64(base)
		if uval == 0 || n == maxBufSize {
			break
		}
	}

	if negative && padCh == '0' {
		// zero padding goes between the sign and the digits
		for ; n < padLen-1; n++ {
			numFmtBuf[n] = padCh
		}
		numFmtBuf[n] = '-'
		n++
	} else {
		if negative {
			numFmtBuf[n] = '-'
			n++
		}
		for ; n < padLen; n++ {
			numFmtBuf[n] = padCh
		}
	}

	for l, r := 0, n-1; l < r; l, r = l+1, r-1 {
		numFmtBuf[l], numFmtBuf[r] = numFmtBuf[r], numFmtBuf[l]
	}

	doWrite(w, numFmtBuf[:n])
}

func abs(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

// doWrite hides p from escape analysis. Without it the compiler cannot prove
// that p does not escape through the io.Writer interface call and every
// Printf would allocate.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		_, _ = w.Write(p)
	} else {
		_, _ = earlyPrintBuffer.Write(p)
	}
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
