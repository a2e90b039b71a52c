// Package hookabi defines the memory layout shared with native plugin hooks.
//
// A hook is a C function with the signature
//
//	int32_t hook(axle_payload *p);
//
// where axle_payload is
//
//	typedef struct axle_payload {
//	    const uint8_t *data;
//	    uint64_t       len;
//	    uint8_t       *out;
//	    uint64_t       out_cap;
//	    uint64_t       out_len;
//	} axle_payload;
//
// The host owns every buffer. A hook may read len bytes from data, write up
// to out_cap bytes to out and must report the number written in out_len. A
// zero return code means success.
package hookabi

import (
	"runtime"
	"unsafe"
)

// Payload mirrors struct axle_payload.
type Payload struct {
	Data   *byte
	Len    uint64
	Out    *byte
	OutCap uint64
	OutLen uint64
}

// Frame is a Payload together with the Go memory it references, pinned for
// the duration of a native call.
type Frame struct {
	payload  *Payload
	input    []byte
	out      []byte
	output   []byte
	pinner   runtime.Pinner
	released bool
}

// NewFrame copies input into host memory, allocates an output buffer of
// outCap bytes and pins both along with the payload header. Call Release once
// the native call has returned.
func NewFrame(input []byte, outCap int) *Frame {
	f := &Frame{payload: new(Payload)}

	if len(input) > 0 {
		f.input = append([]byte(nil), input...)
		f.pinner.Pin(&f.input[0])
		f.payload.Data = &f.input[0]
		f.payload.Len = uint64(len(f.input))
	}

	if outCap > 0 {
		f.out = make([]byte, outCap)
		f.pinner.Pin(&f.out[0])
		f.payload.Out = &f.out[0]
		f.payload.OutCap = uint64(outCap)
	}

	f.pinner.Pin(f.payload)
	return f
}

// Pointer returns the address to pass as the hook's only argument, or zero
// after Release.
func (f *Frame) Pointer() uintptr {
	if f.released {
		return 0
	}
	return uintptr(unsafe.Pointer(f.payload))
}

// Output returns a copy of the bytes the hook reported writing. A reported
// length beyond the buffer is clamped to its capacity.
func (f *Frame) Output() []byte {
	if f.released {
		return f.output
	}
	return f.snapshot()
}

// Truncated reports whether the hook claimed to write more than out_cap bytes.
func (f *Frame) Truncated() bool {
	return f.payload.OutLen > f.payload.OutCap
}

// Release unpins the frame's memory. It is safe to call more than once.
func (f *Frame) Release() {
	if f.released {
		return
	}
	f.output = f.snapshot()
	f.pinner.Unpin()
	f.released = true
}

func (f *Frame) snapshot() []byte {
	n := f.payload.OutLen
	if n > f.payload.OutCap {
		n = f.payload.OutCap
	}
	if n == 0 {
		return nil
	}
	return append([]byte(nil), f.out[:n]...)
}

// Code extracts an int32 status from a native return register, ignoring the
// undefined upper bits.
func Code(r1 uintptr) int32 {
	return int32(uint32(r1))
}
