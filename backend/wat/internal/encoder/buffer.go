package encoder

import (
	"encoding/binary"
	"math"

	"fortio.org/safecast"

	"github.com/wippyai/wasm-cook/internal/wasmbin"
)

// buffer accumulates bytes and remembers the first length overflow.
type buffer struct {
	b   []byte
	err error
}

func (w *buffer) byte(v byte) { w.b = append(w.b, v) }

func (w *buffer) u32(v uint32) { w.b = wasmbin.AppendULEB128(w.b, v) }

func (w *buffer) i32(v int32) { w.b = wasmbin.AppendSLEB128(w.b, v) }

func (w *buffer) i64(v int64) { w.b = wasmbin.AppendSLEB128(w.b, v) }

func (w *buffer) f32(v float32) {
	w.b = binary.LittleEndian.AppendUint32(w.b, math.Float32bits(v))
}

func (w *buffer) f64(v float64) {
	w.b = binary.LittleEndian.AppendUint64(w.b, math.Float64bits(v))
}

// count writes a vector length.
func (w *buffer) count(n int) {
	v, err := safecast.Conv[uint32](n)
	if err != nil && w.err == nil {
		w.err = err
	}
	w.u32(v)
}

func (w *buffer) name(s string) {
	w.count(len(s))
	w.b = append(w.b, s...)
}

func (w *buffer) limits(min uint32, max *uint32) {
	if max == nil {
		w.byte(0x00)
		w.u32(min)
		return
	}
	w.byte(0x01)
	w.u32(min)
	w.u32(*max)
}

// section appends body as section id.
func (w *buffer) section(id byte, body *buffer) {
	if body.err != nil && w.err == nil {
		w.err = body.err
	}
	w.byte(id)
	w.count(len(body.b))
	w.b = append(w.b, body.b...)
}
