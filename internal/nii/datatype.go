package nii

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/KyungWonPark/Connectome/internal/fault"
)

// NIfTI-1 datatype codes.
const (
	DtUint8   int16 = 2
	DtInt16   int16 = 4
	DtInt32   int16 = 8
	DtFloat32 int16 = 16
	DtFloat64 int16 = 64
	DtInt8    int16 = 256
	DtUint16  int16 = 512
	DtUint32  int16 = 768
	DtInt64   int16 = 1024
	DtUint64  int16 = 1280
)

type voxelDecoder func(b []byte, order binary.ByteOrder) float64

type datatype struct {
	bitpix int16
	decode voxelDecoder
	// the nifti library reads this type correctly when the file is little endian
	native bool
}

var datatypes = map[int16]datatype{
	DtUint8:   {8, decodeUint8, true},
	DtInt8:    {8, decodeInt8, false},
	DtInt16:   {16, decodeInt16, false},
	DtUint16:  {16, decodeUint16, true},
	DtInt32:   {32, decodeInt32, false},
	DtUint32:  {32, decodeUint32, false},
	DtFloat32: {32, decodeFloat32, true},
	DtInt64:   {64, decodeInt64, false},
	DtUint64:  {64, decodeUint64, false},
	DtFloat64: {64, decodeFloat64, true},
}

func decodeUint8(b []byte, _ binary.ByteOrder) float64  { return float64(b[0]) }
func decodeInt8(b []byte, _ binary.ByteOrder) float64   { return float64(int8(b[0])) }
func decodeInt16(b []byte, o binary.ByteOrder) float64  { return float64(int16(o.Uint16(b))) }
func decodeUint16(b []byte, o binary.ByteOrder) float64 { return float64(o.Uint16(b)) }
func decodeInt32(b []byte, o binary.ByteOrder) float64  { return float64(int32(o.Uint32(b))) }
func decodeUint32(b []byte, o binary.ByteOrder) float64 { return float64(o.Uint32(b)) }
func decodeInt64(b []byte, o binary.ByteOrder) float64  { return float64(int64(o.Uint64(b))) }
func decodeUint64(b []byte, o binary.ByteOrder) float64 { return float64(o.Uint64(b)) }

func decodeFloat32(b []byte, o binary.ByteOrder) float64 {
	return float64(math.Float32frombits(o.Uint32(b)))
}

func decodeFloat64(b []byte, o binary.ByteOrder) float64 {
	return math.Float64frombits(o.Uint64(b))
}

func lookupDatatype(code, bitpix int16) (datatype, error) {
	dt, ok := datatypes[code]
	if !ok {
		return datatype{}, fmt.Errorf("%w: nifti datatype %d", fault.ErrUnsupported, code)
	}
	if dt.bitpix != bitpix {
		return datatype{}, fmt.Errorf("%w: datatype %d has %d bits per voxel, header says %d", fault.ErrFormat, code, dt.bitpix, bitpix)
	}

	return dt, nil
}

// Scaling returns scl_slope and scl_inter. ok is false when the header asks for
// no scaling (slope 0, or slope 1 with no intercept).
func (h *Header) Scaling() (slope, inter float64, ok bool) {
	slope, inter = float64(h.SclSlope), float64(h.SclInter)
	if slope == 0 || math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 1, 0, false
	}
	if math.IsNaN(inter) || math.IsInf(inter, 0) {
		inter = 0
	}

	return slope, inter, slope != 1 || inter != 0
}

// decodeVoxels converts raw voxel bytes to float32 values in file order.
func decodeVoxels(raw []byte, dt datatype, order binary.ByteOrder) []float32 {
	width := int(dt.bitpix / 8)
	out := make([]float32, len(raw)/width)
	for i := range out {
		out[i] = float32(dt.decode(raw[i*width:(i+1)*width], order))
	}

	return out
}
