// Package nii reads NIfTI-1 images: the header (geometry and affine) is decoded here,
// voxel data is loaded through the nifti library where it supports the datatype and
// decoded from the raw bytes otherwise.
package nii

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/KyungWonPark/Connectome/internal/fault"
)

const (
	headerSize    = 348
	minVoxOffset  = 352
	magicSingle   = "n+1\x00"
	magicPairFile = "ni1\x00"
)

// Header is the 348-byte NIfTI-1 header as laid out in nifti1.h.
type Header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DbName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XyztUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// DecodeHeader reads a header in either byte order.
func DecodeHeader(r io.Reader) (Header, binary.ByteOrder, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Header{}, nil, fmt.Errorf("%w: short nifti header: %v", fault.ErrFormat, err)
	}

	var h Header
	var order binary.ByteOrder = binary.LittleEndian
	if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
		return Header{}, nil, fmt.Errorf("%w: %v", fault.ErrFormat, err)
	}
	if h.SizeofHdr != headerSize {
		order = binary.BigEndian
		h = Header{}
		if err := binary.Read(bytes.NewReader(raw), order, &h); err != nil {
			return Header{}, nil, fmt.Errorf("%w: %v", fault.ErrFormat, err)
		}
	}

	if err := h.validate(); err != nil {
		return Header{}, nil, err
	}

	return h, order, nil
}

func (h *Header) validate() error {
	switch {
	case h.SizeofHdr != headerSize:
		return fmt.Errorf("%w: sizeof_hdr is %d", fault.ErrFormat, h.SizeofHdr)
	case string(h.Magic[:]) == magicPairFile:
		return fmt.Errorf("%w: hdr/img pairs are not supported", fault.ErrFormat)
	case string(h.Magic[:]) != magicSingle:
		return fmt.Errorf("%w: bad nifti magic %q", fault.ErrFormat, h.Magic[:])
	case h.Dim[0] < 1 || h.Dim[0] > 7:
		return fmt.Errorf("%w: dim[0] is %d", fault.ErrFormat, h.Dim[0])
	}

	if _, err := lookupDatatype(h.Datatype, h.Bitpix); err != nil {
		return err
	}

	for i := 1; i <= int(h.Dim[0]); i++ {
		if h.Dim[i] < 1 {
			return fmt.Errorf("%w: dim[%d] is %d", fault.ErrFormat, i, h.Dim[i])
		}
	}

	return nil
}

// Shape returns the x, y, z and t extents; missing dimensions are 1.
func (h *Header) Shape() [4]int {
	shape := [4]int{1, 1, 1, 1}
	for i := 0; i < 4 && i < int(h.Dim[0]); i++ {
		shape[i] = int(h.Dim[i+1])
	}

	return shape
}

// DataOffset is the byte offset of the voxel data in a single-file image.
func (h *Header) DataOffset() int64 {
	if h.VoxOffset < minVoxOffset {
		return minVoxOffset
	}

	return int64(h.VoxOffset)
}

// DataSize is the number of voxel data bytes the header announces.
func (h *Header) DataSize() int64 {
	s := h.Shape()
	return int64(s[0]) * int64(s[1]) * int64(s[2]) * int64(s[3]) * int64(h.Bitpix/8)
}

// Affine returns the voxel-to-world transform, preferring sform, then qform,
// then a pixdim-only transform centred on the grid.
func (h *Header) Affine() [4][4]float64 {
	var a [4][4]float64
	a[3][3] = 1

	switch {
	case h.SformCode > 0:
		rows := [3][4]float32{h.SrowX, h.SrowY, h.SrowZ}
		for i := 0; i < 3; i++ {
			for j := 0; j < 4; j++ {
				a[i][j] = float64(rows[i][j])
			}
		}
	case h.QformCode > 0:
		b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
		sq := 1 - (b*b + c*c + d*d)
		var qa float64
		if sq > 1e-7 {
			qa = math.Sqrt(sq)
		} else {
			n := math.Sqrt(b*b + c*c + d*d)
			b, c, d = b/n, c/n, d/n
		}

		r := [3][3]float64{
			{qa*qa + b*b - c*c - d*d, 2*b*c - 2*qa*d, 2*b*d + 2*qa*c},
			{2*b*c + 2*qa*d, qa*qa + c*c - b*b - d*d, 2*c*d - 2*qa*b},
			{2*b*d - 2*qa*c, 2*c*d + 2*qa*b, qa*qa + d*d - c*c - b*b},
		}

		qfac := 1.0
		if h.Pixdim[0] < 0 {
			qfac = -1
		}
		zooms := [3]float64{float64(h.Pixdim[1]), float64(h.Pixdim[2]), float64(h.Pixdim[3]) * qfac}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				a[i][j] = r[i][j] * zooms[j]
			}
		}
		a[0][3] = float64(h.QoffsetX)
		a[1][3] = float64(h.QoffsetY)
		a[2][3] = float64(h.QoffsetZ)
	default:
		s := h.Shape()
		zooms := [3]float64{-float64(h.Pixdim[1]), float64(h.Pixdim[2]), float64(h.Pixdim[3])}
		for i := 0; i < 3; i++ {
			if zooms[i] == 0 {
				zooms[i] = 1
			}
			a[i][i] = zooms[i]
			a[i][3] = -zooms[i] * float64(s[i]-1) / 2
		}
	}

	return a
}

// NewHeader returns a float32 single-file header with the given shape and sform affine.
func NewHeader(shape [4]int, affine [4][4]float64) Header {
	var h Header
	h.SizeofHdr = headerSize
	h.Dim[0] = 3
	if shape[3] > 1 {
		h.Dim[0] = 4
	}
	for i := 0; i < 4; i++ {
		h.Dim[i+1] = int16(shape[i])
		if h.Dim[i+1] < 1 {
			h.Dim[i+1] = 1
		}
	}
	h.Datatype = DtFloat32
	h.Bitpix = 32
	h.Pixdim[0] = 1
	for i := 0; i < 3; i++ {
		col := math.Sqrt(affine[0][i]*affine[0][i] + affine[1][i]*affine[1][i] + affine[2][i]*affine[2][i])
		h.Pixdim[i+1] = float32(col)
	}
	h.Pixdim[4] = 1
	h.VoxOffset = minVoxOffset
	h.SclSlope = 1
	h.SformCode = 2
	for j := 0; j < 4; j++ {
		h.SrowX[j] = float32(affine[0][j])
		h.SrowY[j] = float32(affine[1][j])
		h.SrowZ[j] = float32(affine[2][j])
	}
	copy(h.Magic[:], magicSingle)

	return h
}
