package nii

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/KyungWonPark/Connectome/internal/fault"
	"github.com/KyungWonPark/nifti"
	"github.com/klauspost/compress/gzip"
)

// Image is a loaded NIfTI-1 volume or time series.
type Image struct {
	Header Header
	Shape  [4]int
	Affine [4][4]float64

	img nifti.Nifti1Image
	// voxels decoded here when the nifti library cannot read the datatype or byte order
	data []float32

	slope, inter float64
	scaled       bool
}

// At returns the voxel value at (x, y, z) of volume t with scl_slope and scl_inter applied.
func (m *Image) At(x, y, z, t int) float32 {
	var v float32
	if m.data != nil {
		v = m.data[x+m.Shape[0]*(y+m.Shape[1]*(z+m.Shape[2]*t))]
	} else {
		v = m.img.GetAt(uint32(x), uint32(y), uint32(z), uint32(t))
	}
	if m.scaled {
		return float32(float64(v)*m.slope + m.inter)
	}

	return v
}

// Open loads a .nii or .nii.gz file. The header is validated before the voxel data is read.
func Open(path string) (*Image, error) {
	src := path
	if strings.HasSuffix(path, ".gz") {
		tmp, err := gunzipToTemp(path)
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp)
		src = tmp
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	hdr, order, err := DecodeHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("[nii.Open] %s: %w", path, err)
	}
	st, err := f.Stat()
	f.Close()
	if err != nil {
		return nil, err
	}
	if st.Size() < hdr.DataOffset()+hdr.DataSize() {
		return nil, fmt.Errorf("[nii.Open] %s: %w: %d bytes, header needs %d", path, fault.ErrFormat, st.Size(), hdr.DataOffset()+hdr.DataSize())
	}

	dt, err := lookupDatatype(hdr.Datatype, hdr.Bitpix)
	if err != nil {
		return nil, fmt.Errorf("[nii.Open] %s: %w", path, err)
	}

	m := &Image{Header: hdr, Shape: hdr.Shape(), Affine: hdr.Affine()}
	m.slope, m.inter, m.scaled = hdr.Scaling()

	if dt.native && order == binary.LittleEndian {
		m.img.LoadImage(src, true)
		return m, nil
	}

	raw, err := os.ReadFile(src)
	if err != nil {
		return nil, err
	}
	off := hdr.DataOffset()
	m.data = decodeVoxels(raw[off:off+hdr.DataSize()], dt, order)

	return m, nil
}

func gunzipToTemp(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	zr, err := gzip.NewReader(bufio.NewReader(in))
	if err != nil {
		return "", fmt.Errorf("[nii.Open] %s: %w: %v", path, fault.ErrFormat, err)
	}
	defer zr.Close()

	out, err := os.CreateTemp("", "connectome-*.nii")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, zr); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("[nii.Open] %s: %w: %v", path, fault.ErrFormat, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}

	return out.Name(), nil
}

// Write stores float32 voxel data (x fastest, then y, z, t) as a single-file image.
// A .gz suffix produces a gzip-compressed file.
func Write(path string, hdr Header, data []float32) error {
	if hdr.Datatype != DtFloat32 {
		return fmt.Errorf("[nii.Write] %w: datatype %d for float32 data", fault.ErrUnsupported, hdr.Datatype)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	var w io.Writer = f
	var zw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		zw = gzip.NewWriter(f)
		w = zw
	}

	err = Encode(w, hdr, binary.LittleEndian, data)
	if err == nil && zw != nil {
		err = zw.Close()
	}
	if err != nil {
		f.Close()
		os.Remove(path)
		return err
	}

	return f.Close()
}

// Encode writes hdr and data in the given byte order. data is a slice of the
// Go type matching hdr.Datatype, x fastest.
func Encode(w io.Writer, hdr Header, order binary.ByteOrder, data any) error {
	if err := hdr.validate(); err != nil {
		return fmt.Errorf("[nii.Encode] %w", err)
	}
	if size := binary.Size(data); size < 0 || int64(size) != hdr.DataSize() {
		return fmt.Errorf("[nii.Encode] %w: %d data bytes for header shape %v", fault.ErrShapeMismatch, size, hdr.Shape())
	}

	bw := bufio.NewWriter(w)
	hdr.VoxOffset = minVoxOffset
	err := binary.Write(bw, order, &hdr)
	if err == nil {
		_, err = bw.Write(make([]byte, minVoxOffset-headerSize))
	}
	if err == nil {
		err = binary.Write(bw, order, data)
	}
	if err == nil {
		err = bw.Flush()
	}

	return err
}
