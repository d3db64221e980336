package tract

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/KyungWonPark/Connectome/internal/fault"
	"github.com/gonum/matrix/mat64"
)

const trkHeaderSize = 1000

// Counts read from a file only size buffers up to these limits; larger inputs
// grow as their data actually arrives.
const (
	maxStreamlinePrealloc = 1 << 16
	pointChunkFloats      = 1 << 16
)

// TrkHeader is the TrackVis version 2 header, 1000 bytes on disk.
type TrkHeader struct {
	IDString                [6]byte
	Dim                     [3]int16
	VoxelSize               [3]float32
	Origin                  [3]float32
	NScalars                int16
	ScalarName              [200]byte
	NProperties             int16
	PropertyName            [200]byte
	VoxToRAS                [4][4]float32
	Reserved                [444]byte
	VoxelOrder              [4]byte
	Pad2                    [4]byte
	ImageOrientationPatient [6]float32
	Pad1                    [2]byte
	InvertX                 uint8
	InvertY                 uint8
	InvertZ                 uint8
	SwapXY                  uint8
	SwapYZ                  uint8
	SwapZX                  uint8
	NCount                  int32
	Version                 int32
	HdrSize                 int32
}

// ReadTrk loads a TrackVis file. Points are returned in world (RAS+ mm) coordinates.
func ReadTrk(path string) (*Tractogram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tg, err := DecodeTrk(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("[ReadTrk] %s: %w", path, err)
	}

	return tg, nil
}

// DecodeTrk reads a TrackVis stream.
func DecodeTrk(r io.Reader) (*Tractogram, error) {
	raw := make([]byte, trkHeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: short trk header: %v", fault.ErrFormat, err)
	}

	var hdr TrkHeader
	var order binary.ByteOrder = binary.LittleEndian
	if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrFormat, err)
	}
	if hdr.HdrSize != trkHeaderSize {
		order = binary.BigEndian
		hdr = TrkHeader{}
		if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
			return nil, fmt.Errorf("%w: %v", fault.ErrFormat, err)
		}
		if hdr.HdrSize != trkHeaderSize {
			return nil, fmt.Errorf("%w: trk hdr_size is not %d", fault.ErrFormat, trkHeaderSize)
		}
	}
	if string(hdr.IDString[:5]) != "TRACK" {
		return nil, fmt.Errorf("%w: trk magic is %q", fault.ErrFormat, hdr.IDString[:5])
	}
	if hdr.NScalars < 0 || hdr.NProperties < 0 || hdr.NCount < 0 {
		return nil, fmt.Errorf("%w: negative trk counts", fault.ErrFormat)
	}

	frame, err := hdr.frame()
	if err != nil {
		return nil, err
	}

	toWorld := voxmmToWorld(frame)
	stride := 3 + int(hdr.NScalars)

	chunkPoints := max(1, pointChunkFloats/stride)
	buf := make([]float32, chunkPoints*stride)
	props := make([]float32, hdr.NProperties)

	tg := &Tractogram{Frame: frame}
	if hdr.NCount > 0 {
		tg.Streamlines = make([]Streamline, 0, min(int(hdr.NCount), maxStreamlinePrealloc))
	}

	for idx := 0; hdr.NCount == 0 || idx < int(hdr.NCount); idx++ {
		var n int32
		if err := binary.Read(r, order, &n); err != nil {
			if errors.Is(err, io.EOF) && hdr.NCount == 0 {
				break
			}
			return nil, fmt.Errorf("%w: streamline %d: %v", fault.ErrFormat, idx, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: streamline %d has %d points", fault.ErrFormat, idx, n)
		}

		s := make(Streamline, 0, min(int(n), chunkPoints))
		for left := int(n); left > 0; {
			k := min(left, chunkPoints)
			chunk := buf[:k*stride]
			if err := binary.Read(r, order, chunk); err != nil {
				return nil, fmt.Errorf("%w: streamline %d points: %v", fault.ErrFormat, idx, err)
			}
			for i := 0; i < k; i++ {
				off := i * stride
				s = append(s, toWorld(Point{float64(chunk[off]), float64(chunk[off+1]), float64(chunk[off+2])}))
			}
			left -= k
		}
		if len(props) > 0 {
			if err := binary.Read(r, order, props); err != nil {
				return nil, fmt.Errorf("%w: streamline %d properties: %v", fault.ErrFormat, idx, err)
			}
		}

		tg.Streamlines = append(tg.Streamlines, s)
	}

	return tg, nil
}

func (h *TrkHeader) frame() (Frame, error) {
	var f Frame
	for i := 0; i < 3; i++ {
		f.Dims[i] = int(h.Dim[i])
		f.VoxelSize[i] = float64(h.VoxelSize[i])
		if !(f.VoxelSize[i] > 0) {
			return f, fmt.Errorf("%w: trk voxel size %v", fault.ErrFormat, h.VoxelSize)
		}
	}

	if h.VoxToRAS[3][3] == 0 {
		for i := 0; i < 3; i++ {
			f.Affine[i][i] = f.VoxelSize[i]
		}
		f.Affine[3][3] = 1
		f.Derived = true
	} else {
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				f.Affine[i][j] = float64(h.VoxToRAS[i][j])
			}
		}
	}
	f.Known = true

	return f, nil
}

// voxmmToWorld maps trk voxmm coordinates (corner origin, scaled by voxel size)
// to world coordinates through the voxel-center affine.
func voxmmToWorld(f Frame) func(Point) Point {
	a := f.Affine
	vs := f.VoxelSize
	return func(p Point) Point {
		var v [3]float64
		for i := 0; i < 3; i++ {
			v[i] = p[i]/vs[i] - 0.5
		}

		var w Point
		for i := 0; i < 3; i++ {
			w[i] = a[i][0]*v[0] + a[i][1]*v[1] + a[i][2]*v[2] + a[i][3]
		}
		return w
	}
}

// WriteTrk stores tg as a TrackVis file. tg.Frame must be known.
func WriteTrk(path string, tg *Tractogram) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := EncodeTrk(w, tg); err != nil {
		f.Close()
		return fmt.Errorf("[WriteTrk] %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// EncodeTrk writes tg in little-endian TrackVis format.
func EncodeTrk(w io.Writer, tg *Tractogram) error {
	if !tg.Frame.Known {
		return fmt.Errorf("%w: trk needs a reference frame", fault.ErrFormat)
	}

	aff := mat64.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			aff.Set(i, j, tg.Frame.Affine[i][j])
		}
	}
	inv := mat64.NewDense(4, 4, nil)
	if err := inv.Inverse(aff); err != nil {
		return fmt.Errorf("%w: frame affine: %v", fault.ErrShapeMismatch, err)
	}

	var hdr TrkHeader
	copy(hdr.IDString[:], "TRACK")
	for i := 0; i < 3; i++ {
		hdr.Dim[i] = int16(tg.Frame.Dims[i])
		hdr.VoxelSize[i] = float32(tg.Frame.VoxelSize[i])
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			hdr.VoxToRAS[i][j] = float32(tg.Frame.Affine[i][j])
		}
	}
	copy(hdr.VoxelOrder[:], axisCodes(tg.Frame.Affine))
	hdr.NCount = int32(len(tg.Streamlines))
	hdr.Version = 2
	hdr.HdrSize = trkHeaderSize

	order := binary.LittleEndian
	if err := binary.Write(w, order, &hdr); err != nil {
		return err
	}

	vs := tg.Frame.VoxelSize
	for _, s := range tg.Streamlines {
		if err := binary.Write(w, order, int32(len(s))); err != nil {
			return err
		}

		buf := make([]float32, 0, 3*len(s))
		for _, p := range s {
			for i := 0; i < 3; i++ {
				v := inv.At(i, 0)*p[0] + inv.At(i, 1)*p[1] + inv.At(i, 2)*p[2] + inv.At(i, 3)
				buf = append(buf, float32((v+0.5)*vs[i]))
			}
		}
		if err := binary.Write(w, order, buf); err != nil {
			return err
		}
	}

	return nil
}

// axisCodes names the world axis each voxel axis points to, e.g. "RAS" or "LPS".
func axisCodes(a [4][4]float64) string {
	pos := [3]byte{'R', 'A', 'S'}
	neg := [3]byte{'L', 'P', 'I'}

	codes := make([]byte, 3)
	for col := 0; col < 3; col++ {
		best := 0
		for row := 1; row < 3; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[best][col]) {
				best = row
			}
		}
		if a[best][col] < 0 {
			codes[col] = neg[best]
		} else {
			codes[col] = pos[best]
		}
	}

	return string(codes)
}
