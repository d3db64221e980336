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
	"strconv"
	"strings"

	"github.com/KyungWonPark/Connectome/internal/fault"
)

// WriteTck stores tg as an MRtrix tck file (Float32LE). The reference frame is not part of the format.
func WriteTck(path string, tg *Tractogram) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := EncodeTck(w, tg); err != nil {
		f.Close()
		return fmt.Errorf("[WriteTck] %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func tckHeader(count, offset int) string {
	return fmt.Sprintf("mrtrix tracks\ndatatype: Float32LE\ncount: %010d\nfile: . %d\nEND\n", count, offset)
}

// EncodeTck writes tg to w.
func EncodeTck(w io.Writer, tg *Tractogram) error {
	offset := len(tckHeader(tg.Len(), 0))
	for len(tckHeader(tg.Len(), offset)) != offset {
		offset = len(tckHeader(tg.Len(), offset))
	}

	if _, err := io.WriteString(w, tckHeader(tg.Len(), offset)); err != nil {
		return err
	}

	order := binary.LittleEndian
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	for _, s := range tg.Streamlines {
		buf := make([]float32, 0, 3*len(s)+3)
		for _, p := range s {
			buf = append(buf, float32(p[0]), float32(p[1]), float32(p[2]))
		}
		buf = append(buf, nan, nan, nan)
		if err := binary.Write(w, order, buf); err != nil {
			return err
		}
	}

	return binary.Write(w, order, []float32{inf, inf, inf})
}

// ReadTck loads an MRtrix tck file. The returned frame is unknown.
func ReadTck(path string) (*Tractogram, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	tg, err := DecodeTck(data)
	if err != nil {
		return nil, fmt.Errorf("[ReadTck] %s: %w", path, err)
	}

	return tg, nil
}

// DecodeTck parses a complete tck file held in data.
func DecodeTck(data []byte) (*Tractogram, error) {
	end := bytes.Index(data, []byte("\nEND\n"))
	if !bytes.HasPrefix(data, []byte("mrtrix tracks\n")) || end < 0 {
		return nil, fmt.Errorf("%w: not an mrtrix tracks file", fault.ErrFormat)
	}

	fields := map[string]string{}
	for _, line := range strings.Split(string(data[:end]), "\n")[1:] {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	var order binary.ByteOrder
	switch fields["datatype"] {
	case "Float32LE":
		order = binary.LittleEndian
	case "Float32BE":
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: tck datatype %q", fault.ErrFormat, fields["datatype"])
	}

	file := strings.Fields(fields["file"])
	if len(file) != 2 || file[0] != "." {
		return nil, fmt.Errorf("%w: tck file field %q", fault.ErrFormat, fields["file"])
	}
	offset, err := strconv.Atoi(file[1])
	if err != nil || offset < end+len("\nEND\n") || offset > len(data) {
		return nil, fmt.Errorf("%w: tck data offset %q", fault.ErrFormat, file[1])
	}

	r := bytes.NewReader(data[offset:])
	tg := &Tractogram{}
	var cur Streamline
	var triplet [3]float32
	for {
		if err := binary.Read(r, order, &triplet); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: tck data: %v", fault.ErrFormat, err)
		}

		x := float64(triplet[0])
		if math.IsInf(x, 0) {
			break
		}
		if math.IsNaN(x) {
			tg.Streamlines = append(tg.Streamlines, cur)
			cur = nil
			continue
		}
		cur = append(cur, Point{x, float64(triplet[1]), float64(triplet[2])})
	}
	if len(cur) > 0 {
		tg.Streamlines = append(tg.Streamlines, cur)
	}

	return tg, nil
}
