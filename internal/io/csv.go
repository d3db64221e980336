package io

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/KyungWonPark/Connectome/internal/fault"
	"github.com/gonum/matrix/mat64"
)

// CSVFormat controls how matrix cells are rendered.
type CSVFormat struct {
	Delimiter string
	Fmt       byte // strconv.FormatFloat verb
	Prec      int
}

var (
	// PlainCSV is shortest round-trip formatting, ", " separated.
	PlainCSV = CSVFormat{Delimiter: ", ", Fmt: 'g', Prec: -1}
	// TVBCSV matches numpy savetxt(delimiter=',', fmt='%f').
	TVBCSV = CSVFormat{Delimiter: ",", Fmt: 'f', Prec: 6}
	// TVBText matches numpy savetxt(delimiter='\t', fmt='%f').
	TVBText = CSVFormat{Delimiter: "\t", Fmt: 'f', Prec: 6}
)

// Mat64toCSV saves Mat64 as a delimited text file, one matrix row per line
func Mat64toCSV(path string, matrix *mat64.Dense, format CSVFormat) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("[Mat64toCSV] failed to create %s: %w", path, err)
	}

	rows, _ := matrix.Dims()
	lines := make([]string, rows)

	workers := runtime.NumCPU()
	order := make(chan int, workers)
	var wg sync.WaitGroup

	wg.Add(rows)
	for i := 0; i < workers; i++ {
		go func() {
			for index := range order {
				lines[index] = formatLine(matrix.RawRowView(index), format)
				wg.Done()
			}
		}()
	}

	for i := 0; i < rows; i++ {
		order <- i
	}
	wg.Wait()
	close(order)

	bw := bufio.NewWriter(f)
	for _, line := range lines {
		bw.WriteString(line)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("[Mat64toCSV] failed to write %s: %w", path, err)
	}

	return f.Close()
}

func formatLine(row []float64, format CSVFormat) string {
	var sb strings.Builder
	for i, v := range row {
		if i > 0 {
			sb.WriteString(format.Delimiter)
		}
		sb.WriteString(strconv.FormatFloat(v, format.Fmt, format.Prec, 64))
	}

	return sb.String()
}

// CSVtoMat64 reads a delimited text file of floats into a new matrix. Every
// line must hold the same number of fields.
func CSVtoMat64(path string, comma rune) (*mat64.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[CSVtoMat64] failed to open %s: %w", path, err)
	}
	defer f.Close()

	csvReader := csv.NewReader(f)
	csvReader.Comma = comma
	csvReader.TrimLeadingSpace = true

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("[CSVtoMat64] %w: %s: %v", fault.ErrFormat, path, err)
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, fmt.Errorf("[CSVtoMat64] %w: %s is empty", fault.ErrShapeMismatch, path)
	}

	rows, cols := len(records), len(records[0])
	matrix := mat64.NewDense(rows, cols, nil)

	for i, record := range records {
		for j, field := range record {
			value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("[CSVtoMat64] %w: %s line %d: %v", fault.ErrFormat, path, i+1, err)
			}
			matrix.Set(i, j, value)
		}
	}

	return matrix, nil
}
