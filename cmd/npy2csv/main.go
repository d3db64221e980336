package main

import (
	"fmt"
	"os"

	"github.com/KyungWonPark/Connectome/internal/io"
)

func main() { // matrix.npy [tvb]
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s matrix.npy [tvb]\n", os.Args[0])
		os.Exit(2)
	}
	fileName := os.Args[1]

	format := io.PlainCSV
	if len(os.Args) > 2 && os.Args[2] == "tvb" {
		format = io.TVBCSV
	}

	npyFile, err := io.NpytoMat64(fileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[npy2csv] %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Reading npy file complete")

	if err := io.Mat64toCSV(fileName+".csv", npyFile, format); err != nil {
		fmt.Fprintf(os.Stderr, "[npy2csv] %v\n", err)
		os.Exit(1)
	}

	return
}
