package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/KyungWonPark/Connectome/internal/tract"
)

func main() { // input.trk [output.tck]
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s input.trk [output.tck]\n", os.Args[0])
		os.Exit(2)
	}

	input := os.Args[1]
	output := strings.TrimSuffix(input, ".trk") + ".tck"
	if len(os.Args) > 2 {
		output = os.Args[2]
	}

	tg, err := tract.ReadTrk(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[trk2tck] %v\n", err)
		os.Exit(1)
	}

	if err := tract.WriteTck(output, tg); err != nil {
		fmt.Fprintf(os.Stderr, "[trk2tck] %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %d streamlines: %s\n", tg.Len(), output)

	return
}
