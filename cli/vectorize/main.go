package main

import (
	"os"

	vectorizecmder "github.com/paperlane/vectorize/cmd/vectorize"
)

func main() {
	cmd := vectorizecmder.NewVectorizeCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
