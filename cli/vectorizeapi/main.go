package main

import (
	"os"

	apicmder "github.com/paperlane/vectorize/cmd/vectorize/serve/api"
)

func main() {
	cmd := apicmder.NewAPICmd()
	cmd.Use = "vectorizeapi"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .vectorize/ config directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
