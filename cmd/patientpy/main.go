package main

import (
	"os"

	"github.com/synaptica-ai/patientpy/pkg/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
