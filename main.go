package main

import (
	"os"

	"github.com/FurqatMashrabjonov/speech-coach/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
