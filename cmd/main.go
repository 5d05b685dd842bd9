package main

import (
	"os"

	"github.com/vincent19951222/quiz-website/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
