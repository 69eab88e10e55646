package main

import (
	"os"

	"media-optimizer/internal/cli"
	"media-optimizer/internal/transcode"
)

func main() {
	err := cli.Execute()
	transcode.ShutdownVips()
	if err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
