// Command xfer uploads and downloads objects with the multipart transfer engine.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
