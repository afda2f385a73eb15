package main

import (
	"os"

	"github.com/grovetools/nicepick/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
