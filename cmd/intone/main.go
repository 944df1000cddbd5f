package main

import (
	"os"

	"github.com/intonelabs/intone/cmd/intone/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
