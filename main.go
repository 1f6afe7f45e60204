package main

import (
	"os"

	"github.com/restitch/restitch/cmd"
	"github.com/restitch/restitch/internal"
)

var logger = internal.GetLogger("restitch_main")

func main() {
	err := cmd.Main(os.Args)
	if err != nil {
		logger.Fatal(err)
	}
}
