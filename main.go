package main

import (
	"os"

	"github.com/smallnest/hookrelay/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
