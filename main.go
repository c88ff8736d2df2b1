package main

import "github.com/ethpandaops/errorfilter/cmd"

func main() {
	cmd.Execute()
}
