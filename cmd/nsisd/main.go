package main

import "github.com/kit-nsis/gosis/cmd/nsisd/cmd"

func main() {
	cmd.Execute()
}
