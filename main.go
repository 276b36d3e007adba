package main

import (
	"github.com/hctoledo/wachannel/cmd"
)

func main() {
	cmd.Execute()
}
