package main

import (
	"github.com/aasubsidy/subsidyctl/cmd"
)

func main() {
	cmd.Execute()
}
