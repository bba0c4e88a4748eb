package main

import (
	"github.com/named-data/Consumer-Producer-API/cmd/cpapi/cli"
)

func main() {
	cli.CmdRoot.Execute()
}
