package main

import (
	"github.com/flyteorg/flowcompiler/cmd/flowcompiler/cmd"
)

func main() {
	cmd.Execute()
}
