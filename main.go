package main

import (
	"github.com/hwlore/hwlore/cmd"
)

func main() {
	cmd.Execute()
}
