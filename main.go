// The main package for the pagekeep executable.
package main

import (
	"github.com/pagekeep/pagekeep/cmd"
)

func main() {
	cmd.Execute()
}
