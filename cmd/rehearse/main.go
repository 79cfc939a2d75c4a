// Command rehearse is a terminal interview practice recorder.
package main

import "github.com/jwulff/rehearse/internal/cli"

func main() {
	cli.Execute()
}
