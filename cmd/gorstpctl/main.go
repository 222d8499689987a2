// gorstpctl is the command-line client for the gorstp daemon.
package main

import "github.com/dantte-lp/gorstp/cmd/gorstpctl/commands"

func main() {
	commands.Execute()
}
