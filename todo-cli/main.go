package main

import (
	"os"

	"livetodo/todo-cli/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
