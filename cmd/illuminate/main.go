package main

import "github.com/bryanchriswhite/illuminate/cmd/illuminate/commands"

func main() {
	commands.Execute()
}
