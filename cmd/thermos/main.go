package main

import "github.com/thermos-iot/thermos-console/cmd/thermos/commands"

func main() {
	commands.Execute()
}
