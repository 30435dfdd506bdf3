package main

import "memory-lane-backend/commands"

func main() {
	commands.Execute()
}
