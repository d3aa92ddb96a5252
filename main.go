package main

import "github.com/outboxlab/eventgate/cmd"

func main() {
	cmd.Execute()
}
