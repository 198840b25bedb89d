package main

import (
	"ticket-drop-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
