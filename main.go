package main

import "storyflow/internal/cli"

func main() {
	cli.Execute()
}
