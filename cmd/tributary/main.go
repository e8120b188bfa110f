package main

import "tributary/internal/cli"

func main() {
	cli.Execute()
}
