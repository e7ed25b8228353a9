package main

import "github.com/yuna-network/yuna/internal/cli"

func main() {
	cli.Execute()
}
