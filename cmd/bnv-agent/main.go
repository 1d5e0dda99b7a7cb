package main

import "github.com/bnv-me/webbnv/internal/cli"

func main() {
	cli.Execute()
}
