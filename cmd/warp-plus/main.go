package main

import "github.com/xn030523/Warp-Plus/internal/cli"

func main() {
	cli.Execute()
}
