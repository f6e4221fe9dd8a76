package main

import "price-window-averager/internal/cli"

func main() {
	cli.Execute()
}
