package main

import "github.com/brensch/zipfetch/cmd"

func main() {
	cmd.Execute()
}
