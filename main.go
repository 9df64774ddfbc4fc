package main

import "github.com/killallgit/podgraph/cmd"

func main() {
	cmd.Execute()
}
