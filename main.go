package main

import "github.com/relloyd/odsync/cmd"

func main() {
	cmd.Execute()
}
