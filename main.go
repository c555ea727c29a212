package main

import "github.com/khanhnv2901/webposture/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
