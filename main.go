package main

import "lanshare/cmd"

func main() {
	cmd.Execute()
}
