package main

import "serial-console/cmd"

func main() {
	cmd.Execute()
}
