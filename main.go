package main

import "github.com/stephnangue/sessionpipe/cmd"

func main() {
	cmd.Execute()
}
