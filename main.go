package main

import "jobrunner/cmd"

func main() {
	cmd.Execute()
}
