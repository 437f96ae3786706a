package main

import "github.com/audiolibrelab/miditake/cmd"

func main() {
	cmd.Execute()
}
