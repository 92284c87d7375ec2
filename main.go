package main

import "github.com/audiolibrelab/clipcapture/cmd"

func main() {
	cmd.Execute()
}
