package main

import "github.com/krevetka/krevetka/cmd"

func main() {
	cmd.Execute()
}
