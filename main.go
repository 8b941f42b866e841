package main

import "github.com/deploymenttheory/go-cryptodisk/cmd"

func main() {
	cmd.Execute()
}
