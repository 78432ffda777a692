package main

import "github.com/eivind-moen/comicdl/cmd"

func main() {
	cmd.Execute()
}
