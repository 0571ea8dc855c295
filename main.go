package main

import "github.com/sajjad-MoBe/walstore/cmd"

func main() {
	cmd.ExecuteServer()
}
