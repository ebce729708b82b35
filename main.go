package main

import "github.com/orchestria/orchestria/cmd"

func main() {
	cmd.Execute()
}
