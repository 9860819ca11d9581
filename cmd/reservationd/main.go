package main

import "github.com/example/reservationd/cmd"

func main() {
	cmd.Execute()
}
