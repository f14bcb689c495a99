package main

import "github.com/nextlevelbuilder/chatterbox/cmd"

func main() {
	cmd.Execute()
}
