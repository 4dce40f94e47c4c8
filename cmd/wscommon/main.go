package main

import "github.com/bryanchriswhite/wscommon/cmd/wscommon/commands"

func main() {
	commands.Execute()
}
