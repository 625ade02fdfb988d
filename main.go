package main

import "GuildFM/cmd"

func main() {
	cmd.Execute()
}
