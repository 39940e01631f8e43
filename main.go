package main

import "github.com/kuoruan/feed-session/cmd"

func main() {
	cmd.Execute()
}
