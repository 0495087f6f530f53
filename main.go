package main

import "github.com/KaramelBytes/tripstat-cli/cmd"

func main() {
	cmd.Execute()
}
