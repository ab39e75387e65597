package main

import "github.com/KaramelBytes/govai/cmd"

func main() {
	cmd.Execute()
}
