package main

import "github.com/faultline-hq/faultline/cmd/server/cmd"

func main() {
	cmd.Execute()
}
