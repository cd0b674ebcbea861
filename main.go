package main

import "github.com/moruklabs/dev-archive/cmd"

func main() {
	cmd.Execute()
}
