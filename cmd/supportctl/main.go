package main

import "supportdesk/cmd/cli"

func main() {
	cli.Execute()
}
