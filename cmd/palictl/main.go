package main

import "palimpsest/api/cmd/palictl/cmd"

func main() {
	cmd.Execute()
}
