package main

import "go.perlls.io/perlls/cmd"

func main() {
	cmd.Execute()
}
