package main

import "github.com/ValentinKolb/dMirror/cmd"

func main() {
	cmd.Execute()
}
