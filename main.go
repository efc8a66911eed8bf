package main

import "github.com/meridian-studio/ms-go-billing/cmd"

func main() {
	cmd.Execute()
}
