package main

import "github.com/vibast-solutions/ms-go-gym-payments/cmd"

func main() {
	cmd.Execute()
}
