package main

import (
	"os"
)

var version = "dev"

func main() {
	err := rootCmd.Execute()
	closeApp()
	if err != nil {
		os.Exit(1)
	}
}
