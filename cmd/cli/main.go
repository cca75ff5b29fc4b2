package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/userpipe/userpipe/cmd/cli/commands"
)

func main() {
	// Optional; flags and env vars still work without a .env file.
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
