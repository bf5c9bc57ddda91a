package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/shipsure/shipsure/cmd/cli/commands"
)

func main() {
	// A missing .env file is fine; environment variables still apply.
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
