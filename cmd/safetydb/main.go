// Command safetydb manages the workplace safety data store.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/safetydb/internal/cli"
)

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	err := cli.NewRootCommand().Execute()
	os.Exit(cli.GetExitCode(err))
}
