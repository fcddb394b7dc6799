package main

import (
	"github.com/joho/godotenv"

	"github.com/khanhnv2901/cspgen/cmd"
)

var execCmd = cmd.Execute

func main() {
	// A missing .env is normal; real environment variables still apply.
	_ = godotenv.Load()
	execCmd()
}
