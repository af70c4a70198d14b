package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/xeyes/cmd"
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Error("Cannot load .env file, err = ", err)
		}
	}

	cmd.Execute()
}
