package main

import (
	"log"

	"github.com/joho/godotenv"

	"roam/cmd/internal/app"
)

func main() {
	// Best-effort local dev convenience; real deployments set env directly.
	_ = godotenv.Load(".env")

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
