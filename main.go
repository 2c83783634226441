package main

import (
	"log"

	"feedback-bot/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
