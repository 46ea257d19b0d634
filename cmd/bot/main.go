package main

import (
	"log"

	"github.com/joho/godotenv"

	corecmd "groupcast/core/cmd"
	"groupcast/internal/bot"
)

func main() {
	_ = godotenv.Load()

	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return bot.LoadConfig(path)
		},
		Bootstrap: bot.Bootstrap,
	})
	if err != nil {
		log.Fatalf("bot exited: %v", err)
	}
}
