package main

import (
	"log"

	"stickerdex/core/cmd"
	"stickerdex/internal/bot"
)

func main() {
	err := cmd.Run(cmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (cmd.ConfigCarrier, error) {
			return bot.LoadConfig(path)
		},
		Bootstrap: bot.Bootstrap,
	})
	if err != nil {
		log.Fatalf("stickerdex: %v", err)
	}
}
