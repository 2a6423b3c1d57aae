package main

import (
	"log"

	"github.com/relabs-tech/camera_orientation/internal/app"
	"github.com/relabs-tech/camera_orientation/internal/config"
)

func main() {
	log.Println("starting camera-orientation web server (browser bridge)")

	if err := config.InitGlobal("camera_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunWeb(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
