package main

import (
	"github.com/joho/godotenv"

	"github.com/eleven-am/voice-callcenter/internal/bootstrap"
)

// @title Call Center Voice API
// @version 1.0.0
// @description Real-time voice pipeline for call center sessions

// @host localhost:8080
// @BasePath /api/v1

func main() {
	// A missing .env is fine; the environment still applies.
	_ = godotenv.Load()
	bootstrap.Run()
}
