package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// loadEnvFiles loads optional dotenv files so ${VAR} references in the config
// expand against them. godotenv.Load never overrides variables already set,
// so the process environment always wins.
func loadEnvFiles(configDir string) {
	for _, p := range []string{filepath.Join(configDir, ".env"), ".env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}
