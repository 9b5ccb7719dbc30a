package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/laventecare/identitycore/internal/config"
	"github.com/laventecare/identitycore/pkg/logger"
)

const secretLen = 32

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.Env)

	secret := make([]byte, secretLen)
	if _, err := rand.Read(secret); err != nil {
		log.Error("failed to generate signing secret", "error", err)
		os.Exit(1)
	}

	encoded := base64.StdEncoding.EncodeToString(secret)
	log.Info("generated signing secret", "bytes", secretLen)

	fmt.Println("--- COPY BELOW TO .env.local ---")
	fmt.Printf("IDENTITYCORE_SIGNING_SECRET=\"%s\"\n", encoded)
	fmt.Println("--------------------------------")
}
