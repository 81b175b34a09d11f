package main

import (
	"os"
	"strconv"
	"strings"
)

type kioskConfig struct {
	GeminiAPIKey string

	// Model is the realtime model identifier for voice sessions.
	Model string

	// Voice is the prebuilt voice name.
	Voice string

	// CatalogBaseURL is the product service endpoint.
	CatalogBaseURL string

	// CatalogRetries bounds retries per catalog request.
	CatalogRetries int

	Debug bool
}

func loadConfig() kioskConfig {
	return kioskConfig{
		GeminiAPIKey:   envOr("GEMINI_API_KEY", ""),
		Model:          envOr("KIOSK_MODEL", "models/gemini-2.5-flash-native-audio-preview-12-2025"),
		Voice:          envOr("KIOSK_VOICE", "Aoede"),
		CatalogBaseURL: envOr("KIOSK_CATALOG_URL", "http://localhost:8000"),
		CatalogRetries: envIntOr("KIOSK_CATALOG_RETRIES", 2),
		Debug:          envBoolOr("KIOSK_DEBUG", false),
	}
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}
