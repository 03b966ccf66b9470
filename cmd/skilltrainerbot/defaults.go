package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Telegram
	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.max_message_length", 3900)

	// Backend decision service
	viper.SetDefault("backend.url", "http://127.0.0.1:8000")
	viper.SetDefault("backend.token", "")
	viper.SetDefault("backend.timeout", 15*time.Second)

	// HTTP server (webhook + push)
	viper.SetDefault("listen.host", "0.0.0.0")
	viper.SetDefault("listen.port", 8080)
	viper.SetDefault("webhook.enabled", false)
	viper.SetDefault("webhook.path", "/tg/webhook")
	viper.SetDefault("webhook.url", "")
	viper.SetDefault("webhook.secret", "")
	viper.SetDefault("push.token", "")

	// Voice transcription
	viper.SetDefault("transcribe.url", "")
	viper.SetDefault("transcribe.token", "")
	viper.SetDefault("asr.api_key", "")
	viper.SetDefault("asr.model", "")
	viper.SetDefault("asr.url", "")
	viper.SetDefault("asr.language", "")
	viper.SetDefault("asr.timeout", 20*time.Second)
	viper.SetDefault("ffmpeg.binary", "ffmpeg")

	// Dedup
	viper.SetDefault("dedup.window", 2048)
	viper.SetDefault("dedup.redis_addr", "")
	viper.SetDefault("dedup.redis_password", "")
	viper.SetDefault("dedup.ttl", 24*time.Hour)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
}
