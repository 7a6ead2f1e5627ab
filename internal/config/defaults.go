package config

func Defaults() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout:    30,
			RequestTimeout: 60,
			SendPerMinute:  1800,
			SendBurst:      30,
			ChatPerMinute:  20,
			ChatBurst:      3,
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:5005",
		},
		Storage: StorageConfig{
			UploadDir: "uploaded_files",
		},
		Log: LogConfig{
			Level: "info",
		},
		DeliveryLog: DeliveryLogConfig{
			Enabled:       true,
			DBPath:        "~/.telegramd/deliveries.db",
			RetentionDays: 30,
		},
	}
}
