// internal/workers/scan/scan-card/config.go
package scancard

import "time"

type Config struct {
	Timeout       time.Duration
	MaxImageBytes int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       90 * time.Second,
		MaxImageBytes: 10 << 20,
	}
}
