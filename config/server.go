package config

import (
	"strings"
	"sync"
)

var (
	serverOnce   sync.Once
	serverConfig *ServerConfig
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port        string
	CORSOrigins []string
}

func GetServerConfig() *ServerConfig {
	serverOnce.Do(func() {
		loadEnv()

		serverConfig = &ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		}
	})
	return serverConfig
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
