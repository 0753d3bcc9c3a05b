package httpapi

import "os"

// Config carries the HTTP transport's own tunables, kept separate from
// internal/config's SSH tunables since these govern the transport layer
// only and have no bearing on session/command/shell semantics.
type Config struct {
	Port        string
	TokenSecret string
	AdminUser   string
	AdminPass   string
}

// LoadConfig reads plain environment variables with fallbacks, no
// external config library.
func LoadConfig() Config {
	return Config{
		Port:        getEnv("MCP_PORT", "8090"),
		TokenSecret: os.Getenv("MCP_HTTP_TOKEN_SECRET"),
		AdminUser:   getEnv("MCP_HTTP_ADMIN_USERNAME", "operator"),
		AdminPass:   getEnv("MCP_HTTP_ADMIN_PASSWORD", "changeme"),
	}
}

// AuthEnabled reports whether the bearer-token guard is active. An unset
// secret leaves the HTTP transport open.
func (c Config) AuthEnabled() bool {
	return c.TokenSecret != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
