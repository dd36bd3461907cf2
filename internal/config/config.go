package config

import (
	"os"
	"reflect"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// devJWTSecret is used only when JWT_SECRET is unset, so the server still
// boots for local development. Production deployments must set JWT_SECRET.
var devJWTSecret = []byte("dev-only-insecure-secret")

type AuthConf struct {
	ChallengeTTL   time.Duration `env:"CHALLENGE_TTL"   envDefault:"60s"`
	ChallengeSweep time.Duration `env:"CHALLENGE_SWEEP" envDefault:"60s"`
	TokenTTL       time.Duration `env:"TOKEN_TTL"       envDefault:"24h"`
}

type WebsocketConf struct {
	ReadLimit int64 `env:"READ_LIMIT" envDefault:"4096"`
}

type CORSConf struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*"`
}

type Config struct {
	JWTSecret         []byte        `env:"JWT_SECRET"`
	CORS              CORSConf      `envPrefix:"CORS_"`
	Auth              AuthConf      `envPrefix:"AUTH_"`
	Websocket         WebsocketConf `envPrefix:"WEBSOCKET_"`
	RequestsRateLimit int           `env:"REQUESTS_RATE_LIMIT" envDefault:"30"`
}

func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err == nil {
		if err = godotenv.Load(path); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{}
	err := env.ParseWithOptions(&cfg, env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf([]byte{0}): func(v string) (interface{}, error) {
				return []byte(v), nil
			},
		},
	})
	if err != nil {
		return Config{}, err
	}

	if len(cfg.JWTSecret) == 0 {
		cfg.JWTSecret = devJWTSecret
	}

	return cfg, nil
}
