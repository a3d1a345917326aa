package config

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	Port          string
	DatabaseDSN   string
	BrokerURL     string
	JWTSecret     string
	Env           string
	AdvertiseAddr string
	ConsumerGroup string
	RoomSoftCap   int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Load 从环境变量加载配置，缺省值面向本地开发环境。
func Load() Config {
	port := getenv("APP_PORT", "3001")
	return Config{
		Port:          port,
		DatabaseDSN:   getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=classchat port=5432 sslmode=disable TimeZone=UTC"),
		BrokerURL:     getenv("BROKER_URL", "nats://localhost:4222"),
		JWTSecret:     getenv("JWT_SECRET", "dev-secret-change-me"),
		Env:           getenv("APP_ENV", "dev"),
		AdvertiseAddr: getenv("ADVERTISE_ADDR", "127.0.0.1:"+port),
		ConsumerGroup: getenv("CONSUMER_GROUP", "persistence"),
		RoomSoftCap:   getenvInt("ROOM_SOFT_CAP", 100),
	}
}

// Validate 对配置做启动前检查，非 dev 环境拒绝默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("database dsn is required")
	}
	if cfg.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == "dev-secret-change-me" {
		return errors.New("default jwt secret is not allowed outside dev")
	}
	return nil
}
