package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rpattn/calql/internal/db"
	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	Database   db.Config
	ServerAddr string
	AuthSecret string
	ExportDir  string
}

// Default returns the configuration used when neither config.yaml nor
// environment variables override anything.
func Default() Config {
	return Config{
		Database:   db.DefaultConfig(),
		ServerAddr: ":8080",
		AuthSecret: "dev-secret-change-me",
		ExportDir:  "exports",
	}
}

// Load reads config.yaml from configPath, with environment overrides
// (CALQL_DATABASE_HOST, CALQL_SERVER_ADDR, ...). A .env file in the working
// directory is folded into the environment first when present.
func Load(configPath string) (Config, error) {
	// Optional; absence is the normal case outside local development.
	_ = godotenv.Load()

	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("CALQL") // map env vars like CALQL_DATABASE_HOST

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("auth.secret")
	v.BindEnv("export.dir")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.ServerAddr = v.GetString("server.addr")
	}
	if v.IsSet("auth.secret") {
		cfg.AuthSecret = v.GetString("auth.secret")
	}
	if v.IsSet("export.dir") {
		cfg.ExportDir = v.GetString("export.dir")
	}

	return cfg, nil
}
