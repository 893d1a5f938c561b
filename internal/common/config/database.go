package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DatabaseConfig describes the SQL database behind the audit store
type DatabaseConfig struct {
	Type     string `yaml:"type"`     // sqlite, mysql, postgres
	Host     string `yaml:"host"`     // localhost
	Port     int    `yaml:"port"`     // 3306 (for mysql), 5432 (for postgres)
	User     string `yaml:"user"`     // root (for mysql), postgres (for postgres)
	Password string `yaml:"password"` // password
	DBName   string `yaml:"dbname"`   // database name, or file path for sqlite
	SSLMode  string `yaml:"sslmode"`  // disable (for postgres)
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() (string, error) {
	switch c.Type {
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode), nil
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName), nil
	case "sqlite":
		if c.DBName == ":memory:" || filepath.Dir(c.DBName) == "." {
			return c.DBName, nil
		}
		if err := os.MkdirAll(filepath.Dir(c.DBName), 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory for sqlite database: %w", err)
		}
		return c.DBName, nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", c.Type)
	}
}
