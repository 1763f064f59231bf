package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultIMAPHost = "imap.mail.me.com"
	defaultIMAPPort = "993"
	defaultSMTPHost = "smtp.mail.me.com"
	defaultSMTPPort = "587"
)

type Config struct {
	Environment string
	Email       string
	AppPassword string
	IMAPHost    string
	IMAPPort    string
	SMTPHost    string
	SMTPPort    string
	// TestMode disables TLS for both protocols. Only the in-memory test servers need it.
	TestMode bool
}

// NewConfig reads the configuration from the environment.
// Missing credentials are not an error here: the server still starts so that
// check_config can report what is missing. Call Validate before connecting.
func NewConfig() (*Config, error) {
	env := os.Getenv("MAIL_MCP_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			// stdout carries MCP frames, so the warning goes to stderr.
			fmt.Fprintln(os.Stderr, "Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment: env,
		Email:       strings.TrimSpace(os.Getenv("ICLOUD_EMAIL")),
		AppPassword: os.Getenv("ICLOUD_APP_PASSWORD"),
		IMAPHost:    getEnvOrDefault("IMAP_HOST", defaultIMAPHost),
		IMAPPort:    getEnvOrDefault("IMAP_PORT", defaultIMAPPort),
		SMTPHost:    getEnvOrDefault("SMTP_HOST", defaultSMTPHost),
		SMTPPort:    getEnvOrDefault("SMTP_PORT", defaultSMTPPort),
		TestMode:    os.Getenv("MAIL_MCP_TEST_MODE") == "true",
	}

	if err := validatePort("IMAP_PORT", config.IMAPPort); err != nil {
		return nil, err
	}
	if err := validatePort("SMTP_PORT", config.SMTPPort); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate reports whether the config has everything needed to open a session.
func (c *Config) Validate() error {
	if c.Email == "" {
		return fmt.Errorf("ICLOUD_EMAIL is required")
	}

	if c.AppPassword == "" {
		return fmt.Errorf("ICLOUD_APP_PASSWORD is required")
	}

	return nil
}

// IsConfigured is true when both required credentials are present.
func (c *Config) IsConfigured() bool {
	return c.Validate() == nil
}

// IMAPAddress returns host:port for the IMAP server.
func (c *Config) IMAPAddress() string {
	return net.JoinHostPort(c.IMAPHost, c.IMAPPort)
}

// SMTPAddress returns host:port for the SMTP server.
func (c *Config) SMTPAddress() string {
	return net.JoinHostPort(c.SMTPHost, c.SMTPPort)
}

// LoginIdentities returns the usernames to try, in order: the local part of
// the email address first, then the full address.
func (c *Config) LoginIdentities() []string {
	at := strings.LastIndex(c.Email, "@")
	if at <= 0 {
		return []string{c.Email}
	}
	return []string{c.Email[:at], c.Email}
}

func validatePort(key, value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("%s must be a port number between 1 and 65535, got %q", key, value)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
