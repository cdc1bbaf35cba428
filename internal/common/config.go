package common

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	AWS         AWSConfig
	Store       StoreConfig
	Storage     StorageConfig
	Recognition RecognitionConfig
	Server      ServerConfig
	Dispatch    DispatchConfig
}

// AWSConfig holds shared client configuration
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// StoreConfig holds structured-store configuration
type StoreConfig struct {
	TableName    string
	StreamARN    string
	PollInterval time.Duration
}

// StorageConfig holds object-store configuration
type StorageConfig struct {
	Bucket string
}

// RecognitionConfig holds recognition-service configuration
type RecognitionConfig struct {
	Mode    string // "detect" | "analyzeExpense"
	Timeout time.Duration
}

// ServerConfig holds the synchronous trigger surface configuration
type ServerConfig struct {
	HTTPAddr string
}

// DispatchConfig holds worker-queue configuration
type DispatchConfig struct {
	Workers        int
	QueueSize      int
	ProcessTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		Store: StoreConfig{
			TableName:    getEnv("RECEIPT_TABLE_NAME", ""),
			StreamARN:    getEnv("RECEIPT_TABLE_STREAM_ARN", ""),
			PollInterval: getEnvAsDuration("STREAM_POLL_INTERVAL", 2*time.Second),
		},
		Storage: StorageConfig{
			Bucket: getEnv("STORAGE_BUCKET", ""),
		},
		Recognition: RecognitionConfig{
			Mode:    getEnv("RECOGNITION_MODE", "detect"),
			Timeout: getEnvAsDuration("RECOGNITION_TIMEOUT", 30*time.Second),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		},
		Dispatch: DispatchConfig{
			Workers:        getEnvAsInt("DISPATCH_WORKERS", 4),
			QueueSize:      getEnvAsInt("DISPATCH_QUEUE_SIZE", 256),
			ProcessTimeout: getEnvAsDuration("DISPATCH_PROCESS_TIMEOUT", 2*time.Minute),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Store.TableName == "" {
		return fmt.Errorf("%w: RECEIPT_TABLE_NAME is required", ErrMalformedInput)
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("%w: STORAGE_BUCKET is required", ErrMalformedInput)
	}
	if c.Recognition.Mode != "detect" && c.Recognition.Mode != "analyzeExpense" {
		return fmt.Errorf("%w: RECOGNITION_MODE must be detect or analyzeExpense, got %q", ErrMalformedInput, c.Recognition.Mode)
	}
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("%w: HTTP_ADDR is required", ErrMalformedInput)
	}
	return nil
}
