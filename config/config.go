package config

import (
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ContainerName string
	ImageTag      string
	Dockerfile    string
	BuildContext  string
	HostWorkDir   string
	MountTarget   string
	StopTimeout   int
	QueueSize     int

	MaxCodeLength int
	SanitizeCode  bool

	NatsURL       string
	SubjectPrefix string

	Environment  string
	ContainerLog string
}

func LoadConfig() Config {
	err := godotenv.Load(".env")
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	return Config{
		ContainerName: getEnv("CONTAINER_NAME", "rusty-repl"),
		ImageTag:      getEnv("IMAGE_TAG", "rusty-rep/nodejs"),
		Dockerfile:    getEnv("DOCKERFILE", "Dockerfile"),
		BuildContext:  getEnv("BUILD_CONTEXT", "./docker_files/node.tar.gz"),
		HostWorkDir:   getEnv("HOST_WORKDIR", defaultWorkDir()),
		MountTarget:   getEnv("MOUNT_TARGET", "/rusty-rep"),
		StopTimeout:   getEnvInt("STOP_TIMEOUT_SEC", 5),
		QueueSize:     getEnvInt("QUEUE_SIZE", 32),

		MaxCodeLength: getEnvInt("MAX_CODE_LENGTH", 100000),
		SanitizeCode:  getEnvBool("SANITIZE_CODE", false),

		NatsURL:       getEnv("NATSURL", "nats://localhost:4222"),
		SubjectPrefix: getEnv("SUBJECT_PREFIX", "replbox"),

		Environment:  getEnv("ENVIRONMENT", "production"),
		ContainerLog: getEnv("CONTAINER_LOG", "logs/container.log"),
	}
}

// Validate reports the first setting that would make provisioning impossible.
func (c Config) Validate() error {
	if c.ContainerName == "" {
		return fmt.Errorf("CONTAINER_NAME must not be empty")
	}
	if c.ImageTag == "" {
		return fmt.Errorf("IMAGE_TAG must not be empty")
	}
	if c.HostWorkDir == "" {
		return fmt.Errorf("HOST_WORKDIR must not be empty")
	}
	if !path.IsAbs(c.MountTarget) {
		return fmt.Errorf("MOUNT_TARGET must be an absolute container path, got: %q", c.MountTarget)
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("STOP_TIMEOUT_SEC must be positive, got: %d", c.StopTimeout)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("QUEUE_SIZE must be positive, got: %d", c.QueueSize)
	}
	if c.MaxCodeLength <= 0 {
		return fmt.Errorf("MAX_CODE_LENGTH must be positive, got: %d", c.MaxCodeLength)
	}
	if c.Environment != "production" && c.Environment != "development" {
		return fmt.Errorf("invalid ENVIRONMENT: %s, must be 'production' or 'development'", c.Environment)
	}
	return nil
}

// StopGrace returns the container stop grace period.
func (c Config) StopGrace() time.Duration {
	return time.Duration(c.StopTimeout) * time.Second
}

func defaultWorkDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "rusty-tester")
	}
	return filepath.Join(home, "rusty-tester")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
