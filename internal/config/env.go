package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type AuthEnv struct {
	JWTSecret string `envconfig:"JWT_SECRET"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".campushustle/files"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"campushustle/"`
	S3Region string `envconfig:"S3_REGION" default:"af-south-1"`
}

// GatewayEnv holds the outbound gateway credentials and the shared secret
// the gateway presents on status callbacks.
type GatewayEnv struct {
	Key            string `envconfig:"GATEWAY_KEY"`
	Secret         string `envconfig:"GATEWAY_SECRET"`
	CallbackSecret string `envconfig:"CALLBACK_SECRET"`
}

type Env struct {
	AuthEnv
	StorageEnv
	GatewayEnv
}

const namespace = "HUSTLE"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if env.Type != "local" && env.Type != "s3" {
		return nil, fmt.Errorf("HUSTLE_STORAGE_TYPE must be local or s3, got %q", env.Type)
	}
	if env.Type == "s3" && env.S3Bucket == "" {
		return nil, fmt.Errorf("HUSTLE_S3_BUCKET is required when HUSTLE_STORAGE_TYPE=s3")
	}
	return &env, nil
}
