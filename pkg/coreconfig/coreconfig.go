// Package coreconfig loads host-side configuration for a Verifier or Issuer
// built on top of mdljarm. The core operations themselves never read
// environment variables or files directly; this package is ambient
// scaffolding for an application embedding the core.
package coreconfig

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// VerifierConfig is the host-level configuration for a Verifier: where to
// find trust anchors and how strict to be about revocation/time checks.
type VerifierConfig struct {
	TrustAnchorsPath  string `yaml:"trust_anchors_path" validate:"required"`
	RequireRevocation bool   `yaml:"require_revocation" default:"false"`
	ClockSkewSeconds  int    `yaml:"clock_skew_seconds" default:"30"`
}

// IssuerConfig is the host-level configuration for a Document builder: which
// signing key and DS certificate chain to present.
type IssuerConfig struct {
	SigningKeyPath        string `yaml:"signing_key_path" validate:"required"`
	DocumentSignerChain   string `yaml:"document_signer_chain_path" validate:"required"`
	DigestAlgorithm       string `yaml:"digest_algorithm" default:"SHA-256"`
}

type envVars struct {
	ConfigYAML string `envconfig:"MDLJARM_CONFIG_YAML" required:"true"`
}

// NewVerifierConfig parses a VerifierConfig from the YAML file named by the
// MDLJARM_CONFIG_YAML environment variable, following the teacher's
// envconfig + creasty/defaults + yaml.v2 pattern.
func NewVerifierConfig() (*VerifierConfig, error) {
	cfg := &VerifierConfig{}
	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}
	if err := loadYAML(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewIssuerConfig parses an IssuerConfig the same way.
func NewIssuerConfig() (*IssuerConfig, error) {
	cfg := &IssuerConfig{}
	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}
	if err := loadYAML(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAML(cfg any) error {
	env := envVars{}
	if err := envconfig.Process("", &env); err != nil {
		return err
	}

	configPath := env.ConfigYAML

	info, err := os.Stat(configPath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("config path is a directory")
	}

	raw, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return err
	}
	return validator.New().Struct(cfg)
}
