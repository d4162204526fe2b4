// Package config loads client configuration from YAML with environment
// overrides. Absent values keep their defaults so a partial file is enough.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"blockdrive/go-sdk/internal/ledger"
	"blockdrive/go-sdk/internal/storage"
)

// DefaultRPCEndpoint is the public mainnet RPC.
const DefaultRPCEndpoint = "https://api.mainnet-beta.solana.com"

// DefaultArtifactBaseURL serves the published circuit artifacts.
const DefaultArtifactBaseURL = "https://blockdrive-circuits.r2.cloudflarestorage.com/preimage-v1"

type Config struct {
	RPCEndpoint      string        `yaml:"rpcEndpoint"`
	ProgramID        string        `yaml:"programId"`
	Gateways         []string      `yaml:"gateways"`
	ProofStoreURL    string        `yaml:"proofStoreUrl"`
	ArtifactBaseURL  string        `yaml:"artifactBaseUrl"`
	ArtifactProbeTTL time.Duration `yaml:"artifactProbeTtl"`
	KeystorePath     string        `yaml:"keystorePath"`
}

func DefaultConfig() Config {
	return Config{
		RPCEndpoint:      DefaultRPCEndpoint,
		ProgramID:        ledger.DefaultProgramID,
		Gateways:         append([]string(nil), storage.DefaultGateways...),
		ProofStoreURL:    storage.DefaultProofStoreURL,
		ArtifactBaseURL:  DefaultArtifactBaseURL,
		ArtifactProbeTTL: time.Minute,
		KeystorePath:     defaultKeystorePath(),
	}
}

// LoadFromPath reads the first readable candidate file and merges it over the
// defaults. A missing or unparsable file falls back to defaults; environment
// overrides always apply last.
func LoadFromPath(configPath string) Config {
	cfg := DefaultConfig()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"blockdrive.yaml",
			"configs/blockdrive.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}

		merged := cfg
		Merge(&merged, parsed)
		ApplyEnvOverrides(&merged)
		return merged
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

func Merge(dst *Config, src Config) {
	if src.RPCEndpoint != "" {
		dst.RPCEndpoint = src.RPCEndpoint
	}
	if src.ProgramID != "" {
		dst.ProgramID = src.ProgramID
	}
	if src.Gateways != nil {
		dst.Gateways = src.Gateways
	}
	if src.ProofStoreURL != "" {
		dst.ProofStoreURL = src.ProofStoreURL
	}
	if src.ArtifactBaseURL != "" {
		dst.ArtifactBaseURL = src.ArtifactBaseURL
	}
	if src.ArtifactProbeTTL != 0 {
		dst.ArtifactProbeTTL = src.ArtifactProbeTTL
	}
	if src.KeystorePath != "" {
		dst.KeystorePath = src.KeystorePath
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if rpc := strings.TrimSpace(os.Getenv("BLOCKDRIVE_RPC_ENDPOINT")); rpc != "" {
		cfg.RPCEndpoint = rpc
	}
	if program := strings.TrimSpace(os.Getenv("BLOCKDRIVE_PROGRAM_ID")); program != "" {
		cfg.ProgramID = program
	}
	if gateways := strings.TrimSpace(os.Getenv("BLOCKDRIVE_GATEWAYS")); gateways != "" {
		parts := strings.Split(gateways, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			cfg.Gateways = out
		}
	}
	if store := strings.TrimSpace(os.Getenv("BLOCKDRIVE_PROOF_STORE")); store != "" {
		cfg.ProofStoreURL = store
	}
	if artifacts := strings.TrimSpace(os.Getenv("BLOCKDRIVE_ARTIFACT_BASE")); artifacts != "" {
		cfg.ArtifactBaseURL = artifacts
	}
	if path := strings.TrimSpace(os.Getenv("BLOCKDRIVE_KEYSTORE")); path != "" {
		cfg.KeystorePath = path
	}
}

func defaultKeystorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "blockdrive-keys.enc"
	}
	return home + "/.blockdrive/keys.enc"
}
