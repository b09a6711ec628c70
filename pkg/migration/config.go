package migration

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"

	"github.com/centrifuge/claims-migration/pkg/ledger"
	"github.com/centrifuge/claims-migration/pkg/signer"
	"github.com/centrifuge/claims-migration/pkg/storagekey"
)

const (
	KindValue = "value"
	KindMap   = "map"
)

type Config struct {
	Source SourceCall  `yaml:"source"`
	Target TargetItem  `yaml:"target"`
	Admin  StorageItem `yaml:"admin"`

	SS58Format    uint8         `yaml:"ss58_format"`
	Timeout       time.Duration `yaml:"timeout"`
	WatchTimeout  time.Duration `yaml:"watch_timeout"`
	WaitFinalized bool          `yaml:"wait_finalized"`
	Concurrency   int           `yaml:"concurrency"`
	SubmitRate    float64       `yaml:"submit_rate"`
	DryRun        bool          `yaml:"dry_run"`
	AllowDevSeeds bool          `yaml:"allow_dev_seeds"`
}

// SourceCall identifies the extrinsics carrying digests on the source ledger.
type SourceCall struct {
	Module     string `yaml:"module"`
	Method     string `yaml:"method"`
	DigestSize int    `yaml:"digest_size"`
}

// TargetItem is where digests are written on the target ledger. A value
// item stores the digest itself; a map item stores Value under the
// digest, hashed with Hasher.
type TargetItem struct {
	Module string `yaml:"module"`
	Item   string `yaml:"item"`
	Kind   string `yaml:"kind"`
	Hasher string `yaml:"hasher"`
	Value  string `yaml:"value"`
}

type StorageItem struct {
	Module string `yaml:"module"`
	Item   string `yaml:"item"`
}

func DefaultConfig() Config {
	return Config{
		Source: SourceCall{Module: "RadClaims", Method: "store_root_hash", DigestSize: 32},
		Target: TargetItem{Module: "Claims", Item: "RootHash", Kind: KindValue},
		Admin:  StorageItem{Module: "Sudo", Item: "Key"},

		SS58Format:   signer.DefaultNetwork,
		Timeout:      ledger.DefaultTimeout,
		WatchTimeout: ledger.DefaultWatchTimeout,
		Concurrency:  1,
	}
}

// ParseConfig parses a YAML document over DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadConfig reads and parses the config file at path. An empty path
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		config := DefaultConfig()
		return &config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Source.Module == "" || c.Source.Method == "" {
		return errors.New("missing source module or method")
	}
	if c.Source.DigestSize <= 0 {
		return errors.New("digest size must be positive")
	}
	if c.Target.Module == "" || c.Target.Item == "" {
		return errors.New("missing target module or item")
	}
	switch c.Target.Kind {
	case KindValue:
	case KindMap:
		if _, err := c.Target.hasher(); err != nil {
			return err
		}
		if _, err := c.Target.value(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown target kind %q", c.Target.Kind)
	}
	if c.Admin.Module == "" || c.Admin.Item == "" {
		return errors.New("missing admin module or item")
	}
	if c.Timeout <= 0 || c.WatchTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.Concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}
	if c.SubmitRate < 0 {
		return errors.New("submit rate must not be negative")
	}
	return nil
}

func (t TargetItem) hasher() (storagekey.Hasher, error) {
	switch t.Hasher {
	case "blake2_128_concat":
		return storagekey.Blake2_128Concat, nil
	case "twox64_concat":
		return storagekey.Twox64Concat, nil
	case "identity":
		return storagekey.Identity, nil
	default:
		return nil, fmt.Errorf("unknown target hasher %q", t.Hasher)
	}
}

func (t TargetItem) value() ([]byte, error) {
	if t.Value == "" {
		// SCALE-encoded `true`.
		return []byte{0x01}, nil
	}
	value, err := hexutil.Decode(t.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid target value: %w", err)
	}
	return value, nil
}

// storageItem returns the raw key/value pair that records digest.
func (t TargetItem) storageItem(digest []byte) (ledger.StorageItem, error) {
	if t.Kind != KindMap {
		return ledger.StorageItem{Key: storagekey.Prefix(t.Module, t.Item), Value: digest}, nil
	}
	hasher, err := t.hasher()
	if err != nil {
		return ledger.StorageItem{}, err
	}
	value, err := t.value()
	if err != nil {
		return ledger.StorageItem{}, err
	}
	return ledger.StorageItem{Key: storagekey.MapKey(t.Module, t.Item, hasher, digest), Value: value}, nil
}
