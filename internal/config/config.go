package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"adhoc_rdv/internal/dataType"
	"adhoc_rdv/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "RDV_"

type PeerConfig struct {
	ID          string `yaml:"id" validate:"required"`
	Address     string `yaml:"address" validate:"omitempty,url"`
	Host        string `yaml:"host"`
	QUICAddress string `yaml:"quic_address" validate:"omitempty,hostname_port"`
	Group       string `yaml:"group"`
	SameGroup   *bool  `yaml:"same_group"`
}

type PropagationConfig struct {
	MaxTTL           int           `yaml:"max_ttl" validate:"gte=1,lte=16"`
	DedupRetention   time.Duration `yaml:"dedup_retention" validate:"gte=1s"`
	DedupShards      int           `yaml:"dedup_shards" validate:"gte=1"`
	DedupSoftLimit   int           `yaml:"dedup_soft_limit" validate:"gte=0"`
	DedupCapacity    int           `yaml:"dedup_capacity" validate:"gte=0"`
	SweepInterval    time.Duration `yaml:"sweep_interval" validate:"gte=100ms"`
	MaxInflightSends int           `yaml:"max_inflight_sends" validate:"gte=1"`
	SendTimeout      time.Duration `yaml:"send_timeout" validate:"gte=10ms"`
	PeerCooldown     time.Duration `yaml:"peer_cooldown" validate:"gte=0"`
}

type InboundConfig struct {
	AllowCIDRs       []string      `yaml:"allow_cidrs" validate:"dive,cidr"`
	InboundRateLimit []string      `yaml:"inbound_rate_limit"`
	MaxMessageAge    time.Duration `yaml:"max_message_age" validate:"gte=0"`
	MaxClockSkew     time.Duration `yaml:"max_clock_skew" validate:"gte=0"`
	RequireKnownPeer bool          `yaml:"require_known_peer"`
}

type MainConfig struct {
	Port         string            `yaml:"port" validate:"required,numeric"`
	WebPath      string            `yaml:"web_path" validate:"required,startswith=/"`
	LogPath      string            `yaml:"log_path" validate:"required"`
	LogLevel     string            `yaml:"log_level" validate:"oneof=debug info warn error"`
	NodeName     string            `yaml:"node_name" validate:"required"`
	GroupID      string            `yaml:"group_id"`
	GlobalSecret string            `yaml:"global_secret"`
	Transport    string            `yaml:"transport" validate:"oneof=http quic"`
	QUICListen   string            `yaml:"quic_listen" validate:"omitempty,hostname_port"`
	Propagation  PropagationConfig `yaml:"propagation"`
	Inbound      InboundConfig     `yaml:"inbound"`
	Peers        []PeerConfig      `yaml:"peers" validate:"dive"`

	// parsed from Inbound.InboundRateLimit
	RateLimits []dataType.RateLimit `yaml:"-"`
}

func DefaultConfig() MainConfig {
	return MainConfig{
		Port:      "25580",
		WebPath:   "/rdv",
		LogPath:   "/www/adhoc_rdv/log/",
		LogLevel:  "info",
		NodeName:  "adhoc-rdv",
		Transport: "http",
		Propagation: PropagationConfig{
			MaxTTL:           2,
			DedupRetention:   dataType.DefaultSeenRetention,
			DedupShards:      dataType.DefaultSeenShards,
			DedupSoftLimit:   50000,
			DedupCapacity:    200000,
			SweepInterval:    10 * time.Second,
			MaxInflightSends: 256,
			SendTimeout:      5 * time.Second,
			PeerCooldown:     10 * time.Second,
		},
		Inbound: InboundConfig{
			InboundRateLimit: []string{"300/10s"},
			MaxMessageAge:    2 * time.Minute,
			MaxClockSkew:     30 * time.Second,
			RequireKnownPeer: true,
		},
	}
}

// LoadMainConfig reads <basePath>/config/rdv.yml over the defaults, applies
// RDV_* environment overrides (a .env file in basePath or the working
// directory is loaded first) and validates the result. A missing file is not
// an error.
func LoadMainConfig(basePath string) (*MainConfig, error) {
	if basePath == "" {
		exePath, err := os.Executable()
		if err != nil {
			return nil, err
		}
		basePath = filepath.Dir(exePath)
	}

	cfg := DefaultConfig()
	configPath := filepath.Join(basePath, "config", "rdv.yml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", configPath, err)
	}

	loadDotEnv(filepath.Join(basePath, ".env"))
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv never overrides variables already set in the process.
func loadDotEnv(paths ...string) {
	for _, p := range append(paths, ".env") {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func (c *MainConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]struct{}, len(c.Peers))
	for _, p := range c.Peers {
		if p.ID == c.NodeName {
			return fmt.Errorf("invalid config: peer %q is this node", p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("invalid config: duplicate peer %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if c.Transport == "http" && p.Address == "" {
			return fmt.Errorf("invalid config: peer %q has no address", p.ID)
		}
		if c.Transport == "quic" && p.QUICAddress == "" {
			return fmt.Errorf("invalid config: peer %q has no quic_address", p.ID)
		}
	}
	if c.Transport == "quic" && c.QUICListen == "" {
		return errors.New("invalid config: transport quic needs quic_listen")
	}
	c.RateLimits = c.RateLimits[:0]
	for _, s := range c.Inbound.InboundRateLimit {
		rl, err := utils.ParseRate(s)
		if err != nil {
			return fmt.Errorf("invalid config: inbound_rate_limit: %w", err)
		}
		c.RateLimits = append(c.RateLimits, rl)
	}
	return nil
}

// Neighbors converts the peer list for the neighbor table. A peer is in this
// node's group when its group matches group_id, unless same_group says
// otherwise.
func (c *MainConfig) Neighbors() []dataType.Neighbor {
	out := make([]dataType.Neighbor, 0, len(c.Peers))
	for _, p := range c.Peers {
		same := p.Group == c.GroupID
		if p.SameGroup != nil {
			same = *p.SameGroup
		}
		out = append(out, dataType.Neighbor{
			ID:          p.ID,
			Address:     strings.TrimRight(p.Address, "/"),
			Host:        p.Host,
			QUICAddress: p.QUICAddress,
			SameGroup:   same,
		})
	}
	return out
}

// AllowedNets parses allow_cidrs. Validation has already checked the syntax.
func (c *MainConfig) AllowedNets() *dataType.CIDRSet {
	set := dataType.NewCIDRSet()
	for _, s := range c.Inbound.AllowCIDRs {
		if _, ipNet, err := net.ParseCIDR(s); err == nil {
			set.Add(ipNet)
		}
	}
	return set
}

func applyEnv(c *MainConfig) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("WEB_PATH", &c.WebPath)
	str("LOG_PATH", &c.LogPath)
	str("LOG_LEVEL", &c.LogLevel)
	str("NODE_NAME", &c.NodeName)
	str("GROUP_ID", &c.GroupID)
	str("GLOBAL_SECRET", &c.GlobalSecret)
	str("TRANSPORT", &c.Transport)
	str("QUIC_LISTEN", &c.QUICListen)

	if v, ok := os.LookupEnv(envPrefix + "MAX_TTL"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_TTL: %w", envPrefix, err)
		}
		c.Propagation.MaxTTL = n
	}
	if v, ok := os.LookupEnv(envPrefix + "MAX_INFLIGHT_SENDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_INFLIGHT_SENDS: %w", envPrefix, err)
		}
		c.Propagation.MaxInflightSends = n
	}

	durations := map[string]*time.Duration{
		"DEDUP_RETENTION": &c.Propagation.DedupRetention,
		"SEND_TIMEOUT":    &c.Propagation.SendTimeout,
		"PEER_COOLDOWN":   &c.Propagation.PeerCooldown,
		"MAX_MESSAGE_AGE": &c.Inbound.MaxMessageAge,
		"MAX_CLOCK_SKEW":  &c.Inbound.MaxClockSkew,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = d
	}
	return nil
}
