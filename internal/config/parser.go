package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const envPrefix = "GROUPAGENT_"

// ParseConfig 解析 JSON 配置,填充默认值并校验
func ParseConfig(byteConfig []byte) (*Config, error) {
	cfg := Default()
	if err := json.Unmarshal(byteConfig, cfg); err != nil {
		return nil, err
	}
	return finish(cfg)
}

// LoadConfig 按扩展名选择 JSON、TOML 或 YAML 解析,随后应用 .env 和环境变量覆盖
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	// .env 不存在时忽略
	_ = godotenv.Load()
	if err := ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.fillDefaults()
	for _, dir := range []*string{&cfg.Rod.UserDataDir, &cfg.Chromedp.UserDataDir} {
		if *dir == "" {
			continue
		}
		absPath, err := filepath.Abs(*dir)
		if err != nil {
			return nil, err
		}
		*dir = absPath
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv 用环境变量覆盖常用的部署相关字段
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v := getenv(envPrefix + key)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = b
		return nil
	}
	integer := func(key string, dst *int) error {
		v := getenv(envPrefix + key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("BROWSER_BACKEND", &cfg.Browser.Backend)
	str("TARGET_URL", &cfg.Browser.TargetURL)
	str("ROD_CONTROL_URL", &cfg.Rod.ControlURL)
	str("CHROMEDP_REMOTE_URL", &cfg.Chromedp.RemoteURL)
	str("ES_ADDRESS", &cfg.Elasticsearch.Address)
	str("ES_USERNAME", &cfg.Elasticsearch.Username)
	str("ES_PASSWORD", &cfg.Elasticsearch.Password)
	str("BADGER_PATH", &cfg.Badger.Path)
	str("SERVER_HOST", &cfg.Server.Host)
	if err := boolean("ES_ENABLED", &cfg.Elasticsearch.Enabled); err != nil {
		return err
	}
	if err := boolean("HEADLESS", &cfg.Rod.Headless); err != nil {
		return err
	}
	if err := boolean("HEADLESS", &cfg.Chromedp.Headless); err != nil {
		return err
	}
	return integer("SERVER_PORT", &cfg.Server.Port)
}
