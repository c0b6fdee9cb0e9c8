package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// 默认端点
const (
	DefaultIdentityURL = "https://identitysso-cert.betfair.it/api/certlogin"
	DefaultBettingURL  = "https://api.betfair.com/exchange/betting/json-rpc/v1"
	DefaultAccountURL  = "https://api.betfair.com/exchange/account/json-rpc/v1"

	// 持久卷目录，存在时优先使用
	VolumeDataDir = "/data"
	// 本地数据目录
	LocalDataDir = "App_Data"
)

// DefaultSessionExpiredMarkers 会话过期启发式标记（v1）。
// TOKEN / SESSION 过宽，可能把普通业务错误误判为过期，保留以兼容现有行为。
var DefaultSessionExpiredMarkers = []string{
	"INVALID_SESSION",
	"NO_SESSION",
	"SESSION_EXPIRED",
	"EXPIRED",
	"UNAUTHORIZED",
	"NOT_AUTHORIZED",
	"NOT AUTHORIZED",
	"TOKEN",
	"SESSION",
	"ANGX-0003",
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string // 日志级别
	File       string // 日志文件（可选）
	MaxSize    int    // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
}

// SecretsConfig 密钥配置：KeyringKey 优先，其次 Passphrase，都为空时使用数据目录中的密钥环
type SecretsConfig struct {
	KeyringKey string // hex 或 base64 编码的 32 字节根密钥
	Passphrase string // Argon2id 派生根密钥
}

// ExchangeConfig 交易所接口配置
type ExchangeConfig struct {
	IdentityURL           string
	BettingURL            string
	AccountURL            string
	HTTPTimeoutSeconds    int
	SessionExpiredMarkers []string
	CoalesceRelogin       bool    // 并发 re-login 共享同一次结果
	InvalidateOnChange    bool    // 账户变更时清理证书/客户端缓存
	RPCRatePerSecond      float64 // 每账户 RPC 限速，<=0 不限速
	ClearedPageSize       int
	ClearedMaxPages       int
}

// AccountSeed 静态配置的账户（显示名 + app key）
type AccountSeed struct {
	DisplayName string
	AppKey      string
}

// Config 应用配置
type Config struct {
	DataDir  string
	Log      LogConfig
	Secrets  SecretsConfig
	Exchange ExchangeConfig
	Accounts []AccountSeed
}

var globalConfig *Config
var configFilePath string

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configFilePath
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
	Log     struct {
		Level      string `yaml:"level" json:"level"`
		File       string `yaml:"file" json:"file"`
		MaxSize    int    `yaml:"max_size" json:"max_size"`
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAge     int    `yaml:"max_age" json:"max_age"`
		Compress   *bool  `yaml:"compress" json:"compress"`
	} `yaml:"log" json:"log"`
	Secrets struct {
		KeyringKey string `yaml:"keyring_key" json:"keyring_key"`
		Passphrase string `yaml:"passphrase" json:"passphrase"`
	} `yaml:"secrets" json:"secrets"`
	Exchange struct {
		IdentityURL           string   `yaml:"identity_url" json:"identity_url"`
		BettingURL            string   `yaml:"betting_url" json:"betting_url"`
		AccountURL            string   `yaml:"account_url" json:"account_url"`
		HTTPTimeoutSeconds    int      `yaml:"http_timeout_seconds" json:"http_timeout_seconds"`
		SessionExpiredMarkers []string `yaml:"session_expired_markers" json:"session_expired_markers"`
		CoalesceRelogin       bool     `yaml:"coalesce_relogin" json:"coalesce_relogin"`
		InvalidateOnChange    bool     `yaml:"invalidate_on_change" json:"invalidate_on_change"`
		RPCRatePerSecond      float64  `yaml:"rpc_rate_per_second" json:"rpc_rate_per_second"`
		ClearedPageSize       int      `yaml:"cleared_page_size" json:"cleared_page_size"`
		ClearedMaxPages       int      `yaml:"cleared_max_pages" json:"cleared_max_pages"`
	} `yaml:"exchange" json:"exchange"`
	Accounts []struct {
		DisplayName string `yaml:"display_name" json:"display_name"`
		AppKey      string `yaml:"app_key" json:"app_key"`
	} `yaml:"accounts" json:"accounts"`
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile 从指定文件加载配置；filePath 为空时只使用环境变量和默认值。
// 优先级：环境变量 > 配置文件 > 默认值
func LoadFromFile(filePath string) (*Config, error) {
	if globalConfig != nil && configFilePath == filePath {
		return globalConfig, nil
	}

	configFile := &ConfigFile{}
	if filePath != "" {
		cf, err := loadConfigFile(filePath)
		if err != nil {
			return nil, err
		}
		configFile = cf
	}

	compress := true
	if configFile.Log.Compress != nil {
		compress = *configFile.Log.Compress
	}

	config := &Config{
		DataDir: getEnv("BF_DATA_DIR", configFile.DataDir),
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", orDefault(configFile.Log.Level, "info")),
			File:       getEnv("LOG_FILE", configFile.Log.File),
			MaxSize:    parseIntEnv("LOG_MAX_SIZE", orDefaultInt(configFile.Log.MaxSize, 100)),
			MaxBackups: parseIntEnv("LOG_MAX_BACKUPS", orDefaultInt(configFile.Log.MaxBackups, 3)),
			MaxAge:     parseIntEnv("LOG_MAX_AGE", orDefaultInt(configFile.Log.MaxAge, 7)),
			Compress:   parseBoolEnv("LOG_COMPRESS", compress),
		},
		Secrets: SecretsConfig{
			KeyringKey: getEnv("BF_KEYRING_KEY", configFile.Secrets.KeyringKey),
			Passphrase: getEnv("BF_PASSPHRASE", configFile.Secrets.Passphrase),
		},
		Exchange: ExchangeConfig{
			IdentityURL:           getEnv("BF_IDENTITY_URL", orDefault(configFile.Exchange.IdentityURL, DefaultIdentityURL)),
			BettingURL:            getEnv("BF_BETTING_URL", orDefault(configFile.Exchange.BettingURL, DefaultBettingURL)),
			AccountURL:            getEnv("BF_ACCOUNT_URL", orDefault(configFile.Exchange.AccountURL, DefaultAccountURL)),
			HTTPTimeoutSeconds:    parseIntEnv("BF_HTTP_TIMEOUT_SECONDS", orDefaultInt(configFile.Exchange.HTTPTimeoutSeconds, 30)),
			SessionExpiredMarkers: configFile.Exchange.SessionExpiredMarkers,
			CoalesceRelogin:       parseBoolEnv("BF_COALESCE_RELOGIN", configFile.Exchange.CoalesceRelogin),
			InvalidateOnChange:    parseBoolEnv("BF_INVALIDATE_ON_CHANGE", configFile.Exchange.InvalidateOnChange),
			RPCRatePerSecond:      parseFloatEnv("BF_RPC_RATE_PER_SECOND", configFile.Exchange.RPCRatePerSecond),
			ClearedPageSize:       parseIntEnv("BF_CLEARED_PAGE_SIZE", orDefaultInt(configFile.Exchange.ClearedPageSize, 1000)),
			ClearedMaxPages:       parseIntEnv("BF_CLEARED_MAX_PAGES", orDefaultInt(configFile.Exchange.ClearedMaxPages, 50)),
		},
	}

	if markers := parseList(getEnv("BF_SESSION_EXPIRED_MARKERS", "")); len(markers) > 0 {
		config.Exchange.SessionExpiredMarkers = markers
	}
	if len(config.Exchange.SessionExpiredMarkers) == 0 {
		config.Exchange.SessionExpiredMarkers = append([]string(nil), DefaultSessionExpiredMarkers...)
	}

	for _, a := range configFile.Accounts {
		config.Accounts = append(config.Accounts, AccountSeed{DisplayName: a.DisplayName, AppKey: a.AppKey})
	}
	// BF_ACCOUNTS=name:appkey,name2:appkey2 追加到配置文件中的账户之后
	config.Accounts = append(config.Accounts, parseAccountList(getEnv("BF_ACCOUNTS", ""))...)

	if config.DataDir == "" {
		config.DataDir = ResolveDataDir()
	}

	globalConfig = config
	configFilePath = filePath
	return config, nil
}

// ResolveDataDir 持久卷存在时使用 /data，否则使用本地 App_Data
func ResolveDataDir() string {
	if info, err := os.Stat(VolumeDataDir); err == nil && info.IsDir() {
		return VolumeDataDir
	}
	return LocalDataDir
}

// DiagnosticsFile 诊断日志路径
func (c *Config) DiagnosticsFile() string {
	return filepath.Join(c.DataDir, "logs", "betfair-errors.log")
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}

	return &configFile, nil
}

// Get 获取全局配置（如果已加载）
func Get() *Config {
	return globalConfig
}

// Reset 清除全局配置缓存（测试用）
func Reset() {
	globalConfig = nil
	configFilePath = ""
}

// Validate 验证配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir 未配置")
	}
	for name, raw := range map[string]string{
		"exchange.identity_url": c.Exchange.IdentityURL,
		"exchange.betting_url":  c.Exchange.BettingURL,
		"exchange.account_url":  c.Exchange.AccountURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
			return fmt.Errorf("%s 不是有效的 URL: %q", name, raw)
		}
	}
	if c.Exchange.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("exchange.http_timeout_seconds 必须大于 0")
	}
	if c.Exchange.ClearedPageSize <= 0 || c.Exchange.ClearedPageSize > 1000 {
		return fmt.Errorf("exchange.cleared_page_size 必须在 1 到 1000 之间")
	}
	if c.Exchange.ClearedMaxPages <= 0 {
		return fmt.Errorf("exchange.cleared_max_pages 必须大于 0")
	}
	if c.Exchange.RPCRatePerSecond < 0 {
		return fmt.Errorf("exchange.rpc_rate_per_second 不能为负数")
	}
	if len(c.Exchange.SessionExpiredMarkers) == 0 {
		return fmt.Errorf("exchange.session_expired_markers 不能为空")
	}

	seen := make(map[string]struct{}, len(c.Accounts))
	for i, a := range c.Accounts {
		name := strings.ToLower(strings.TrimSpace(a.DisplayName))
		if name == "" {
			return fmt.Errorf("accounts[%d].display_name 不能为空", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("accounts[%d].display_name 重复: %s", i, a.DisplayName)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// parseList 解析逗号分隔列表
func parseList(str string) []string {
	if str == "" {
		return nil
	}
	parts := strings.Split(str, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseAccountList 解析 name:appkey 列表
func parseAccountList(str string) []AccountSeed {
	var out []AccountSeed
	for _, item := range parseList(str) {
		name, appKey, _ := strings.Cut(item, ":")
		out = append(out, AccountSeed{
			DisplayName: strings.TrimSpace(name),
			AppKey:      strings.TrimSpace(appKey),
		})
	}
	return out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
