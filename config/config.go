package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// Config es la configuración completa del bot.
type Config struct {
	Momentum  MomentumConfig  `yaml:"momentum"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// MomentumConfig son los parámetros de la estrategia más el intervalo de vela.
type MomentumConfig struct {
	domain.MomentumParams `yaml:",inline"`
	Interval              string `yaml:"interval"`
}

// ScannerConfig controla el universo y la cadencia del motor live.
type ScannerConfig struct {
	IntervalSeconds        int      `yaml:"interval_seconds"`
	MonitorIntervalSeconds int      `yaml:"monitor_interval_seconds"`
	Symbols                []string `yaml:"symbols"`          // universo explícito
	QuoteAsset             string   `yaml:"quote_asset"`      // universo dinámico
	MinQuoteVolume         float64  `yaml:"min_quote_volume"` // volumen 24h mínimo en quote asset
	MaxSymbols             int      `yaml:"max_symbols"`
	Workers                int      `yaml:"workers"` // 0 = NumCPU*2
	MaxOpenPositions       int      `yaml:"max_open_positions"`

	// Pausa de entradas por pérdidas; 0 desactiva cada regla.
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	LossCooldownMinutes  int     `yaml:"loss_cooldown_minutes"`
	MaxRealizedLoss      float64 `yaml:"max_realized_loss"` // en $, positivo
}

// ExchangeConfig contiene el endpoint y las credenciales de Binance.
type ExchangeConfig struct {
	BaseURL               string  `yaml:"base_url"`
	APIKey                string  `yaml:"api_key"`
	APISecret             string  `yaml:"api_secret"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	MaxRetries            int     `yaml:"max_retries"`
	Paper                 bool    `yaml:"paper"`
	PaperBalance          float64 `yaml:"paper_balance"`
	PaperFee              float64 `yaml:"paper_fee"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres
	DSN    string `yaml:"dsn"`    // ruta SQLite (o ":memory:") o URL de PostgreSQL
}

// CacheConfig configura la caché Redis de velas. RedisAddr vacío la desactiva.
type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
}

// ArchiveConfig configura el archivo histórico de velas en ClickHouse.
type ArchiveConfig struct {
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

// OptimizerConfig configura el sweep de parámetros.
type OptimizerConfig struct {
	Workers int         `yaml:"workers"`
	TopN    int         `yaml:"top_n"`
	Capital float64     `yaml:"capital"`
	Ranges  RangeConfig `yaml:"ranges"`
}

// RangeConfig lista los valores a probar por parámetro. Tiene los mismos
// campos que optimizer.Ranges para poder convertir directamente.
type RangeConfig struct {
	MinPrice1h        []float64 `yaml:"min_price_1h"`
	MinVolumeRatio    []float64 `yaml:"min_volume_ratio"`
	BreakoutThreshold []float64 `yaml:"breakout_threshold"`
	MinMomentumScore  []float64 `yaml:"min_momentum_score"`
	StopLossPct       []float64 `yaml:"stop_loss_pct"`
	TakeProfitPct     []float64 `yaml:"take_profit_pct"`
	TrailingStopPct   []float64 `yaml:"trailing_stop_pct"`
	MaxPositionValue  []float64 `yaml:"max_position_value"`
	SignalTTLHours    []float64 `yaml:"signal_ttl_hours"`
	LookbackCandles   []int     `yaml:"lookback_candles"`
}

// MetricsConfig: Addr vacío desactiva el servidor de métricas.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// MomentumConfig construye el config validado de la estrategia. Se llama una
// vez al arrancar y el valor se pasa a cada componente.
func (c *Config) MomentumConfig() (domain.MomentumConfig, error) {
	mc, err := domain.NewMomentumConfig(c.Momentum.MomentumParams)
	if err != nil {
		return domain.MomentumConfig{}, fmt.Errorf("config.MomentumConfig: %w", err)
	}
	return mc, nil
}

// ScanInterval devuelve el intervalo de escaneo como time.Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Scanner.IntervalSeconds) * time.Second
}

func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Scanner.MonitorIntervalSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Exchange.RequestTimeoutSeconds) * time.Second
}

// LossBreaker construye el breaker de entradas, o nil si está desactivado.
func (c *Config) LossBreaker() *domain.LossBreaker {
	s := c.Scanner
	if s.MaxConsecutiveLosses <= 0 && s.MaxRealizedLoss <= 0 {
		return nil
	}
	return &domain.LossBreaker{
		MaxLosses:       s.MaxConsecutiveLosses,
		Cooldown:        time.Duration(s.LossCooldownMinutes) * time.Minute,
		MaxRealizedLoss: -math.Abs(s.MaxRealizedLoss),
	}
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.Exchange.BaseURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			cfg.Storage.Driver = "postgres"
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Archive.ClickHouseDSN = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("PAPER_TRADING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Exchange.Paper = b
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Los parámetros de la estrategia no tienen default: un config incompleto
// falla en MomentumConfig().
func setDefaults(cfg *Config) {
	if cfg.Momentum.Interval == "" {
		cfg.Momentum.Interval = domain.DefaultInterval
	}
	if cfg.Momentum.LookbackCandles <= 0 {
		cfg.Momentum.LookbackCandles = domain.DefaultLookbackCandles
	}
	if cfg.Momentum.CapitalFraction <= 0 {
		cfg.Momentum.CapitalFraction = domain.DefaultCapitalFraction
	}
	if cfg.Scanner.IntervalSeconds <= 0 {
		cfg.Scanner.IntervalSeconds = 300
	}
	if cfg.Scanner.MonitorIntervalSeconds <= 0 {
		cfg.Scanner.MonitorIntervalSeconds = 30
	}
	if len(cfg.Scanner.Symbols) == 0 && cfg.Scanner.QuoteAsset == "" {
		cfg.Scanner.QuoteAsset = "USDT"
	}
	if cfg.Scanner.MaxConsecutiveLosses > 0 && cfg.Scanner.LossCooldownMinutes <= 0 {
		cfg.Scanner.LossCooldownMinutes = 60
	}
	if cfg.Exchange.BaseURL == "" {
		cfg.Exchange.BaseURL = "https://api.binance.com"
	}
	if cfg.Exchange.RequestTimeoutSeconds <= 0 {
		cfg.Exchange.RequestTimeoutSeconds = 10
	}
	if cfg.Exchange.MaxRetries <= 0 {
		cfg.Exchange.MaxRetries = 3
	}
	if cfg.Exchange.PaperBalance <= 0 {
		cfg.Exchange.PaperBalance = 10_000
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "momentumbot.db"
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 60
	}
	if cfg.Optimizer.TopN <= 0 {
		cfg.Optimizer.TopN = 10
	}
	if cfg.Optimizer.Capital <= 0 {
		cfg.Optimizer.Capital = 10_000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
