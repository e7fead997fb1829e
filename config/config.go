package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del trader.
type Config struct {
	Binance    BinanceConfig    `yaml:"binance"`
	Chainlink  ChainlinkConfig  `yaml:"chainlink"`
	Polymarket PolymarketConfig `yaml:"polymarket"`
	Model      ModelConfig      `yaml:"model"`
	Trading    TradingConfig    `yaml:"trading"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// BinanceConfig controla el feed primario de velas.
type BinanceConfig struct {
	StreamBase string `yaml:"stream_base"` // base del websocket de klines
	RESTBase   string `yaml:"rest_base"`   // base REST para el seed de histórico
	Symbol     string `yaml:"symbol"`
}

// ChainlinkConfig controla el precio de referencia on-chain (opcional).
type ChainlinkConfig struct {
	Enabled     bool   `yaml:"enabled"`
	RPCURL      string `yaml:"rpc_url"`
	Aggregator  string `yaml:"aggregator"` // proxy BTC/USD en Polygon si está vacío
	PollSeconds int    `yaml:"poll_seconds"`
}

// PolymarketConfig contiene los base URLs y credenciales de Polymarket.
// PrivateKey solo se acepta por variable de entorno, nunca por YAML.
type PolymarketConfig struct {
	CLOBBase   string `yaml:"clob_base"`
	GammaBase  string `yaml:"gamma_base"`
	RPCURL     string `yaml:"rpc_url"` // RPC de Polygon para balance USDC
	SlugLayout string `yaml:"slug_layout"`
	FixedSlug  string `yaml:"fixed_slug"` // fija un mercado concreto (debug)
	PrivateKey string `yaml:"-"`
}

// ModelConfig localiza el modelo ONNX y su manifiesto de features.
type ModelConfig struct {
	Path            string  `yaml:"path"`
	LibraryPath     string  `yaml:"library_path"` // ruta a libonnxruntime.so
	ManifestPath    string  `yaml:"manifest_path"`
	LabelFallbackUp float64 `yaml:"label_fallback_up"` // prob asignada al label 1 si falta el tensor de probabilidad
}

// TradingConfig controla sizing, gates de seguridad y la ventana de disparo.
type TradingConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	EdgeMargin          float64 `yaml:"edge_margin"`
	VolatilityFloor     float64 `yaml:"volatility_floor"`
	MaxAPIErrors        int     `yaml:"max_api_errors"`
	KellyFraction       float64 `yaml:"kelly_fraction"`
	MaxStakeFraction    float64 `yaml:"max_stake_fraction"`
	MaxSlippage         float64 `yaml:"max_slippage"`
	MaxStalenessSeconds int     `yaml:"max_staleness_seconds"`
	HistoryCandles      int     `yaml:"history_candles"` // velas de 15m para el seed
	FireFromSeconds     int     `yaml:"fire_from_seconds"`
	FireUntilSeconds    int     `yaml:"fire_until_seconds"`
	StatsEvery          int     `yaml:"stats_every"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
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

// MaxStaleness devuelve la edad máxima del feed como time.Duration.
func (c *Config) MaxStaleness() time.Duration {
	return time.Duration(c.Trading.MaxStalenessSeconds) * time.Second
}

// FireFrom devuelve el inicio de la banda de disparo antes del cierre de ventana.
func (c *Config) FireFrom() time.Duration {
	return time.Duration(c.Trading.FireFromSeconds) * time.Second
}

// FireUntil devuelve el fin de la banda de disparo antes del cierre de ventana.
func (c *Config) FireUntil() time.Duration {
	return time.Duration(c.Trading.FireUntilSeconds) * time.Second
}

// ChainlinkPoll devuelve el intervalo de consulta al oráculo.
func (c *Config) ChainlinkPoll() time.Duration {
	return time.Duration(c.Chainlink.PollSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POLYMARKET_PRIVATE_KEY"); v != "" {
		cfg.Polymarket.PrivateKey = v
	}
	if v := os.Getenv("POLYGON_RPC_URL"); v != "" {
		cfg.Polymarket.RPCURL = v
		if cfg.Chainlink.RPCURL == "" {
			cfg.Chainlink.RPCURL = v
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Binance.StreamBase == "" {
		cfg.Binance.StreamBase = "wss://stream.binance.com:9443/ws"
	}
	if cfg.Binance.RESTBase == "" {
		cfg.Binance.RESTBase = "https://api.binance.com"
	}
	if cfg.Binance.Symbol == "" {
		cfg.Binance.Symbol = "BTCUSDT"
	}
	if cfg.Chainlink.PollSeconds <= 0 {
		cfg.Chainlink.PollSeconds = 30
	}
	if cfg.Polymarket.CLOBBase == "" {
		cfg.Polymarket.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.Polymarket.GammaBase == "" {
		cfg.Polymarket.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Model.Path == "" {
		cfg.Model.Path = "model/model.onnx"
	}
	if cfg.Model.ManifestPath == "" {
		cfg.Model.ManifestPath = "model/metadata.json"
	}
	if cfg.Model.LabelFallbackUp <= 0 || cfg.Model.LabelFallbackUp >= 1 {
		cfg.Model.LabelFallbackUp = 0.55
	}
	if cfg.Trading.ConfidenceThreshold <= 0 {
		cfg.Trading.ConfidenceThreshold = 0.55
	}
	if cfg.Trading.EdgeMargin <= 0 {
		cfg.Trading.EdgeMargin = 0.02
	}
	if cfg.Trading.VolatilityFloor <= 0 {
		cfg.Trading.VolatilityFloor = 0.001
	}
	if cfg.Trading.MaxAPIErrors <= 0 {
		cfg.Trading.MaxAPIErrors = 5
	}
	if cfg.Trading.KellyFraction <= 0 {
		cfg.Trading.KellyFraction = 0.25
	}
	if cfg.Trading.MaxStakeFraction <= 0 {
		cfg.Trading.MaxStakeFraction = 0.10
	}
	if cfg.Trading.MaxSlippage <= 0 {
		cfg.Trading.MaxSlippage = 0.02
	}
	if cfg.Trading.MaxStalenessSeconds <= 0 {
		cfg.Trading.MaxStalenessSeconds = 90
	}
	if cfg.Trading.HistoryCandles <= 0 {
		cfg.Trading.HistoryCandles = 96
	}
	if cfg.Trading.FireFromSeconds <= 0 {
		cfg.Trading.FireFromSeconds = 60
	}
	if cfg.Trading.FireUntilSeconds <= 0 {
		cfg.Trading.FireUntilSeconds = 10
	}
	if cfg.Trading.StatsEvery <= 0 {
		cfg.Trading.StatsEvery = 4
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "trader.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
