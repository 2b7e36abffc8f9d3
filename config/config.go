package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Bot        BotConfig        `yaml:"bot"`
	Kalshi     KalshiConfig     `yaml:"kalshi"`
	Feeds      FeedsConfig      `yaml:"feeds"`
	Strategies StrategiesConfig `yaml:"strategies"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// BotConfig controla los ciclos y el modo de ejecución.
type BotConfig struct {
	ScanIntervalSeconds    int     `yaml:"scan_interval_seconds"`
	MonitorIntervalSeconds int     `yaml:"monitor_interval_seconds"`
	InitialBankroll        float64 `yaml:"initial_bankroll"`
	PaperTrade             bool    `yaml:"paper_trade"`
	ConsoleTable           bool    `yaml:"console_table"`
}

// KalshiConfig contiene las credenciales y el base URL del exchange.
type KalshiConfig struct {
	BaseURL   string `yaml:"base_url"`
	AccessKey string `yaml:"access_key"`
	// Exactamente uno de los dos: secret HMAC en base64 o ruta a clave RSA PEM.
	APISecret      string `yaml:"api_secret"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// FeedsConfig contiene los base URLs de los feeds de referencia.
type FeedsConfig struct {
	CoinGeckoBase string `yaml:"coingecko_base"`
	NOAABase      string `yaml:"noaa_base"`
}

// StrategiesConfig agrupa los tunables por estrategia.
type StrategiesConfig struct {
	Bond struct {
		MinPrice  float64 `yaml:"min_price"`
		MaxHours  float64 `yaml:"max_hours"`
		MinVolume float64 `yaml:"min_volume"`
	} `yaml:"bond"`
	MarketMaking struct {
		MinSpread float64 `yaml:"min_spread"`
		MinVolume float64 `yaml:"min_volume"`
	} `yaml:"market_making"`
	BTC struct {
		Size      int     `yaml:"size"`
		MinVolume float64 `yaml:"min_volume"`
	} `yaml:"btc"`
	Weather struct {
		Size      int     `yaml:"size"`
		MinVolume float64 `yaml:"min_volume"`
	} `yaml:"weather"`
	News struct {
		Size int `yaml:"size"`
	} `yaml:"news"`
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

// Load carga la configuración desde el archivo YAML y el archivo .env si
// existe. Las variables de entorno sobreescriben el YAML: las credenciales
// nunca deberían vivir en el archivo.
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

// ScanInterval devuelve el intervalo del ciclo de scan.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Bot.ScanIntervalSeconds) * time.Second
}

// MonitorInterval devuelve el intervalo del ciclo de monitoreo.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Bot.MonitorIntervalSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KALSHI_BASE_URL"); v != "" {
		cfg.Kalshi.BaseURL = v
	}
	if v := os.Getenv("KALSHI_ACCESS_KEY"); v != "" {
		cfg.Kalshi.AccessKey = v
	}
	if v := os.Getenv("KALSHI_API_SECRET"); v != "" {
		cfg.Kalshi.APISecret = v
	}
	if v := os.Getenv("KALSHI_PRIVATE_KEY_PATH"); v != "" {
		cfg.Kalshi.PrivateKeyPath = v
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
	if cfg.Bot.ScanIntervalSeconds <= 0 {
		cfg.Bot.ScanIntervalSeconds = 60
	}
	if cfg.Bot.MonitorIntervalSeconds <= 0 {
		cfg.Bot.MonitorIntervalSeconds = 30
	}
	if cfg.Bot.InitialBankroll <= 0 {
		cfg.Bot.InitialBankroll = 1000
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "kalshibot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate comprueba que la configuración mínima para operar esté presente.
func (c *Config) Validate() error {
	if c.Bot.PaperTrade {
		return nil
	}
	if c.Kalshi.AccessKey == "" {
		return fmt.Errorf("config: kalshi access key is required for live trading")
	}
	if c.Kalshi.APISecret == "" && c.Kalshi.PrivateKeyPath == "" {
		return fmt.Errorf("config: either api_secret or private_key_path is required")
	}
	return nil
}
