package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath — путь к конфигурации по умолчанию.
const DefaultPath = "./production/conf/config.yml"

// Поддерживаемые tracking backends.
const (
	BackendMLflow   = "mlflow"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Имена таблиц.
const (
	TableProduct = "product"
	TableOrders  = "orders"
	TableSales   = "sales"
)

// Config — общий контекст pipeline.
type Config struct {
	// DataBasePath — корень данных (raw, cleaned, train, test).
	DataBasePath string `yaml:"data_base_path"`

	// ArtifactsPath — каталог артефактов стадий (pipelines, модель).
	ArtifactsPath string `yaml:"artifacts_path"`

	// Seed — seed генератора для воспроизводимого train/test split.
	Seed int64 `yaml:"seed"`

	// Raw и Cleaned — пути таблиц относительно DataBasePath.
	Raw     Tables `yaml:"raw"`
	Cleaned Tables `yaml:"cleaned"`

	Tracking Tracking     `yaml:"tracking"`
	Stages   StageOptions `yaml:"stages"`
	Events   Events       `yaml:"events"`
	Metrics  Metrics      `yaml:"metrics"`

	path string
}

// Tables — пути к файлам таблиц.
type Tables struct {
	Product string `yaml:"product"`
	Orders  string `yaml:"orders"`
	Sales   string `yaml:"sales"`
}

// Tracking — настройки experiment tracking.
type Tracking struct {
	Backend    string        `yaml:"backend"`
	URI        string        `yaml:"uri"`
	DSN        string        `yaml:"dsn"`
	Experiment string        `yaml:"experiment"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StageOptions — параметры, передаваемые в стадии.
type StageOptions struct {
	Cleaning           Options `yaml:"cleaning"`
	TrainingDatasets   Options `yaml:"training_datasets"`
	FeatureEngineering Options `yaml:"feature_engineering"`
	Training           Options `yaml:"training"`
	Scoring            Options `yaml:"scoring"`
}

// Events — настройки публикации событий.
type Events struct {
	RabbitMQURL string `yaml:"rabbitmq_url"`
}

// Metrics — настройки экспорта метрик.
type Metrics struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// Default возвращает конфигурацию со значениями по умолчанию.
func Default() *Config {
	return &Config{
		DataBasePath:  "data",
		ArtifactsPath: "artifacts",
		Seed:          42,
		Raw: Tables{
			Product: "raw/product.csv",
			Orders:  "raw/orders.csv",
			Sales:   "raw/sales.csv",
		},
		Cleaned: Tables{
			Product: "cleaned/product.csv",
			Orders:  "cleaned/orders.csv",
			Sales:   "cleaned/sales.csv",
		},
		Tracking: Tracking{
			Backend:    BackendMLflow,
			URI:        "http://127.0.0.1:8082",
			Experiment: "TAMLEP_MLFlow",
			Timeout:    30 * time.Second,
		},
		Stages: StageOptions{
			Cleaning:         Options{},
			TrainingDatasets: Options{"test_size": 0.2, "target": "unit_price"},
			FeatureEngineering: Options{
				"outliers": Options{"method": "mean", "drop": false},
			},
			Training: Options{},
			Scoring:  Options{},
		},
		Metrics: Metrics{
			Job: "salesprice",
		},
	}
}

// Load читает конфигурацию из YAML-файла, применяет переменные окружения
// и валидирует результат.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	// seed: 0 — допустимое значение, поэтому наличие ключа проверяется отдельно
	var seed struct {
		Seed *int64 `yaml:"seed"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.merge(&file)
	if seed.Seed != nil {
		cfg.Seed = *seed.Seed
	}
	cfg.applyEnv()
	cfg.path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv загружает переменные из .env файлов. Отсутствующие файлы пропускаются.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// merge переносит непустые значения из файла поверх значений по умолчанию.
func (c *Config) merge(f *Config) {
	if f.DataBasePath != "" {
		c.DataBasePath = f.DataBasePath
	}
	if f.ArtifactsPath != "" {
		c.ArtifactsPath = f.ArtifactsPath
	}

	mergeTables(&c.Raw, f.Raw)
	mergeTables(&c.Cleaned, f.Cleaned)

	if f.Tracking.Backend != "" {
		c.Tracking.Backend = f.Tracking.Backend
	}
	if f.Tracking.URI != "" {
		c.Tracking.URI = f.Tracking.URI
	}
	if f.Tracking.DSN != "" {
		c.Tracking.DSN = f.Tracking.DSN
	}
	if f.Tracking.Experiment != "" {
		c.Tracking.Experiment = f.Tracking.Experiment
	}
	if f.Tracking.Timeout > 0 {
		c.Tracking.Timeout = f.Tracking.Timeout
	}

	c.Stages.Cleaning = c.Stages.Cleaning.Merge(f.Stages.Cleaning)
	c.Stages.TrainingDatasets = c.Stages.TrainingDatasets.Merge(f.Stages.TrainingDatasets)
	c.Stages.FeatureEngineering = c.Stages.FeatureEngineering.Merge(f.Stages.FeatureEngineering)
	c.Stages.Training = c.Stages.Training.Merge(f.Stages.Training)
	c.Stages.Scoring = c.Stages.Scoring.Merge(f.Stages.Scoring)

	if f.Events.RabbitMQURL != "" {
		c.Events.RabbitMQURL = f.Events.RabbitMQURL
	}
	if f.Metrics.PushgatewayURL != "" {
		c.Metrics.PushgatewayURL = f.Metrics.PushgatewayURL
	}
	if f.Metrics.Job != "" {
		c.Metrics.Job = f.Metrics.Job
	}
}

func mergeTables(dst *Tables, src Tables) {
	if src.Product != "" {
		dst.Product = src.Product
	}
	if src.Orders != "" {
		dst.Orders = src.Orders
	}
	if src.Sales != "" {
		dst.Sales = src.Sales
	}
}

// applyEnv применяет переопределения из переменных окружения.
func (c *Config) applyEnv() {
	if v := os.Getenv("TRACKING_BACKEND"); v != "" {
		c.Tracking.Backend = v
	}
	if v := os.Getenv("TRACKING_URI"); v != "" {
		c.Tracking.URI = v
	}
	if v := os.Getenv("TRACKING_DSN"); v != "" {
		c.Tracking.DSN = v
	}
	if v := os.Getenv("EXPERIMENT_NAME"); v != "" {
		c.Tracking.Experiment = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		c.Events.RabbitMQURL = v
	}
	if v := os.Getenv("PUSHGATEWAY_URL"); v != "" {
		c.Metrics.PushgatewayURL = v
	}
}

// Validate проверяет согласованность конфигурации.
func (c *Config) Validate() error {
	switch c.Tracking.Backend {
	case BackendMLflow:
		if c.Tracking.URI == "" {
			return fmt.Errorf("%w: tracking.uri is required for mlflow backend", ErrInvalidConfig)
		}
	case BackendPostgres:
		if c.Tracking.DSN == "" {
			return fmt.Errorf("%w: tracking.dsn is required for postgres backend", ErrInvalidConfig)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown tracking backend %q", ErrInvalidConfig, c.Tracking.Backend)
	}

	if c.Tracking.Experiment == "" {
		return fmt.Errorf("%w: tracking.experiment is empty", ErrInvalidConfig)
	}

	testSize := c.Stages.TrainingDatasets.Float("test_size", 0)
	if testSize <= 0 || testSize >= 1 {
		return fmt.Errorf("%w: stages.training_datasets.test_size must be in (0, 1), got %v", ErrInvalidConfig, testSize)
	}
	if c.Stages.TrainingDatasets.String("target", "") == "" {
		return fmt.Errorf("%w: stages.training_datasets.target is empty", ErrInvalidConfig)
	}

	method := c.Stages.FeatureEngineering.Sub("outliers").String("method", "mean")
	if method != "mean" && method != "median" {
		return fmt.Errorf("%w: unknown outlier method %q", ErrInvalidConfig, method)
	}

	return nil
}

// Path возвращает путь файла, из которого загружена конфигурация.
func (c *Config) Path() string {
	return c.path
}

// DataPath возвращает путь внутри DataBasePath.
func (c *Config) DataPath(elem ...string) string {
	return filepath.Join(append([]string{c.DataBasePath}, elem...)...)
}

// ArtifactPath возвращает путь артефакта внутри ArtifactsPath.
func (c *Config) ArtifactPath(name string) string {
	return filepath.Join(c.ArtifactsPath, name)
}

// RawTablePath возвращает путь исходной таблицы.
func (c *Config) RawTablePath(table string) (string, error) {
	return c.tablePath(c.Raw, table)
}

// CleanedTablePath возвращает путь очищенной таблицы.
func (c *Config) CleanedTablePath(table string) (string, error) {
	return c.tablePath(c.Cleaned, table)
}

func (c *Config) tablePath(t Tables, table string) (string, error) {
	var p string
	switch table {
	case TableProduct:
		p = t.Product
	case TableOrders:
		p = t.Orders
	case TableSales:
		p = t.Sales
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	if filepath.IsAbs(p) {
		return p, nil
	}
	return c.DataPath(p), nil
}
