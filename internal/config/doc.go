// Package config загружает контекст pipeline из YAML-файла.
//
// Config создаётся один раз при старте (Load) и передаётся без изменений
// во все стадии. После загрузки он только читается.
//
// Порядок применения значений:
//  1. значения по умолчанию (Default)
//  2. YAML-файл (--config, по умолчанию ./production/conf/config.yml)
//  3. переменные окружения (в том числе из .env через godotenv)
//
// Переменные окружения:
//
//	TRACKING_BACKEND  mlflow | postgres | memory
//	TRACKING_URI      адрес MLflow tracking server
//	TRACKING_DSN      DSN PostgreSQL для backend=postgres
//	EXPERIMENT_NAME   имя эксперимента
//	RABBITMQ_URL      адрес RabbitMQ для событий pipeline.finished
//	PUSHGATEWAY_URL   адрес Prometheus Pushgateway
package config
