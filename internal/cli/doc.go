// Package cli реализует команды salesprice.
//
// # Обзор
//
// CLI запускает pipeline прогноза цены продаж и показывает результаты
// из tracking service. Конфигурация загружается один раз из YAML
// (--config) и передаётся всем стадиям без изменений.
//
// # Ключевые компоненты
//
// ## Tracking
//
// OpenTracking создаёт tracking.Client для backend из конфигурации:
//   - mlflow   — MLflow REST API (tracking.uri)
//   - postgres — PostgreSQL (tracking.dsn), схема создаётся при старте
//   - memory   — в памяти процесса, для --dry-run
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: salesprice runs list --json | jq .
//
// ## Commands
//
//   - run: один запуск pipeline или запуск по расписанию (--schedule)
//   - runs: list, show
//   - experiment: show
//   - events: watch
//
// Каждая группа создаётся через фабричную функцию (NewRunCmd и т.д.),
// принимающую configFn и outputFn — замыкания для ленивой загрузки
// конфигурации и создания Output после парсинга PersistentFlags.
package cli
