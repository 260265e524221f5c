// Package orchestrator запускает pipeline прогноза цены продаж.
//
// Orchestrator отвечает за:
//   - Поиск эксперимента по имени (создание только если его нет)
//   - Открытие родительского run "Sales Price Prediction"
//   - Выполнение четырёх стадий во вложенных runs в фиксированном порядке
//   - Запись параметров каждой стадии в её собственный run
//   - Финализацию runs (FINISHED/FAILED) и публикацию события о завершении
//
// Стадии выполняются строго последовательно. Ошибка стадии прерывает
// pipeline: следующие стадии не запускаются, их runs не создаются.
//
// Run handle передаётся явно, глобального "текущего run" нет.
package orchestrator
