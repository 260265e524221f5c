// Package stages содержит реализацию четырёх стадий pipeline по умолчанию.
//
// # Стадии
//
// ## Data Cleaning (cleaning.go)
//
//   - CleanProductTable, CleanOrderTable, CleanSalesTable — читают raw CSV,
//     нормализуют заголовки и значения, удаляют пустые строки и дубликаты,
//     пишут cleaned CSV и возвращают таблицу.
//   - CreateTrainingDatasets — объединяет sales с orders и product,
//     делит на train/test и пишет features/target.
//
// Параметры CreateTrainingDatasets:
//
//	{"test_size": 0.2, "target": "unit_price"}
//
// ## Feature Engineering (features.go)
//
// TransformFeatures выбирает числовые колонки (curated columns), считает
// границы выбросов по IQR, значение замены и параметры стандартизации.
//
//	{"outliers": {"method": "mean", "drop": false}}
//
// ## Model Training (training.go)
//
// TrainModel обучает линейную регрессию градиентным спуском.
//
//	{"epochs": 1000, "learning_rate": 0.1}
//
// ## Model Scoring (scoring.go)
//
// ScoreModel считает RMSE на test-наборе.
//
// # Файлы
//
// Пути выходных файлов задают функции из paths.go; orchestrator
// использует их для проверки существования артефактов.
package stages
