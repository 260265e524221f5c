// Package scheduler запускает pipeline по cron-расписанию.
//
// Структура:
//   - scheduler.go — Scheduler: cron-цикл, пропуск наложений, остановка по ctx
//   - cron.go      — парсинг cron-выражений и вычисление следующих запусков
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Expr:       "0 3 * * *",
//	    Timezone:   "Europe/Moscow",
//	    Job:        func(ctx context.Context) error { _, err := orch.Run(ctx); return err },
//	    RunOnStart: true,
//	    Logger:     logger,
//	})
//	if err != nil {
//	    return err
//	}
//	return sched.Run(ctx) // блокируется до отмены ctx
//
// Два запуска pipeline никогда не выполняются одновременно: если
// предыдущий запуск не завершился, очередной тик пропускается.
package scheduler
