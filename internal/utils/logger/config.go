// internal/utils/logger/config.go
package logger

import "io"

// Config - параметры консольного и файлового вывода.
type Config struct {
	// LogFile - путь JSON-журнала, пустая строка отключает файл.
	LogFile string
	// Ротация lumberjack: мегабайты, дни, число архивов.
	MaxSize    int
	MaxAge     int
	MaxBackups int
	Compress   bool
	// Development включает debug уровень и человекочитаемый энкодер.
	Development bool
	// Console по умолчанию os.Stdout.
	Console io.Writer
}

const defaultLogFile = "logs/raydium-watcher.log"

// DefaultConfig: файл logs/raydium-watcher.log, 100 MB x 3 архива, неделя хранения.
func DefaultConfig() *Config {
	return &Config{
		LogFile:    defaultLogFile,
		MaxSize:    100,
		MaxAge:     7,
		MaxBackups: 3,
		Compress:   true,
	}
}

// ForApp накладывает настройки приложения на DefaultConfig.
// Пустой logFile оставляет путь по умолчанию, "-" отключает файл.
func ForApp(logFile string, debug bool) *Config {
	cfg := DefaultConfig()
	switch logFile {
	case "":
	case "-":
		cfg.LogFile = ""
	default:
		cfg.LogFile = logFile
	}
	cfg.Development = debug
	return cfg
}
