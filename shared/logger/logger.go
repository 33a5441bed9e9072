package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	EncodingJSON    = "json"
	EncodingConsole = "console"

	defaultLevel = zapcore.InfoLevel
)

// Config — настройки логгера сервиса.
type Config struct {
	Level      string // debug, info, warn, error; пусто = info
	Encoding   string // json или console
	OutputPath string // файл лога; пусто = stdout
	Service    string // поле service в каждой записи

	// Development добавляет caller и stacktrace начиная с warn.
	Development bool
}

// New собирает логгер и возвращает его уровень. Уровень можно менять
// на лету: zap.AtomicLevel сам отдает и принимает его по HTTP.
// Нераспознанный уровень не ошибка: логгер стартует с info и пишет
// об этом первой записью.
func New(cfg Config) (*zap.Logger, zap.AtomicLevel, error) {
	level := zap.NewAtomicLevelAt(defaultLevel)
	var levelErr error
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			levelErr = err
		} else {
			level.SetLevel(parsed)
		}
	}

	outputPath := cfg.OutputPath
	if outputPath == "" {
		outputPath = "stdout"
	}
	sink, _, err := zap.Open(outputPath)
	if err != nil {
		return nil, level, fmt.Errorf("failed to open log output %q: %w", outputPath, err)
	}

	core := zapcore.NewCore(newEncoder(cfg), sink, level)

	var opts []zap.Option
	if cfg.Development {
		opts = append(opts, zap.AddCaller(), zap.AddStacktrace(zapcore.WarnLevel), zap.Development())
	} else {
		opts = append(opts, zap.AddStacktrace(zapcore.DPanicLevel))
	}
	if cfg.Service != "" {
		opts = append(opts, zap.Fields(zap.String("service", cfg.Service)))
	}

	logger := zap.New(core, opts...)
	if levelErr != nil {
		logger.Warn("Invalid log level, using info", zap.String("logLevel", cfg.Level), zap.Error(levelErr))
	}
	return logger, level, nil
}

func newEncoder(cfg Config) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	if strings.EqualFold(cfg.Encoding, EncodingConsole) {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}
