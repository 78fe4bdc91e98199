package utils

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the node logger: a console core on stderr plus one file per
// level family under logPath (info.log, error.log, debug.log). Levels below
// level are dropped everywhere. An empty logPath logs to stderr only.
func NewLogger(logPath, level string) (*zap.Logger, error) {
	minLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	encoder := zapcore.NewConsoleEncoder(encCfg)
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), minLevel),
	}

	if logPath != "" {
		if err := os.MkdirAll(logPath, 0744); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", logPath, err)
		}
		infoOut := zapcore.AddSync(openLogFile(filepath.Join(logPath, "info.log")))
		errorOut := zapcore.AddSync(openLogFile(filepath.Join(logPath, "error.log")))
		dbgOut := zapcore.AddSync(openLogFile(filepath.Join(logPath, "debug.log")))

		infoLv := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= minLevel && (l == zapcore.InfoLevel || l == zapcore.WarnLevel)
		})
		errLv := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= minLevel && l >= zapcore.ErrorLevel })
		dbgLv := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= minLevel && l == zapcore.DebugLevel })

		cores = append(cores,
			zapcore.NewCore(encoder, infoOut, infoLv),
			zapcore.NewCore(encoder, errorOut, errLv),
			zapcore.NewCore(encoder, dbgOut, dbgLv),
		)
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}

func openLogFile(path string) *os.File {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file %s: %v", path, err)
		return os.Stdout
	}
	return f
}
