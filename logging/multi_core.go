package logging

import (
	"os"

	"go.uber.org/zap/zapcore"
)

// NewMultiCore tees stdout and a rotated log file at filePath.
// The file is always JSON; the console is colored text in development and
// JSON otherwise.
//
//	core := NewMultiCore(zapcore.InfoLevel, "stega.log", false)
//	logger := zap.New(core)
func NewMultiCore(level zapcore.Level, filePath string, isDev bool) zapcore.Core {
	return NewMultiCoreWithWriters(level, zapcore.Lock(os.Stdout), NewFileWriter(filePath), isDev)
}

// NewMultiCoreWithWriters is NewMultiCore with explicit writers.
func NewMultiCoreWithWriters(level zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(NewEncoderConfig()),
		fileWriter,
		level,
	)

	var consoleEncoder zapcore.Encoder
	if isDev {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, consoleWriter, level)

	return zapcore.NewTee(consoleCore, fileCore)
}
