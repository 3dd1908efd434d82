package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Log struct {
	LogLevel   zapcore.Level `yaml:"level" envconfig:"LOG_LEVEL" default:"info"`
	Sink       string        `yaml:"sink" envconfig:"LOG_SINK"`
	Production bool          `yaml:"production" envconfig:"LOG_PRODUCTION"`
}

// NewLogger builds a named zap logger. Entries always go to stdout;
// when Sink is set they are also appended, JSON encoded, to that file.
// A sink that cannot be opened is reported on stdout and skipped.
func NewLogger(cfg Log, name string) *zap.Logger {
	return newLogger(cfg, name, zapcore.Lock(os.Stdout))
}

func newLogger(cfg Log, name string, stdout zapcore.WriteSyncer) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	if cfg.Production {
		encCfg = zap.NewProductionEncoderConfig()
	}
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.NameKey = "name"
	encCfg.MessageKey = "msg"

	stdoutEncoder := zapcore.NewConsoleEncoder(encCfg)
	if cfg.Production {
		stdoutEncoder = zapcore.NewJSONEncoder(encCfg)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(stdoutEncoder, stdout, cfg.LogLevel),
	}
	var sinkErr error
	if cfg.Sink != "" {
		f, err := os.OpenFile(cfg.Sink, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			sinkErr = err
		} else {
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), cfg.LogLevel))
		}
	}

	log := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	).Named(name)
	if sinkErr != nil {
		log.Warn("log sink unavailable", zap.String("sink", cfg.Sink), zap.Error(sinkErr))
	}
	return log
}
