package logsvc

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyplink/backend/core"
)

// ZapLogger is the development logger; it prints structured lines to stdout
// and reports nothing to Rollbar.
type ZapLogger struct {
	log     *zap.SugaredLogger
	enabled bool
}

var _ core.Logger = (*ZapLogger)(nil)

func NewZapLogger(conf *core.Config) *ZapLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !conf.Debug {
		cfg = zap.NewProductionConfig()
	}
	log, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		log = zap.NewNop()
	}
	return &ZapLogger{log: log.Sugar(), enabled: true}
}

func (l *ZapLogger) Enable(enabled bool) { l.enabled = enabled }

func (l *ZapLogger) Debug(msg string, args ...interface{}) {
	if l.enabled {
		l.log.Debugw(msg, l.fields(args)...)
	}
}

func (l *ZapLogger) Info(msg string, args ...interface{}) {
	if l.enabled {
		l.log.Infow(msg, l.fields(args)...)
	}
}

func (l *ZapLogger) Warn(msg string, args ...interface{}) {
	if l.enabled {
		l.log.Warnw(msg, l.fields(args)...)
	}
}

func (l *ZapLogger) Error(msg string, args ...interface{}) {
	if l.enabled {
		l.log.Errorw(msg, l.fields(args)...)
	}
}

func (l *ZapLogger) Fatal(msg string, args ...interface{}) {
	l.log.Fatalw(msg, l.fields(args)...)
}

// fields flattens free-form args into zap key-value pairs.
func (l *ZapLogger) fields(args []interface{}) []interface{} {
	fields := make([]interface{}, 0, 2*len(args))
	for _, arg := range args {
		switch v := arg.(type) {
		case error:
			fields = append(fields, "error", v)
		case map[string]interface{}:
			for k, val := range v {
				fields = append(fields, k, val)
			}
		default:
			fields = append(fields, "detail", v)
		}
	}
	return fields
}
