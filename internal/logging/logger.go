// Package logging builds the crawler's root zap logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Name is the root logger name. Components append theirs with Named, so a
// worker logs as bestiary-crawler.fetch.
const Name = "bestiary-crawler"

// New builds the root logger. Development mode logs colored console output at
// debug level; otherwise JSON at info level with sampling off, since every
// failed fetch is worth a line. opts are applied after the config is built.
func New(development bool, opts ...zap.Option) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named(Name), nil
}
