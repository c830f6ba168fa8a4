// Package logger provides opinionated logging construction for vectorize.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type config struct {
	debug   bool
	json    bool
	writers []io.Writer
	source  bool
}

// Option configures a logger built with New.
type Option func(*config)

// WithDebug sets the log level to Debug when true, Info otherwise.
func WithDebug(debug bool) Option {
	return func(c *config) { c.debug = debug }
}

// WithJSON switches the encoder from the console encoder to zapcore's JSON
// encoder, for service contexts where logs are shipped to a collector.
func WithJSON(json bool) Option {
	return func(c *config) { c.json = json }
}

// WithPretty is an alias of WithJSON(false); it exists for call sites that
// think in terms of the human-readable console format rather than the
// machine-readable one.
func WithPretty(pretty bool) Option {
	return func(c *config) { c.json = !pretty }
}

// WithWriter overrides the output writer. Defaults to os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.writers = []io.Writer{w} }
}

// WithWriters fans output out to multiple writers.
func WithWriters(w ...io.Writer) Option {
	return func(c *config) { c.writers = w }
}

// WithSource includes the caller's file:line in log output.
func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}

// New builds a *zap.Logger from the given options.
func New(opts ...Option) *zap.Logger {
	c := &config{writers: []io.Writer{os.Stdout}}
	for _, opt := range opts {
		opt(c)
	}

	level := zap.InfoLevel
	if c.debug {
		level = zap.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if c.json {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(c.writers))
	for _, w := range c.writers {
		syncers = append(syncers, zapcore.AddSync(w))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)

	zapOpts := []zap.Option{}
	if c.source {
		zapOpts = append(zapOpts, zap.AddCaller())
	}
	return zap.New(core, zapOpts...)
}

// Nop returns a logger that discards everything written to it.
func Nop() *zap.Logger {
	return zap.NewNop()
}
