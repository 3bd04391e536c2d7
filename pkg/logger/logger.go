// Package logger builds the zap logger shared by the API and CLI and the request logging
// middleware.
package logger

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/course-scheduler/pkg/config"
	"github.com/noah-isme/course-scheduler/pkg/middleware/requestid"
)

// New returns a production (JSON, sampled) logger in production and a development logger
// elsewhere. An unparseable level is rejected.
func New(cfg *config.Config) (*zap.Logger, error) {
	zapCfg, err := buildConfig(cfg.Env, cfg.Log)
	if err != nil {
		return nil, err
	}
	return zapCfg.Build(zap.Fields(zap.String("env", cfg.Env)))
}

func buildConfig(env string, logCfg config.LogConfig) (zap.Config, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if env == config.EnvProduction {
		zapCfg = zap.NewProductionConfig()
	}

	zapCfg.Encoding = "json"
	if logCfg.Format == "console" {
		zapCfg.Encoding = "console"
	}
	if logCfg.Level != "" {
		level, err := zap.ParseAtomicLevel(logCfg.Level)
		if err != nil {
			return zap.Config{}, fmt.Errorf("log level %q: %w", logCfg.Level, err)
		}
		zapCfg.Level = level
	}

	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapCfg, nil
}

// ForRun scopes l to one generation run.
func ForRun(l *zap.Logger, runID string, seed int64, scope string) *zap.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return l.With(zap.String("run_id", runID), zap.Int64("seed", seed), zap.String("scope", scope))
}

// GinMiddleware logs one entry per request. Server errors log at error level and client
// errors at warn.
func GinMiddleware(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if reqID := requestid.Value(c); reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			l.Error("http_request", fields...)
		case status >= 400:
			l.Warn("http_request", fields...)
		default:
			l.Info("http_request", fields...)
		}
	}
}
