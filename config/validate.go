package config

import (
	"errors"
	"fmt"
)

// =============================================================================
// ✅ 配置校验
// =============================================================================

// Validate 一次性返回所有不合法的配置项
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(validPort(c.Server.HTTPPort, false), "invalid HTTP port %d", c.Server.HTTPPort)
	check(validPort(c.Server.MetricsPort, true), "invalid metrics port %d", c.Server.MetricsPort)

	check(oneOf(c.Database.Driver, "sqlite", "postgres", "mysql", "memory"),
		"unsupported database driver %q", c.Database.Driver)

	check(oneOf(c.Provider.Name, "stability", "openai"), "unsupported provider %q", c.Provider.Name)
	check(c.Provider.Width > 0 && c.Provider.Height > 0,
		"provider width and height must be positive, got %dx%d", c.Provider.Width, c.Provider.Height)

	check(oneOf(c.Queue.Backend, "memory", "redis"), "unsupported queue backend %q", c.Queue.Backend)
	check(c.Queue.Workers > 0, "queue workers must be positive")
	check(c.Queue.QueueSize > 0, "queue queue_size must be positive")

	check(c.Dispatch.BatchWorkers > 0, "dispatch batch_workers must be positive")
	check(c.Dispatch.MaxPromptLength > 0, "dispatch max_prompt_length must be positive")

	check(c.Storage.MediaRoot != "", "storage media_root is required")

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// validPort 端口范围检查，allowZero 表示 0 代表禁用
func validPort(port int, allowZero bool) bool {
	if port == 0 {
		return allowZero
	}
	return port > 0 && port <= 65535
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// DSN 返回 gorm 驱动使用的连接字符串，memory 驱动返回空串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
			d.User, d.Password, d.Host, d.Port, d.Name)
	case "sqlite":
		return d.Name
	}
	return ""
}
