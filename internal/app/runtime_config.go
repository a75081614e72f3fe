package app

import (
	"strings"

	"github.com/charlesng35/shiftlog/internal/database"
	"github.com/charlesng35/shiftlog/internal/realtime"
	"github.com/charlesng35/shiftlog/internal/services"
)

// DatabaseConnection converts DatabaseConfig into the database package representation.
// Host based settings are taken from the section matching the configured driver.
func (c DatabaseConfig) DatabaseConnection() database.Config {
	out := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   c.Path,
		DSN:    c.DSN,
	}

	var host DBAuthConfig
	switch out.Driver {
	case "postgres", "postgresql":
		host = c.Postgres
	case "mysql", "mariadb":
		host = c.MySQL
	default:
		return out
	}

	out.Host = host.Host
	out.Port = host.Port
	out.Name = host.Database
	out.User = host.Username
	out.Password = host.Password
	return out
}

// SeedOptions converts the bootstrap section into seed parameters.
func (c BootstrapConfig) SeedOptions() database.SeedOptions {
	return database.SeedOptions{
		AdminUsername: strings.TrimSpace(c.AdminUsername),
		AdminPassword: c.AdminPassword,
	}
}

// HubOptions converts the notifications section into realtime hub options.
func (c NotificationsConfig) HubOptions() []realtime.Option {
	var opts []realtime.Option
	if c.PushTimeout > 0 {
		opts = append(opts, realtime.WithPushTimeout(c.PushTimeout))
	}
	if c.SendBuffer > 0 {
		opts = append(opts, realtime.WithSendBuffer(c.SendBuffer))
	}
	return opts
}

// StackConfig combines the shift and notification sections into service settings.
func (c Config) StackConfig() services.StackConfig {
	return services.StackConfig{
		ShiftDuration:      c.Shifts.Duration,
		DescriptionPreview: c.Notifications.DescriptionPreview,
	}
}
