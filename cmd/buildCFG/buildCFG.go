package buildCFG

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"gathered/internal/engine"
	"gathered/internal/mailer"
	"gathered/internal/model"
)

type ServerConfig struct {
	Port    string
	GinMode string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

type AuthConfig struct {
	Secret string
}

type EngineConfig struct {
	Location        *time.Location
	DefaultDuration time.Duration
	ReminderLead    time.Duration
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		log.Warn().Msg("server.port is not set, using 8080")
		port = "8080"
	}
	mode := cfg.GetString("server.gin_mode")
	if mode == "" {
		mode = "release"
	}
	return ServerConfig{Port: port, GinMode: mode}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	master := cfg.GetString("postgres.master_dsn")
	if master == "" {
		return "", nil, nil, fmt.Errorf("postgres.master_dsn is required")
	}
	slaves := cfg.GetStringSlice("postgres.slave_dsns")

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("postgres.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("postgres.max_idle_conns"),
		ConnMaxLifetime: cfg.GetDuration("postgres.conn_max_lifetime"),
	}
	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}

	log.Info().
		Int("slaves", len(slaves)).
		Int("max_open_conns", opts.MaxOpenConns).
		Msg("database config loaded")
	return master, slaves, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:      cfg.GetString("rabbitmq.url"),
		Exchange: cfg.GetString("rabbitmq.exchange"),
		Queue:    cfg.GetString("rabbitmq.queue"),
	}
	if rc.Url == "" {
		return rc, fmt.Errorf("rabbitmq.url is required")
	}
	if rc.Exchange == "" {
		rc.Exchange = "gathered.delayed"
	}
	if rc.Queue == "" {
		rc.Queue = "gathered.notifications"
	}
	log.Info().Str("exchange", rc.Exchange).Str("queue", rc.Queue).Msg("rabbitmq config loaded")
	return rc, nil
}

func BuildMailConfig(cfg *config.Config, log *zerolog.Logger) mailer.Config {
	mc := mailer.Config{
		Provider:    cfg.GetString("mail.provider"),
		From:        cfg.GetString("mail.from"),
		SMTPHost:    cfg.GetString("mail.smtp_host"),
		SMTPPort:    cfg.GetInt("mail.smtp_port"),
		Username:    cfg.GetString("mail.username"),
		Password:    cfg.GetString("mail.password"),
		SendGridKey: cfg.GetString("mail.sendgrid_key"),
	}
	if mc.Provider == "" {
		log.Warn().Msg("mail.provider is not set, emails will only be logged")
		mc.Provider = mailer.ProviderLog
	}
	if mc.SMTPPort == 0 {
		mc.SMTPPort = 587
	}
	return mc
}

func BuildAuthConfig(cfg *config.Config) (AuthConfig, error) {
	secret := cfg.GetString("auth.jwt_secret")
	if secret == "" {
		return AuthConfig{}, fmt.Errorf("auth.jwt_secret is required")
	}
	return AuthConfig{Secret: secret}, nil
}

func BuildEngineConfig(cfg *config.Config, log *zerolog.Logger) (EngineConfig, error) {
	ec := EngineConfig{
		Location:        time.UTC,
		DefaultDuration: cfg.GetDuration("engine.default_duration"),
		ReminderLead:    cfg.GetDuration("engine.reminder_lead"),
	}
	if tz := cfg.GetString("engine.timezone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return ec, fmt.Errorf("invalid engine.timezone %q: %w", tz, err)
		}
		ec.Location = loc
	}
	if ec.DefaultDuration <= 0 {
		ec.DefaultDuration = engine.DefaultDuration
	}
	if ec.ReminderLead <= 0 {
		ec.ReminderLead = time.Hour
	}
	log.Info().
		Str("timezone", ec.Location.String()).
		Dur("default_duration", ec.DefaultDuration).
		Msg("engine config loaded")
	return ec, nil
}

// BuildSeedStudents reads storage.seed_students, entries of the form
// "uuid|name|email". The in-memory driver has no students table, so rosters and
// emails only work for students listed here. Bad entries are skipped.
func BuildSeedStudents(cfg *config.Config, log *zerolog.Logger) []model.Student {
	var out []model.Student
	for _, entry := range cfg.GetStringSlice("storage.seed_students") {
		s, err := parseStudent(entry)
		if err != nil {
			log.Warn().Err(err).Str("entry", entry).Msg("skipping seed student")
			continue
		}
		out = append(out, s)
	}
	return out
}

func parseStudent(entry string) (model.Student, error) {
	parts := strings.Split(entry, "|")
	if len(parts) != 3 {
		return model.Student{}, fmt.Errorf("want uuid|name|email, got %d fields", len(parts))
	}
	id, err := uuid.Parse(strings.TrimSpace(parts[0]))
	if err != nil {
		return model.Student{}, fmt.Errorf("invalid student id: %w", err)
	}
	email := strings.TrimSpace(parts[2])
	if !strings.Contains(email, "@") {
		return model.Student{}, fmt.Errorf("invalid email %q", email)
	}
	return model.Student{ID: id, Name: strings.TrimSpace(parts[1]), Email: email}, nil
}
