package config

type AppConfig struct {
	APIPort string `env:"PORT" envDefault:"12222"`
	APIKey  string `env:"API_KEY,required"`
}

type ImapConfig struct {
	Server   string `env:"IMAP_HOST,required"`
	Port     int    `env:"IMAP_PORT" envDefault:"993"`
	Username string `env:"IMAP_USER,required"`
	Password string `env:"IMAP_PASSWORD,required"`
	// Security is "tls" for implicit TLS or "none" for plaintext (test servers).
	Security string `env:"IMAP_SECURITY" envDefault:"tls"`
	Folder   string `env:"IMAP_FOLDER" envDefault:"INBOX"`

	// MarkSeen flags processed messages \Seen after each fetch pass.
	MarkSeen bool `env:"IMAP_MARK_SEEN" envDefault:"true"`
	// MarkSeenBySubject additionally closes out still-unseen duplicates that
	// share the exact subject. Best-effort.
	MarkSeenBySubject bool `env:"IMAP_MARK_SEEN_BY_SUBJECT" envDefault:"true"`
}

type SmtpConfig struct {
	Server   string `env:"SMTP_HOST,required"`
	Port     int    `env:"SMTP_PORT" envDefault:"465"`
	Username string `env:"SMTP_USER,required"`
	Password string `env:"SMTP_PASSWORD,required"`
	// Security is "tls" for implicit TLS or "starttls".
	Security    string `env:"SMTP_SECURITY" envDefault:"tls"`
	FromAddress string `env:"SMTP_FROM"`
}

type AttachmentConfig struct {
	// BaseDir defaults to <home>/shipmail/attachments when empty.
	BaseDir       string `env:"ATTACHMENTS_BASE_DIR"`
	MaxSizeMB     int    `env:"ATTACHMENTS_MAX_SIZE_MB" envDefault:"50"`
	RetentionDays int    `env:"ATTACHMENTS_RETENTION_DAYS" envDefault:"14"`
}

type DatabaseConfig struct {
	Host            string `env:"SHIPMAIL_POSTGRES_HOST,required"`
	Port            string `env:"SHIPMAIL_POSTGRES_PORT,required"`
	User            string `env:"SHIPMAIL_POSTGRES_USER,required"`
	DBName          string `env:"SHIPMAIL_POSTGRES_DB_NAME,required"`
	Password        string `env:"SHIPMAIL_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"SHIPMAIL_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"SHIPMAIL_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"SHIPMAIL_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"SHIPMAIL_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"SHIPMAIL_POSTGRES_SSL_MODE" envDefault:"disable"`
}

type CronConfig struct {
	// BacklogSweepSchedule re-drains unseen messages to pick up anything a
	// failed mark-as-read left behind.
	BacklogSweepSchedule string `env:"CRON_SCHEDULE_BACKLOG_SWEEP" envDefault:"@every 20m"`
	// RetentionSchedule purges attachment date directories past retention.
	RetentionSchedule string `env:"CRON_SCHEDULE_ATTACHMENT_RETENTION" envDefault:"0 30 3 * * *"`
}
