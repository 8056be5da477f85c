package config

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	// Enabled turns the profile store on. Without it sign-in works but profiles are not persisted.
	Enabled  bool   `env:"ENABLED"  envDefault:"true"`
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"enquiry"`
	Password string `env:"PASSWORD" envDefault:"enquiry"`
	Name     string `env:"NAME"     envDefault:"enquiry"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration for the session revocation store.
type RedisConfig struct {
	// Enabled turns revocation on. Without it sign-out cannot invalidate tokens before expiry.
	Enabled            bool     `env:"ENABLED"              envDefault:"true"`
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
	// RevocationPrefix namespaces revocation keys when Redis is shared.
	RevocationPrefix string `env:"REVOCATION_PREFIX" envDefault:"revoked:"`
}
