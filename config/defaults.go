// =============================================================================
// Router default configuration
// =============================================================================
package config

import "time"

// DefaultConfig returns the baseline configuration before file/env overlay.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Vendors:   DefaultVendorsConfig(),
		Policy:    DefaultPolicyConfig(),
		Auth:      DefaultAuthConfig(),
	}
}

func DefaultVendorsConfig() VendorsConfig {
	return VendorsConfig{
		PrimaryBaseURL:         "https://api.openai.com/v1",
		PrimaryMaxConcurrent:   32,
		SecondaryBaseURL:       "https://api.deepseek.com/v1",
		SecondaryMaxConcurrent: 32,
		TokenizerKind:          "estimate",
	}
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{RulesPath: ""}
}

func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		AllowedOrigins: nil,
		RateLimitRPS:   20,
		RateLimitBurst: 40,
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "router.db",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentflow-router",
		SampleRate:   0.1,
	}
}
