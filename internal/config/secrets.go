package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields
// replaced by the redaction placeholder "***". Use this when logging the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Copy slices so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Feed.Pairs != nil {
		out.Feed.Pairs = make([]string, len(cfg.Feed.Pairs))
		copy(out.Feed.Pairs, cfg.Feed.Pairs)
	}

	return out
}

func redact(s *string) {
	if *s != "" {
		*s = "***"
	}
}
