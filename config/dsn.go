package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveCheckpointDSN derives the Postgres DSN of the checkpoint store from
// deployment variables: CHECKPOINT_PG_DSN, then POSTGRES_DSN, else a DSN
// assembled from POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_HOST,
// POSTGRES_PORT and POSTGRES_DB with the compose defaults.
func ResolveCheckpointDSN(getenv func(string) string) string {
	for _, key := range []string{"CHECKPOINT_PG_DSN", "POSTGRES_DSN"} {
		if dsn := strings.TrimSpace(getenv(key)); dsn != "" {
			return dsn
		}
	}

	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(get("POSTGRES_USER", "zep"), get("POSTGRES_PASSWORD", "zep_password")),
		Host:     fmt.Sprintf("%s:%s", get("POSTGRES_HOST", "db"), get("POSTGRES_PORT", "5432")),
		Path:     "/" + get("POSTGRES_DB", "zep"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// RedactDSN masks the password of a URL-form DSN for logs and health output.
// Strings that do not parse as a URL with a host are replaced entirely.
func RedactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
