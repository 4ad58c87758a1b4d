package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/config"
)

const applicationName = "quoted"

// DSN renders cfg as a postgres:// URL that pgxpool.ParseConfig accepts.
// Pool sizing travels as pool_max_conns and pool_min_conns so the parsed
// config carries it without further patching.
func DSN(cfg config.DatabaseConfig) string {
	q := url.Values{}
	q.Set("sslmode", cfg.SSLMode)
	if cfg.SSLMode == "" {
		q.Set("sslmode", "prefer")
	}
	q.Set("application_name", applicationName)
	if cfg.MaxConns > 0 {
		q.Set("pool_max_conns", strconv.Itoa(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		q.Set("pool_min_conns", strconv.Itoa(cfg.MinConns))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
