package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// postgresURLFromEnv builds a PostgreSQL URL from PREFIX_HOST, PREFIX_PORT,
// PREFIX_USER, PREFIX_PASSWORD, PREFIX_DBNAME and PREFIX_SSLMODE. HOST and
// DBNAME are required; PORT defaults to 5432.
func postgresURLFromEnv(prefix string) (string, error) {
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	if urlStr := os.Getenv(prefix + "URL"); urlStr != "" {
		return urlStr, nil
	}

	host := os.Getenv(prefix + "HOST")
	dbname := os.Getenv(prefix + "DBNAME")

	var missing []string
	if host == "" {
		missing = append(missing, prefix+"HOST")
	}
	if dbname == "" {
		missing = append(missing, prefix+"DBNAME")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	port := os.Getenv(prefix + "PORT")
	if port == "" {
		port = "5432"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   host + ":" + port,
		Path:   "/" + dbname,
	}
	user := os.Getenv(prefix + "USER")
	pass := os.Getenv(prefix + "PASSWORD")
	switch {
	case user != "" && pass != "":
		u.User = url.UserPassword(user, pass)
	case user != "":
		u.User = url.User(user)
	}
	if sslmode := os.Getenv(prefix + "SSLMODE"); sslmode != "" {
		q := u.Query()
		q.Set("sslmode", sslmode)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "********"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
