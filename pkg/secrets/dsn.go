package secrets

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

// ResolveDSN builds a Postgres connection string from a database secret.
// A "dsn" entry wins; otherwise the RDS fields username, password, host,
// port and dbname are assembled. sslmode defaults to require.
func ResolveDSN(ctx context.Context, p Provider, secretName string) (string, error) {
	s, err := p.GetSecret(ctx, secretName)
	if err != nil {
		return "", err
	}
	if dsn := s["dsn"]; dsn != "" {
		return dsn, nil
	}

	var missing []string
	for _, k := range []string{"username", "password", "host", "dbname"} {
		if s[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("secret [%s] missing %v", secretName, missing)
	}

	port := s["port"]
	if port == "" {
		port = "5432"
	}
	sslmode := s["sslmode"]
	if sslmode == "" {
		sslmode = "require"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(s["username"], s["password"]),
		Host:     net.JoinHostPort(s["host"], port),
		Path:     "/" + s["dbname"],
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	return u.String(), nil
}
