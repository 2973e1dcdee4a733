package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gristips/gristips/internal/logging"
	"github.com/gristips/gristips/internal/server"
)

const envPrefixServer = "GRISTIPS"

var serverConfigKeys = configKeys{
	"master-key":          "masterKey",
	"base-url":            "baseURL",
	"enable-log-sampling": "enableLogSampling",
	"sentry-dsn":          "sentryDSN",

	"session-duration":           "sessionDuration",
	"session-inactivity-timeout": "sessionInactivityTimeout",

	"proconnect-issuer":                    "proConnect.issuer",
	"proconnect-client-id":                 "proConnect.clientID",
	"proconnect-client-secret":             "proConnect.clientSecret",
	"proconnect-redirect-url":              "proConnect.redirectURL",
	"proconnect-post-logout-redirect-url":  "proConnect.postLogoutRedirectURL",
	"proconnect-scopes":                    "proConnect.scopes",
	"proconnect-public-identity-providers": "proConnect.publicIdentityProviders",

	"redis-host":     "redis.host",
	"redis-port":     "redis.port",
	"redis-username": "redis.username",
	"redis-password": "redis.password",
	"redis-options":  "redis.options",

	"rate-limit-login-max":        "rateLimits.login.maxRequests",
	"rate-limit-login-window":     "rateLimits.login.window",
	"rate-limit-grist-key-max":    "rateLimits.gristKey.maxRequests",
	"rate-limit-grist-key-window": "rateLimits.gristKey.window",
	"rate-limit-grist-api-max":    "rateLimits.gristAPI.maxRequests",
	"rate-limit-grist-api-window": "rateLimits.gristAPI.window",

	"grist-request-timeout":     "grist.requestTimeout",
	"grist-max-attempts":        "grist.maxAttempts",
	"grist-base-delay":          "grist.baseDelay",
	"grist-max-delay":           "grist.maxDelay",
	"grist-requests-per-second": "grist.requestsPerSecond",
	"grist-burst":               "grist.burst",

	"addr-http":           "addr.http",
	"addr-metrics":        "addr.metrics",
	"api-request-timeout": "api.requestTimeout",

	"db-file":              "db.sqliteFile",
	"db-connection-string": "db.connectionString",
	"db-host":              "db.host",
	"db-port":              "db.port",
	"db-name":              "db.name",
	"db-username":          "db.username",
	"db-password":          "db.password",
	"db-parameters":        "db.parameters",
}

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the Gristips server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.SetServerLogger()

			options := defaultServerOptions()
			if err := parseOptions(cmd, &options, envPrefixServer, serverConfigKeys); err != nil {
				return err
			}

			if err := options.Validate(); err != nil {
				return Error{
					Cause:         "invalid server options",
					OriginalError: err,
					Suggestion:    "Set the missing options with flags, GRISTIPS_ environment variables, or a config file. Run 'gristips server --help' for the list.",
				}
			}

			srv, err := server.New(options)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			return runServer(cmd.Context(), srv)
		},
	}

	flags := cmd.Flags()
	flags.StringP("config-file", "f", "", "Server configuration file")
	flags.String("master-key", "", "Key that encrypts the stored Grist API keys, at least 32 characters (secret)")
	flags.String("base-url", "", "Public URL of the server")
	flags.Bool("enable-log-sampling", true, "Sample the access logs of successful requests")
	flags.String("sentry-dsn", "", "Report crashes to this Sentry DSN")

	flags.Duration("session-duration", 12*time.Hour, "User session duration")
	flags.Duration("session-inactivity-timeout", 3*time.Hour, "End sessions that are not used for this long, 0 to disable")

	flags.String("proconnect-issuer", "", "ProConnect issuer URL")
	flags.String("proconnect-client-id", "", "ProConnect client id")
	flags.String("proconnect-client-secret", "", "ProConnect client secret (secret)")
	flags.String("proconnect-redirect-url", "", "ProConnect callback URL, defaults to the callback under --base-url")
	flags.String("proconnect-post-logout-redirect-url", "", "URL ProConnect redirects to after a logout, defaults to --base-url")
	flags.StringSlice("proconnect-scopes", nil, "Scopes requested from ProConnect")
	flags.StringSlice("proconnect-public-identity-providers", nil, "Identity providers whose users are all public agents")

	flags.String("redis-host", "", "Redis host, rate limits are kept in memory when not set")
	flags.Int("redis-port", 6379, "Redis port")
	flags.String("redis-username", "", "Redis username")
	flags.String("redis-password", "", "Redis password (secret)")
	flags.String("redis-options", "", "Redis additional connection parameters")

	flags.Int("rate-limit-login-max", 10, "Logins allowed per client address in a window")
	flags.Duration("rate-limit-login-window", time.Minute, "Window of the login rate limit")
	flags.Int("rate-limit-grist-key-max", 5, "Grist API key changes allowed per user in a window")
	flags.Duration("rate-limit-grist-key-window", time.Minute, "Window of the Grist API key rate limit")
	flags.Int("rate-limit-grist-api-max", 100, "Grist requests allowed per user in a window")
	flags.Duration("rate-limit-grist-api-window", time.Minute, "Window of the Grist requests rate limit")

	flags.Duration("grist-request-timeout", 30*time.Second, "Timeout of a request to Grist")
	flags.Int("grist-max-attempts", 3, "Attempts of a failed request to Grist")
	flags.Duration("grist-base-delay", 200*time.Millisecond, "Delay before the first retry of a request to Grist")
	flags.Duration("grist-max-delay", 5*time.Second, "Maximum delay between retries of a request to Grist")
	flags.Float64("grist-requests-per-second", 0, "Requests per second sent to Grist by this server, 0 for no limit")
	flags.Int("grist-burst", 10, "Burst of requests sent to Grist above --grist-requests-per-second")

	flags.String("addr-http", ":8080", "Address of the HTTP listener")
	flags.String("addr-metrics", ":9090", "Address of the metrics listener")
	flags.Duration("api-request-timeout", time.Minute, "Timeout of an API request")

	flags.String("db-file", "", "Path to a SQLite 3 database, used instead of postgres")
	flags.String("db-connection-string", "", "Postgres connection string")
	flags.String("db-host", "", "Database host")
	flags.Int("db-port", 0, "Database port")
	flags.String("db-name", "", "Database name")
	flags.String("db-username", "", "Database username")
	flags.String("db-password", "", "Database password (secret)")
	flags.String("db-parameters", "", "Database additional connection parameters")

	return cmd
}

func defaultServerOptions() server.Options {
	return server.Options{
		Addr: server.ListenerOptions{
			HTTP:    ":8080",
			Metrics: ":9090",
		},
	}
}

// shim for testing
var runServer = func(ctx context.Context, srv *server.Server) error {
	return srv.Run(ctx)
}
