package server

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gristips/gristips/internal/encrypt"
	"github.com/gristips/gristips/internal/ratelimit"
	"github.com/gristips/gristips/internal/server/providers"
)

type Options struct {
	// MasterKey encrypts the Grist API keys and the ID tokens stored in the
	// database.
	MasterKey string

	// BaseURL is the public URL of the server. The ProConnect redirect URLs
	// default to paths under it.
	BaseURL string

	// EnableLogSampling indicates whether or not to sample HTTP access logs.
	// When true, non-error HTTP logs are sampled down to 1 every 7 seconds
	// grouped by the request path.
	EnableLogSampling bool

	// SentryDSN enables crash reporting to sentry when set.
	SentryDSN string

	SessionDuration          time.Duration
	SessionInactivityTimeout time.Duration

	ProConnect providers.ProConnectOptions

	// Redis stores the rate limit counters. When no host is set the
	// counters are kept in memory, and are not shared between replicas.
	Redis ratelimit.RedisOptions

	RateLimits RateLimitOptions
	Grist      GristOptions

	Addr ListenerOptions
	API  APIOptions
	DB   DBOptions
}

type ListenerOptions struct {
	HTTP    string
	Metrics string
}

type APIOptions struct {
	RequestTimeout time.Duration
}

type DBOptions struct {
	// SQLiteFile is used instead of postgres when set.
	SQLiteFile string

	ConnectionString string
	Host             string
	Port             int
	Name             string
	Username         string
	Password         string
	Parameters       string
}

type RateLimitOptions struct {
	// Login is applied per client address to the start of the login flow.
	Login ratelimit.Options
	// GristKey is applied per user to saving a Grist API key.
	GristKey ratelimit.Options
	// GristAPI is applied per user to the requests proxied to Grist.
	GristAPI ratelimit.Options
}

type GristOptions struct {
	RequestTimeout time.Duration
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration

	// RequestsPerSecond paces the requests sent to Grist servers by this
	// process. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int
}

// Validate reports every problem with the options at once.
func (o Options) Validate() error {
	var errs []error

	if len(o.MasterKey) < encrypt.MinMasterKeyLength {
		errs = append(errs, fmt.Errorf("master key must be at least %d characters", encrypt.MinMasterKeyLength))
	}

	if o.BaseURL != "" {
		if u, err := url.Parse(o.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("base url %q must be an absolute url", o.BaseURL))
		}
	}

	if o.ProConnect.Issuer == "" {
		errs = append(errs, errors.New("proconnect issuer is required"))
	}
	if o.ProConnect.ClientID == "" {
		errs = append(errs, errors.New("proconnect client id is required"))
	}
	if o.ProConnect.ClientSecret == "" {
		errs = append(errs, errors.New("proconnect client secret is required"))
	}

	if o.ProConnect.RedirectURL == "" && o.BaseURL == "" {
		errs = append(errs, errors.New("proconnect redirect url or base url is required"))
	}

	if o.DB.SQLiteFile == "" && o.DB.ConnectionString == "" && o.DB.Host == "" {
		errs = append(errs, errors.New("a postgres database or a sqlite file is required"))
	}

	limits := []struct {
		name    string
		options ratelimit.Options
	}{
		{name: rateLimitLogin, options: o.RateLimits.Login},
		{name: rateLimitGristKey, options: o.RateLimits.GristKey},
		{name: rateLimitGristAPI, options: o.RateLimits.GristAPI},
	}
	for _, limit := range limits {
		if err := limit.options.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("rate limit %s: %w", limit.name, err))
		}
	}

	if o.SessionDuration <= 0 {
		errs = append(errs, errors.New("session duration must be positive"))
	}

	if o.SessionInactivityTimeout < 0 {
		errs = append(errs, errors.New("session inactivity timeout must not be negative"))
	}

	return errors.Join(errs...)
}

// withDefaults fills the options derived from other options.
func (o Options) withDefaults() Options {
	base := strings.TrimSuffix(o.BaseURL, "/")
	if o.ProConnect.RedirectURL == "" && base != "" {
		o.ProConnect.RedirectURL = base + "/api/auth/callback"
	}
	if o.ProConnect.PostLogoutRedirectURL == "" && base != "" {
		o.ProConnect.PostLogoutRedirectURL = base + "/"
	}
	if o.API.RequestTimeout <= 0 {
		o.API.RequestTimeout = time.Minute
	}
	return o
}

// postgresConnectionString builds a connection string from the individual
// options, unless a connection string was given.
func (o DBOptions) postgresConnectionString() string {
	if o.ConnectionString != "" {
		return o.ConnectionString
	}

	var pgConn strings.Builder
	if o.Host != "" {
		fmt.Fprintf(&pgConn, "host=%s ", o.Host)
	}
	if o.Port > 0 {
		fmt.Fprintf(&pgConn, "port=%d ", o.Port)
	}
	if o.Username != "" {
		fmt.Fprintf(&pgConn, "user=%s ", o.Username)
	}
	if o.Password != "" {
		fmt.Fprintf(&pgConn, "password=%s ", o.Password)
	}
	if o.Name != "" {
		fmt.Fprintf(&pgConn, "dbname=%s ", o.Name)
	}
	if o.Parameters != "" {
		pgConn.WriteString(o.Parameters)
	}

	return strings.TrimSpace(pgConn.String())
}
