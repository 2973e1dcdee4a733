package server

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/gristips/gristips/api"
	"github.com/gristips/gristips/internal/ratelimit"
)

const (
	rateLimitLogin    = "login"
	rateLimitGristKey = "grist-key"
	rateLimitGristAPI = "grist-api"
)

// quota is a named limiter, with the options it was created with.
type quota struct {
	name    string
	options ratelimit.Options
	ratelimit.Limiter
}

type rateLimits struct {
	login    quota
	gristKey quota
	gristAPI quota
}

// newRateLimits creates the limiters of the server. The limiters share the
// redis client when there is one, and are kept in memory otherwise.
func newRateLimits(client *redis.Client, options RateLimitOptions) (rateLimits, error) {
	newQuota := func(name string, opts ratelimit.Options) (quota, error) {
		q := quota{name: name, options: opts}
		var err error
		if client != nil {
			q.Limiter, err = ratelimit.NewRedisLimiter(client, name, opts)
		} else {
			q.Limiter, err = ratelimit.NewMemoryLimiter(opts)
		}
		if err != nil {
			return q, fmt.Errorf("rate limit %s: %w", name, err)
		}
		return q, nil
	}

	var limits rateLimits
	var err error
	if limits.login, err = newQuota(rateLimitLogin, options.Login); err != nil {
		return limits, err
	}
	if limits.gristKey, err = newQuota(rateLimitGristKey, options.GristKey); err != nil {
		return limits, err
	}
	if limits.gristAPI, err = newQuota(rateLimitGristAPI, options.GristAPI); err != nil {
		return limits, err
	}
	return limits, nil
}

// check records an operation for key against q.
func (q quota) check(c *gin.Context, key string) error {
	err := ratelimit.Check(c.Request.Context(), q.Limiter, key)
	if err != nil {
		rateLimitDenials.WithLabelValues(q.name).Inc()
		return err
	}
	return nil
}

func (q quota) status(c *gin.Context, key string) (api.RateLimitStatus, error) {
	status, err := q.Status(c.Request.Context(), key)
	if err != nil {
		return api.RateLimitStatus{}, err
	}

	return api.RateLimitStatus{
		Name:      q.name,
		Limit:     q.options.MaxRequests,
		Count:     status.Count,
		Remaining: status.Remaining,
		ResetTime: api.Time(status.ResetTime),
	}, nil
}

func clientKey(c *gin.Context) string {
	return "client:" + c.ClientIP()
}

func userKey(c *gin.Context) string {
	return "user:" + getUser(c).ID.String()
}

// rateLimitMiddleware denies the request when the caller is over the quota.
// key identifies the caller.
func rateLimitMiddleware(q quota, key func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := q.check(c, key(c)); err != nil {
			sendAPIError(c, err)
			return
		}
		c.Next()
	}
}

// ListRateLimits returns the quotas that apply to the caller.
func (a *API) ListRateLimits(c *gin.Context, _ *api.EmptyRequest) (*api.RateLimitsResponse, error) {
	limits := a.server.limits
	checks := []struct {
		quota quota
		key   string
	}{
		{quota: limits.login, key: clientKey(c)},
		{quota: limits.gristKey, key: userKey(c)},
		{quota: limits.gristAPI, key: userKey(c)},
	}

	resp := &api.RateLimitsResponse{Items: make([]api.RateLimitStatus, 0, len(checks))}
	for _, check := range checks {
		status, err := check.quota.status(c, check.key)
		if err != nil {
			return nil, fmt.Errorf("rate limit %s: %w", check.quota.name, err)
		}
		resp.Items = append(resp.Items, status)
	}
	return resp, nil
}
