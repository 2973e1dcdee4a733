package logging

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// routeSamplers holds one burst sampler per method and route, so that a busy
// route does not hide the access logs of the others.
type routeSamplers struct {
	mu       sync.Mutex
	samplers map[[2]string]zerolog.Sampler
}

func (r *routeSamplers) get(method, route string) zerolog.Sampler {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := [2]string{method, route}
	if s, ok := r.samplers[key]; ok {
		return s
	}
	s := &zerolog.BurstSampler{Burst: 1, Period: 7 * time.Second}
	r.samplers[key] = s
	return s
}

// requestLevel is error for failed requests and server errors, warn for
// client errors, and info otherwise.
func requestLevel(c *gin.Context) zerolog.Level {
	status := c.Writer.Status()
	switch {
	case len(c.Errors) > 0, status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// Middleware logs one line per request. When sampling is true, successful
// requests are sampled per method and route; failed requests are always
// logged.
func Middleware(sampling bool) gin.HandlerFunc {
	samplers := &routeSamplers{samplers: map[[2]string]zerolog.Sampler{}}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := requestLevel(c)
		log := *L
		if sampling && level == zerolog.InfoLevel {
			log = log.Sample(samplers.get(c.Request.Method, c.FullPath()))
		}

		errs := make([]error, len(c.Errors))
		for i, e := range c.Errors {
			errs[i] = e.Err
		}

		log.WithLevel(level).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("remoteAddr", c.ClientIP()).
			Str("userAgent", c.Request.UserAgent()).
			Errs("errors", errs).
			Dur("elapsed", time.Since(start)).
			Int("statusCode", c.Writer.Status()).
			Int("size", c.Writer.Size()).
			Msg("")
	}
}
