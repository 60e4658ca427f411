package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-core/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// BucketHeader is the S3 call used to probe the export bucket.
type BucketHeader interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// HealthChecker reports on the server's dependencies. Any dependency can be
// nil; its check then reports "not configured".
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	s3Client    BucketHeader
	s3Bucket    string
	startTime   time.Time
}

func NewHealthChecker(db *sql.DB, redisClient *redis.Client, s3Client BucketHeader, s3Bucket string) *HealthChecker {
	return &HealthChecker{
		db:          db,
		redisClient: redisClient,
		s3Client:    s3Client,
		s3Bucket:    s3Bucket,
		startTime:   time.Now(),
	}
}

const (
	healthVersion  = "1.0.0"
	notConfigured  = "not configured"
	staleFireAfter = 24 * time.Hour
)

// HandleHealth returns the status of every component. It always answers
// 200; use /health/ready for probes that need a 503.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness always returns 200 while the process runs.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 when a critical dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

// ---------------------------------------------------------------------------
// Component probes
// ---------------------------------------------------------------------------

// probe is one dependency check. timeout bounds the call and calls slower
// than slow report degraded. soft probes are downgraded from down to
// degraded since the API can serve without them.
type probe struct {
	name       string
	configured bool
	timeout    time.Duration
	slow       time.Duration
	soft       bool
	run        func(context.Context) (string, error)
}

func (hc *HealthChecker) probes() []probe {
	return []probe{
		{name: "database", configured: hc.db != nil, timeout: 3 * time.Second, slow: time.Second, run: hc.pingDatabase},
		{name: "redis", configured: hc.redisClient != nil, timeout: 2 * time.Second, slow: 500 * time.Millisecond, run: hc.pingRedis},
		{name: "s3", configured: hc.s3Client != nil && hc.s3Bucket != "", timeout: 3 * time.Second, slow: 2 * time.Second, run: hc.headBucket},
		{name: "scheduler", configured: hc.db != nil, timeout: 3 * time.Second, slow: time.Second, soft: true, run: hc.lastFire},
	}
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	probes := hc.probes()
	checks := make(map[string]ComponentCheck, len(probes))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, p := range probes {
		wg.Add(1)
		go func(p probe) {
			defer wg.Done()
			c := p.check(ctx)
			mu.Lock()
			checks[p.name] = c
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return checks
}

func (p probe) check(ctx context.Context) ComponentCheck {
	if !p.configured {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	msg, err := p.run(ctx)
	latency := time.Since(start)

	c := ComponentCheck{Status: "up", Latency: latency.String(), Message: msg}
	switch {
	case err != nil && p.soft:
		c.Status, c.Message = "degraded", err.Error()
	case err != nil:
		c.Status, c.Message = "down", err.Error()
	case latency > p.slow:
		c.Status, c.Message = "degraded", fmt.Sprintf("slow response (%s)", latency)
	}
	return c
}

func (hc *HealthChecker) pingDatabase(ctx context.Context) (string, error) {
	if err := hc.db.PingContext(ctx); err != nil {
		return "", fmt.Errorf("ping failed: %v", err)
	}
	return "connected", nil
}

func (hc *HealthChecker) pingRedis(ctx context.Context) (string, error) {
	if err := hc.redisClient.Ping(ctx).Err(); err != nil {
		return "", fmt.Errorf("ping failed: %v", err)
	}
	return "connected", nil
}

func (hc *HealthChecker) headBucket(ctx context.Context) (string, error) {
	if _, err := hc.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &hc.s3Bucket}); err != nil {
		return "", fmt.Errorf("HeadBucket failed: %v", err)
	}
	return fmt.Sprintf("bucket %q accessible", hc.s3Bucket), nil
}

// lastFire reports the age of the most recent dispatched fire. Rules fire
// at most daily in practice, so a day without fires is degraded.
func (hc *HealthChecker) lastFire(ctx context.Context) (string, error) {
	var last sql.NullTime
	if err := hc.db.QueryRowContext(ctx, `SELECT MAX(dispatched_at) FROM schedule_fires`).Scan(&last); err != nil {
		return "", fmt.Errorf("fire log check failed: %v", err)
	}
	if !last.Valid {
		return "no fires recorded", nil
	}
	age := time.Since(last.Time)
	if age > staleFireAfter {
		return "", fmt.Errorf("last fire %s ago", age.Round(time.Minute))
	}
	return fmt.Sprintf("last fire %s ago", age.Round(time.Second)), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// determineOverallStatus is unhealthy when a configured database is down,
// degraded when any other configured check is not up, and healthy
// otherwise.
func determineOverallStatus(checks map[string]ComponentCheck) string {
	overall := "healthy"
	for name, c := range checks {
		if c.Status == "up" || c.Message == notConfigured {
			continue
		}
		if name == "database" && c.Status == "down" {
			return "unhealthy"
		}
		overall = "degraded"
	}
	return overall
}

// formatUptime renders d as "3d 4h 12m 5s", dropping leading zero units.
func formatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	parts := []struct {
		n    int64
		unit string
	}{
		{total / 86400, "d"},
		{total / 3600 % 24, "h"},
		{total / 60 % 60, "m"},
		{total % 60, "s"},
	}
	i := 0
	for i < len(parts)-1 && parts[i].n == 0 {
		i++
	}
	out := make([]string, 0, len(parts)-i)
	for _, p := range parts[i:] {
		out = append(out, fmt.Sprintf("%d%s", p.n, p.unit))
	}
	return strings.Join(out, " ")
}
