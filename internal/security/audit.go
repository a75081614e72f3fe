package security

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/shiftlog/internal/app"
	"github.com/charlesng35/shiftlog/internal/models"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

const (
	minSecretBytes         = 32
	recommendedSecretBytes = 48
	maxRecommendedTokenTTL = 24 * time.Hour
	stalePendingAge        = 7 * 24 * time.Hour
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// Failed reports whether any check failed.
func (r Result) Failed() bool {
	return r.Summary[string(StatusFail)] > 0
}

// AuditService evaluates the security posture of a deployment: who can approve
// accounts, how tokens are signed and how long they live.
type AuditService struct {
	db     *gorm.DB
	cfg    *app.Config
	secret string
	now    func() time.Time
}

// NewAuditService constructs the audit service. secret is the effective signing key,
// which may come from persisted settings rather than cfg. Missing inputs degrade the
// affected checks to warnings.
func NewAuditService(db *gorm.DB, cfg *app.Config, secret string) *AuditService {
	return &AuditService{
		db:     db,
		cfg:    cfg,
		secret: strings.TrimSpace(secret),
		now:    time.Now,
	}
}

// WithClock overrides the clock used in results (primarily for testing).
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkValidatedAdmin(ctx),
		s.checkStalePending(ctx),
		s.checkJWTSecret(),
		s.checkTokenTTL(),
		s.checkBootstrapPassword(),
		s.checkRedisTransport(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (s *AuditService) checkValidatedAdmin(ctx context.Context) Check {
	const id = "validated_admin_present"
	if s.db == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Database unavailable, unable to confirm an administrator exists.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ? AND is_validated = ?", models.RoleAdmin, true).
		Count(&count).Error; err != nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not count administrators: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count == 0 {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "No validated administrator exists; pending accounts can never be approved.",
			Remediation: "Set bootstrap.admin_username and bootstrap.admin_password, or promote a user with shiftlog-ctl.",
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: "Validated administrator present.",
		Details: map[string]any{"count": count},
	}
}

func (s *AuditService) checkStalePending(ctx context.Context) Check {
	const id = "stale_pending_accounts"
	if s.db == nil {
		return Check{
			ID:      id,
			Status:  StatusWarn,
			Message: "Database unavailable, unable to inspect pending accounts.",
		}
	}

	cutoff := s.now().Add(-stalePendingAge)
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_validated = ? AND created_at < ?", false, cutoff).
		Count(&count).Error; err != nil {
		return Check{
			ID:      id,
			Status:  StatusWarn,
			Message: fmt.Sprintf("Could not count pending accounts: %v", err),
		}
	}

	if count > 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("%d account(s) have waited more than %s for validation.", count, stalePendingAge),
			Remediation: "Approve or remove stale accounts with shiftlog-ctl users validate.",
			Details:     map[string]any{"count": count},
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: "No stale pending accounts.",
	}
}

func (s *AuditService) checkJWTSecret() Check {
	const id = "jwt_secret_strength"
	length := len(s.secret)

	switch {
	case length == 0:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "Missing JWT signing secret.",
			Remediation: "Start the server once to generate a secret, or set SHIFTLOG_AUTH_JWT_SECRET.",
		}
	case length < minSecretBytes:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: fmt.Sprintf("Use a randomly generated secret of at least %d bytes.", minSecretBytes),
		}
	case length < recommendedSecretBytes:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes. Consider %d+ bytes.", length, recommendedSecretBytes),
			Remediation: "Increase the length of SHIFTLOG_AUTH_JWT_SECRET.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      id,
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func (s *AuditService) checkTokenTTL() Check {
	const id = "access_token_ttl"
	if s.cfg == nil {
		return Check{
			ID:      id,
			Status:  StatusWarn,
			Message: "Configuration not loaded, unable to evaluate token lifetime.",
		}
	}

	ttl := s.cfg.Auth.JWT.TTL
	if ttl > maxRecommendedTokenTTL {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Access token TTL (%s) exceeds one shift day (%s).", ttl, maxRecommendedTokenTTL),
			Remediation: "Lower auth.jwt.access_token_ttl; tokens cannot be revoked before they expire.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Access token TTL is %s.", ttl),
		Details: map[string]any{"ttl": ttl.String()},
	}
}

func (s *AuditService) checkBootstrapPassword() Check {
	const id = "bootstrap_password"
	if s.cfg == nil || s.cfg.Bootstrap.AdminPassword == "" {
		return Check{
			ID:      id,
			Status:  StatusPass,
			Message: "No bootstrap password in configuration.",
		}
	}

	return Check{
		ID:          id,
		Status:      StatusWarn,
		Message:     "Bootstrap administrator password is still present in configuration.",
		Remediation: "Change the administrator password and remove bootstrap.admin_password once seeded.",
	}
}

func (s *AuditService) checkRedisTransport() Check {
	const id = "redis_transport"
	if s.cfg == nil || !s.cfg.Cache.Redis.Enabled {
		return Check{
			ID:      id,
			Status:  StatusPass,
			Message: "Redis disabled.",
		}
	}

	redisCfg := s.cfg.Cache.Redis
	if redisCfg.TLS || isLoopbackAddress(redisCfg.Address) {
		return Check{
			ID:      id,
			Status:  StatusPass,
			Message: "Redis traffic is local or encrypted.",
		}
	}

	return Check{
		ID:          id,
		Status:      StatusWarn,
		Message:     fmt.Sprintf("Redis at %s is reached without TLS; notification payloads travel in clear text.", redisCfg.Address),
		Remediation: "Enable cache.redis.tls or keep Redis on a private network.",
	}
}

func isLoopbackAddress(address string) bool {
	host := strings.TrimSpace(address)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
