package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/orderdesk/internal/config"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
	"go.uber.org/zap"
)

const keyCheckoutAccount = "checkout:account:%s"

// CheckoutLimiter throttles checkout session creation per account. Without a
// redis client every request is allowed.
type CheckoutLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewCheckoutLimiter(cfg config.Config, bucket *TokenBucket, log *zap.Logger) *CheckoutLimiter {
	return &CheckoutLimiter{
		bucket: bucket,
		rate:   cfg.RateLimit.CheckoutPerMinute / 60,
		burst:  cfg.RateLimit.CheckoutBurst,
		log:    log.Named("ratelimit.checkout"),
	}
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.bucket != nil && l.rate > 0 && l.burst > 0
}

// AllowCheckout reports whether accountID may open another checkout session
// now, and if not, how long it should wait.
func (l *CheckoutLimiter) AllowCheckout(ctx context.Context, accountID snowflake.ID) (bool, time.Duration, error) {
	if !l.Enabled() {
		return true, 0, nil
	}
	result, err := l.bucket.Allow(ctx, fmt.Sprintf(keyCheckoutAccount, accountID.String()), l.rate, l.burst)
	if err != nil {
		return false, 0, err
	}
	if !result.Allowed {
		l.log.Debug("checkout throttled",
			zap.String("account_id", accountID.String()),
			zap.Duration("retry_after", result.RetryAfter),
		)
	}
	return result.Allowed, result.RetryAfter, nil
}

var _ orderdomain.RateLimiter = (*CheckoutLimiter)(nil)
