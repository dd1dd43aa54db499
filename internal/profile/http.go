package profile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	commonhttp "welfare-recommender/internal/common/http"
	"welfare-recommender/internal/common/logger"
	"welfare-recommender/internal/common/metrics"
	"welfare-recommender/internal/models"

	"github.com/sony/gobreaker/v2"
)

// BreakerSettings configure the circuit breaker around the profile service.
type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

const breakerName = "profile-service"

// errCallerDone marks failures caused by the caller giving up, for example
// when a sibling fetch fails and cancels the shared context.
var errCallerDone = errors.New("caller context done")

// HTTPClient fetches profiles from the profile service at
// GET {baseURL}/profiles/{userID}. Unknown users (404) do not count as
// breaker failures.
type HTTPClient struct {
	baseURL string
	client  *commonhttp.Client
	cb      *gobreaker.CircuitBreaker[*models.Profile]
	logger  logger.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, breaker BreakerSettings, log logger.Logger) *HTTPClient {
	if breaker.MaxFailures == 0 {
		breaker.MaxFailures = 5
	}
	if breaker.OpenTimeout <= 0 {
		breaker.OpenTimeout = 30 * time.Second
	}

	log = log.WithFields(map[string]interface{}{"component": "profile-http"})
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[*models.Profile](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breaker.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, models.ErrProfileNotFound)
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, errCallerDone) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  commonhttp.NewClient(timeout),
		cb:      cb,
		logger:  log,
	}
}

func (c *HTTPClient) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := c.cb.Execute(func() (*models.Profile, error) {
		p, err := c.fetch(ctx, userID)
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCallerDone, err)
		}
		return p, err
	})

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
		return nil, fmt.Errorf("profile service unavailable: %w", err)
	case errors.Is(err, models.ErrProfileNotFound):
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	case errors.Is(err, errCallerDone), errors.Is(err, context.Canceled):
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "cancelled").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
	}
	return p, err
}

func (c *HTTPClient) fetch(ctx context.Context, userID string) (*models.Profile, error) {
	endpoint := fmt.Sprintf("%s/profiles/%s", c.baseURL, url.PathEscape(userID))

	var p models.Profile
	err := c.client.GetJSON(ctx, endpoint, &p)
	if err != nil {
		var statusErr *commonhttp.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, models.ErrProfileNotFound
		}
		return nil, fmt.Errorf("fetch profile %s: %w", userID, err)
	}

	if p.UserID == "" {
		p.UserID = userID
	}
	if p.Attributes == nil {
		p.Attributes = models.Attributes{}
	}
	return &p, nil
}

// State reports the breaker state for readiness checks.
func (c *HTTPClient) State() gobreaker.State {
	return c.cb.State()
}
