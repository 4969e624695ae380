package suggestions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/tracing"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
)

const (
	cachedSuggestionsKeyPrefix = "liftlog-suggestions||"
	regenerateFlagKeyPrefix    = "liftlog-suggestions-regenerate||"
	RefreshChannel             = "liftlog-suggestions-refresh"
	regenerateFlagTTL          = 7 * 24 * time.Hour
	defaultHTTPTimeout         = 3 * time.Second
)

type refreshRequest struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

// Invalidator drops the cached AI suggestions of a user and asks for new ones.
type Invalidator struct {
	redisClient *redis.Client
	refreshURL  string
	httpClient  *http.Client
}

// NewInvalidator creates the invalidator; an empty refreshURL disables the HTTP call.
func NewInvalidator(redisClient *redis.Client, refreshURL string) *Invalidator {
	return &Invalidator{
		redisClient: redisClient,
		refreshURL:  refreshURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultHTTPTimeout,
		},
	}
}

func CachedSuggestionsKey(userID string) string {
	return cachedSuggestionsKeyPrefix + userID
}

func RegenerateFlagKey(userID string) string {
	return regenerateFlagKeyPrefix + userID
}

// SessionCompleted runs every step even if an earlier one fails and returns all errors combined.
func (i *Invalidator) SessionCompleted(ctx context.Context, userID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "suggestions.sessioncompleted")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	if delErr := i.redisClient.Del(ctx, CachedSuggestionsKey(userID)).Err(); delErr != nil {
		err = multierr.Append(err, fmt.Errorf("delete cached suggestions: %w", delErr))
	}
	if setErr := i.redisClient.Set(ctx, RegenerateFlagKey(userID), "1", regenerateFlagTTL).Err(); setErr != nil {
		err = multierr.Append(err, fmt.Errorf("set regenerate flag: %w", setErr))
	}
	if pubErr := i.redisClient.Publish(ctx, RefreshChannel, userID).Err(); pubErr != nil {
		err = multierr.Append(err, fmt.Errorf("publish refresh: %w", pubErr))
	}
	if i.refreshURL != "" {
		if postErr := i.postRefresh(ctx, userID); postErr != nil {
			err = multierr.Append(err, fmt.Errorf("post refresh: %w", postErr))
		}
	}
	return err
}

func (i *Invalidator) postRefresh(ctx context.Context, userID string) error {
	body, err := json.Marshal(refreshRequest{
		UserID: userID,
		Reason: "session_completed",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.refreshURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}
