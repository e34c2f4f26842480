package testsupport

import (
	"time"

	"feedcaster/internal/services"
)

// FastRetry returns a policy with the given attempt budget that never waits.
func FastRetry(attempts int) services.RetryPolicy {
	return services.RetryPolicy{
		Attempts:  attempts,
		BaseDelay: time.Millisecond,
		MaxDelay:  time.Millisecond,
		Sleeper:   func(time.Duration) {},
	}
}
