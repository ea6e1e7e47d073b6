// Package resilience groups the fault tolerance primitives used around
// every external call: feed hosts, article pages and the LLM provider.
//
//	err := retry.WithBackoff(ctx, retry.FeedFetchConfig(), func() error {
//	    _, err := circuitbreaker.Do(b, func() (*entity.Feed, error) { ... })
//	    if errors.Is(err, circuitbreaker.ErrOpen) {
//	        return retry.Permanent(err)
//	    }
//	    return err
//	})
package resilience
