package web

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ScrapedPage is the cleaned text of one successfully fetched URL.
type ScrapedPage struct {
	URL     string
	Content string
}

// ScrapeAll fetches the given URLs concurrently through a bounded worker
// pool. Each fetch gets its own timeout so one hanging site cannot stall
// the batch; individual failures are logged and dropped. Results keep the
// input order of the URLs that succeeded.
func ScrapeAll(ctx context.Context, provider ContentProvider, urls []string, workers int, fetchTimeout time.Duration, logger *zap.Logger) []ScrapedPage {
	if workers <= 0 {
		workers = 1
	}

	pages := make([]*ScrapedPage, len(urls))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, pageURL := range urls {
		wg.Add(1)
		go func(i int, pageURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
			defer cancel()

			content, err := provider.FetchPage(fetchCtx, pageURL)
			if err != nil {
				logger.Debug("Page fetch failed", zap.String("url", pageURL), zap.Error(err))
				return
			}
			pages[i] = &ScrapedPage{URL: pageURL, Content: content}
		}(i, pageURL)
	}
	wg.Wait()

	out := make([]ScrapedPage, 0, len(urls))
	for _, p := range pages {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}
