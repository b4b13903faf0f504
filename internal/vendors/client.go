package vendors

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// newClient builds the outbound HTTP client every adapter shares: base
// URL, timeout, and a per-vendor rate limiter applied before each request
// so a sync burst cannot trip a vendor's API quota.
func newClient(baseURL string, limiter *rate.Limiter) *resty.Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", "solarsync/1.0")

	if limiter != nil {
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	return client
}

// canonicalizeQuery renders query parameters in the fixed sorted form
// signed-request vendors expect: keys ascending, k=v pairs joined by "&",
// values unescaped.
func canonicalizeQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range params[k] {
			pairs = append(pairs, k+"="+v)
		}
	}
	return strings.Join(pairs, "&")
}
