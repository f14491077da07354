// Package reddit fetches a post through the public .json view of its URL.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/forPelevin/storyreel/internal/ports/adapters/apierr"
	"github.com/forPelevin/storyreel/internal/types"
)

const (
	userAgent      = "storyreel/1.0 (reddit story narrator)"
	requestTimeout = 10 * time.Second
	rateLimitWait  = 5 * time.Second
)

type Source struct {
	http  *http.Client
	retry func() backoff.BackOff
}

func New() *Source {
	return &Source{
		http: &http.Client{Timeout: requestTimeout},
		// One more attempt after a rate limit.
		retry: func() backoff.BackOff { return backoff.WithMaxRetries(backoff.NewConstantBackOff(rateLimitWait), 1) },
	}
}

func (s *Source) Fetch(ctx context.Context, locator string) (types.Post, error) {
	endpoint, err := JSONURL(locator)
	if err != nil {
		return types.Post{}, err
	}

	var listing []struct {
		Data struct {
			Children []struct {
				Data types.Post `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", userAgent)
		resp, err := s.http.Do(req)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			return apierr.FromResponse("reddit", resp)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(&apierr.StatusError{Service: "reddit", Code: resp.StatusCode})
		}
		if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
			return backoff.Permanent(fmt.Errorf("reddit: decode %s: %w", endpoint, err))
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(s.retry(), ctx)); err != nil {
		return types.Post{}, err
	}

	if len(listing) == 0 || len(listing[0].Data.Children) == 0 {
		return types.Post{}, errors.New("reddit: response has no post")
	}
	post := listing[0].Data.Children[0].Data
	if strings.TrimSpace(post.Title) == "" && strings.TrimSpace(post.Body) == "" {
		return types.Post{}, errors.New("reddit: post has no text")
	}
	return post, nil
}

// JSONURL turns a post URL into its .json view.
func JSONURL(locator string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return "", fmt.Errorf("invalid post url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" || u.Host == "" {
		return "", fmt.Errorf("invalid post url %q: absolute http(s) URL required", locator)
	}
	u.RawQuery, u.Fragment = "", ""
	if !strings.HasSuffix(u.Path, ".json") {
		u.Path = strings.TrimRight(u.Path, "/") + ".json"
	}
	return u.String(), nil
}
