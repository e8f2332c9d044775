// Package github expands a GitHub repository into its fork network.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v79/github"
	"golang.org/x/time/rate"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// DefaultRequestsPerSecond keeps unauthenticated use under GitHub's secondary limits.
const DefaultRequestsPerSecond = 2

const perPage = 100

// ErrRepositoryLookup indicates the seed repository could not be fetched.
var ErrRepositoryLookup = errors.New("failed to look up GitHub repository")

// Logger is the logging interface needed by the fork network client.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// Client lists fork networks through the GitHub REST API.
type Client struct {
	gh      *gh.Client
	limiter *rate.Limiter
	logger  Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API endpoint, such as a test server
// or GitHub Enterprise.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		if u, err := url.Parse(base); err == nil {
			c.gh.BaseURL = u
		}
	}
}

// WithRateLimit sets the maximum request rate.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewClient creates a Client. An empty token uses anonymous access.
func NewClient(httpClient *http.Client, token string, log Logger, opts ...Option) *Client {
	client := gh.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	c := &Client{
		gh:      client,
		limiter: rate.NewLimiter(DefaultRequestsPerSecond, 1),
		logger:  log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForkNetwork returns clone URLs for the network containing fullName ("owner/repo"):
// the network's source repository first, then forks breadth-first.
// maxForks caps the number of forks; a negative value means no cap and zero
// returns only the source.
func (c *Client) ForkNetwork(ctx context.Context, fullName string, maxForks int) ([]string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(fullName), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRepositoryName, fullName)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	seed, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrRepositoryLookup, fullName, err)
	}

	source := seed
	if seed.GetSource() != nil {
		source = seed.GetSource()
	}
	c.logger.Debug(ctx, "resolved fork network source", map[string]interface{}{
		"repository": fullName,
		"source":     source.GetFullName(),
	})

	urls := []string{source.GetCloneURL()}
	seen := map[int64]bool{source.GetID(): true}
	queue := []*gh.Repository{source}
	remaining := maxForks

	for len(queue) > 0 && remaining != 0 {
		parent := queue[0]
		queue = queue[1:]
		if parent.GetForksCount() == 0 && parent != source {
			continue
		}

		forks, err := c.listForks(ctx, parent, remaining)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// A fork that disappeared or is inaccessible only shrinks the network.
			c.logger.Warn(ctx, "failed to list forks", map[string]interface{}{
				"repository": parent.GetFullName(),
				"error":      err.Error(),
			})
			continue
		}

		for _, fork := range forks {
			if seen[fork.GetID()] || remaining == 0 {
				continue
			}
			seen[fork.GetID()] = true
			urls = append(urls, fork.GetCloneURL())
			queue = append(queue, fork)
			if remaining > 0 {
				remaining--
			}
		}
	}

	return urls, nil
}

// listForks pages through the forks of repo, stopping once limit forks were
// collected (limit < 0 means all).
func (c *Client) listForks(ctx context.Context, repo *gh.Repository, limit int) ([]*gh.Repository, error) {
	opts := &gh.RepositoryListForksOptions{
		Sort:        "oldest",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	owner, name := repo.GetOwner().GetLogin(), repo.GetName()

	var all []*gh.Repository
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, resp, err := c.gh.Repositories.ListForks(ctx, owner, name, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if limit >= 0 && len(all) >= limit {
			return all[:limit], nil
		}
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}
