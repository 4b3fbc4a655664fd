// Package github implements the GitHubLoader port using the go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
	"golang.org/x/sync/errgroup"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/prmonitor/internal/application"
	"github.com/ericfisherdev/prmonitor/internal/domain/model"
	"github.com/ericfisherdev/prmonitor/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.GitHubLoader = (*Loader)(nil)

// fetchConcurrency bounds the number of pull requests fetched in parallel.
const fetchConcurrency = 4

// Loader implements the driven.GitHubLoader port. It keeps one API client for
// the most recently used token and builds a new one when the token changes.
type Loader struct {
	baseURL       *url.URL // nil means api.github.com.
	newHTTPClient func() *http.Client
	now           func() time.Time

	mu     sync.Mutex
	token  string
	client *gh.Client
}

// NewLoader creates a Loader. Each client uses the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
//
// baseURL selects a GitHub Enterprise API root; empty means api.github.com.
func NewLoader(baseURL string) (*Loader, error) {
	return newLoader(func() *http.Client {
		return github_ratelimit.NewClient(httpcache.NewMemoryCacheTransport())
	}, baseURL)
}

// NewLoaderWithHTTPClient creates a Loader with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewLoaderWithHTTPClient(httpClient *http.Client, baseURL string) (*Loader, error) {
	return newLoader(func() *http.Client { return httpClient }, baseURL)
}

func newLoader(newHTTPClient func() *http.Client, baseURL string) (*Loader, error) {
	l := &Loader{newHTTPClient: newHTTPClient, now: time.Now}
	if baseURL == "" {
		return l, nil
	}

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	l.baseURL = u
	return l, nil
}

// clientFor returns the client for token, replacing the cached one when the
// token changed. The HTTP cache is never shared between tokens.
func (l *Loader) clientFor(token string) *gh.Client {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil && l.token == token {
		return l.client
	}

	client := gh.NewClient(l.newHTTPClient()).WithAuthToken(token)
	if l.baseURL != nil {
		client.BaseURL = l.baseURL
	}
	l.token = token
	l.client = client
	return client
}

// searchHit is one open pull request found by the search API.
type searchHit struct {
	ref       model.PullRequestRef
	updatedAt time.Time
}

// Load resolves the viewer, finds every open pull request they are involved
// in or asked to review, and fetches the details of each one. Pull requests
// in ignored repositories are skipped. Entries of previous whose update time
// is unchanged are reused without further requests.
func (l *Loader) Load(ctx context.Context, token string, mutes model.MuteConfiguration, previous *model.LoadedState) (*model.LoadedState, error) {
	start := l.now()
	client := l.clientFor(token)

	user, resp, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("resolving viewer: %w", err)
	}
	logRateLimit(resp, "user", 0, 1)
	login := user.GetLogin()

	involved, err := searchPullRequests(ctx, client, "involves:"+login)
	if err != nil {
		return nil, err
	}
	requested, err := searchPullRequests(ctx, client, "review-requested:"+login)
	if err != nil {
		return nil, err
	}

	requestedRefs := make(map[model.PullRequestRef]struct{}, len(requested))
	for _, hit := range requested {
		requestedRefs[hit.ref] = struct{}{}
	}

	hits := mergeHits(involved, requested)
	kept := hits[:0]
	for _, hit := range hits {
		probe := model.PullRequest{RepoOwner: hit.ref.Owner, RepoName: hit.ref.Name}
		if application.IsIgnored(probe, mutes) {
			continue
		}
		kept = append(kept, hit)
	}

	reusable := make(map[model.PullRequestRef]model.PullRequest)
	if previous != nil {
		for _, pr := range previous.PullRequests {
			reusable[pr.Ref()] = pr
		}
	}

	prs := make([]model.PullRequest, len(kept))
	reused := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, hit := range kept {
		_, isRequested := requestedRefs[hit.ref]

		if prior, ok := reusable[hit.ref]; ok && prior.UpdatedAt.Equal(hit.updatedAt) {
			prior.ReviewRequested = isRequested || containsFold(prior.RequestedReviewers, login)
			prs[i] = prior
			reused++
			continue
		}

		g.Go(func() error {
			pr, err := fetchPullRequest(gctx, client, hit.ref)
			if err != nil {
				return err
			}
			pr.ReviewRequested = isRequested || containsFold(pr.RequestedReviewers, login)
			prs[i] = pr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Info("pull requests loaded",
		"viewer", login,
		"count", len(prs),
		"reused", reused,
		"skipped_ignored", len(hits)-len(kept),
		"duration", l.now().Sub(start).Round(time.Millisecond),
	)

	return &model.LoadedState{
		ViewerLogin:           login,
		PullRequests:          prs,
		StartRefreshTimestamp: start,
	}, nil
}

// searchPullRequests returns the open, non-archived pull requests matching
// qualifier. It handles pagination automatically.
func searchPullRequests(ctx context.Context, client *gh.Client, qualifier string) ([]searchHit, error) {
	query := "is:pr is:open archived:false " + qualifier
	opts := &gh.SearchOptions{
		Sort:        "updated",
		Order:       "desc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var hits []searchHit

	for {
		result, resp, err := client.Search.Issues(ctx, query, opts)
		if err != nil {
			return nil, fmt.Errorf("searching %q (page %d): %w", qualifier, opts.Page, err)
		}

		logRateLimit(resp, "search "+qualifier, opts.Page, len(result.Issues))

		for _, issue := range result.Issues {
			owner, name, err := repoFromURL(issue.GetRepositoryURL())
			if err != nil {
				return nil, err
			}
			hits = append(hits, searchHit{
				ref:       model.PullRequestRef{Owner: owner, Name: name, Number: issue.GetNumber()},
				updatedAt: issue.GetUpdatedAt().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return hits, nil
}

// mergeHits concatenates both result lists, dropping repeated pull requests.
func mergeHits(lists ...[]searchHit) []searchHit {
	seen := make(map[model.PullRequestRef]struct{})
	var out []searchHit
	for _, list := range lists {
		for _, hit := range list {
			if _, ok := seen[hit.ref]; ok {
				continue
			}
			seen[hit.ref] = struct{}{}
			out = append(out, hit)
		}
	}
	return out
}

// fetchPullRequest retrieves one pull request with its reviews, comments and
// commits. The four requests run concurrently.
func fetchPullRequest(ctx context.Context, client *gh.Client, ref model.PullRequestRef) (model.PullRequest, error) {
	var (
		detail   *gh.PullRequest
		reviews  []model.Review
		comments []model.Comment
		commits  []model.Commit
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pr, resp, err := client.PullRequests.Get(gctx, ref.Owner, ref.Name, ref.Number)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", ref, err)
		}
		logRateLimit(resp, ref.String(), 0, 1)
		detail = pr
		return nil
	})
	g.Go(func() (err error) {
		reviews, err = fetchReviews(gctx, client, ref)
		return err
	})
	g.Go(func() (err error) {
		comments, err = fetchComments(gctx, client, ref)
		return err
	})
	g.Go(func() (err error) {
		commits, err = fetchCommits(gctx, client, ref)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.PullRequest{}, err
	}

	pr := mapPullRequest(detail, ref)
	pr.Reviews = reviews
	pr.Comments = comments
	pr.Commits = commits
	return pr, nil
}

// fetchReviews retrieves all reviews for a pull request.
func fetchReviews(ctx context.Context, client *gh.Client, ref model.PullRequestRef) ([]model.Review, error) {
	opts := &gh.ListOptions{PerPage: 100}
	allReviews := []model.Review{}

	for {
		reviews, resp, err := client.PullRequests.ListReviews(ctx, ref.Owner, ref.Name, ref.Number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing reviews for %s (page %d): %w", ref, opts.Page, err)
		}

		for _, r := range reviews {
			allReviews = append(allReviews, mapReview(r))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allReviews, nil
}

// fetchComments retrieves all PR-level comments (from the Issues API).
func fetchComments(ctx context.Context, client *gh.Client, ref model.PullRequestRef) ([]model.Comment, error) {
	opts := &gh.IssueListCommentsOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	allComments := []model.Comment{}

	for {
		comments, resp, err := client.Issues.ListComments(ctx, ref.Owner, ref.Name, ref.Number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing comments for %s (page %d): %w", ref, opts.Page, err)
		}

		for _, c := range comments {
			allComments = append(allComments, model.Comment{
				Author:    c.GetUser().GetLogin(),
				CreatedAt: c.GetCreatedAt().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allComments, nil
}

// fetchCommits retrieves the commits on the pull request's head branch.
func fetchCommits(ctx context.Context, client *gh.Client, ref model.PullRequestRef) ([]model.Commit, error) {
	opts := &gh.ListOptions{PerPage: 100}
	allCommits := []model.Commit{}

	for {
		commits, resp, err := client.PullRequests.ListCommits(ctx, ref.Owner, ref.Name, ref.Number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing commits for %s (page %d): %w", ref, opts.Page, err)
		}

		for _, c := range commits {
			allCommits = append(allCommits, mapCommit(c))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allCommits, nil
}

// mapPullRequest converts a go-github PullRequest to a domain model PullRequest.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapPullRequest(pr *gh.PullRequest, ref model.PullRequestRef) model.PullRequest {
	reviewers := make([]string, 0, len(pr.RequestedReviewers))
	for _, r := range pr.RequestedReviewers {
		reviewers = append(reviewers, r.GetLogin())
	}

	teams := make([]string, 0, len(pr.RequestedTeams))
	for _, t := range pr.RequestedTeams {
		teams = append(teams, t.GetSlug())
	}

	return model.PullRequest{
		RepoOwner:          ref.Owner,
		RepoName:           ref.Name,
		Number:             ref.Number,
		NodeID:             pr.GetNodeID(),
		URL:                pr.GetHTMLURL(),
		Title:              pr.GetTitle(),
		Author:             pr.GetUser().GetLogin(),
		Draft:              pr.GetDraft(),
		Mergeable:          pr.GetMergeable(),
		UpdatedAt:          pr.GetUpdatedAt().Time,
		RequestedReviewers: reviewers,
		RequestedTeams:     teams,
	}
}

// mapReview converts a go-github PullRequestReview to a domain model Review.
// SubmittedAt stays nil for reviews GitHub has not reported as submitted.
func mapReview(r *gh.PullRequestReview) model.Review {
	review := model.Review{
		Author: r.GetUser().GetLogin(),
		State:  model.ReviewState(strings.ToUpper(r.GetState())),
	}
	if r.SubmittedAt != nil {
		submitted := r.GetSubmittedAt().Time
		review.SubmittedAt = &submitted
	}
	return review
}

// mapCommit converts a go-github RepositoryCommit to a domain model Commit.
// Commits by emails unknown to GitHub fall back to the git author name.
func mapCommit(c *gh.RepositoryCommit) model.Commit {
	author := c.GetAuthor().GetLogin()
	if author == "" {
		author = c.GetCommit().GetAuthor().GetName()
	}

	committedAt := c.GetCommit().GetCommitter().GetDate().Time
	if committedAt.IsZero() {
		committedAt = c.GetCommit().GetAuthor().GetDate().Time
	}

	return model.Commit{
		SHA:         c.GetSHA(),
		Author:      author,
		CommittedAt: committedAt,
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// repoFromURL extracts owner and name from an API repository URL such as
// https://api.github.com/repos/owner/name.
func repoFromURL(repositoryURL string) (string, string, error) {
	idx := strings.LastIndex(repositoryURL, "/repos/")
	if idx < 0 {
		return "", "", fmt.Errorf("invalid repository URL %q", repositoryURL)
	}
	return splitRepo(repositoryURL[idx+len("/repos/"):])
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(parts[1], "/") {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}

func containsFold(logins []string, login string) bool {
	for _, l := range logins {
		if strings.EqualFold(l, login) {
			return true
		}
	}
	return false
}
