// Package gitsource is the supplemented git-history ingestion feature:
// it walks a project's commit log with go-git and turns each commit into
// a kind=commit Memory, optionally enriched with the merged pull
// request's title and body fetched from the GitHub API. It backs the
// index_history job type (store.JobIndexHistory).
package gitsource

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/google/go-github/v45/github"
	"golang.org/x/oauth2"

	"github.com/ferg-cod3s/fold/internal/embedding"
	"github.com/ferg-cod3s/fold/internal/enrichment"
	"github.com/ferg-cod3s/fold/internal/ferrors"
	"github.com/ferg-cod3s/fold/internal/memoryservice"
	"github.com/ferg-cod3s/fold/internal/store"
)

// mergeCommitPattern matches GitHub's default merge-commit message,
// "Merge pull request #123 from owner/branch".
var mergeCommitPattern = regexp.MustCompile(`Merge pull request #(\d+)`)

// ticketPattern matches common issue-tracker ticket references
// (JIRA-123, ABC-4567) anywhere in a commit message.
var ticketPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)

// Config configures a Source.
type Config struct {
	MaxCommits    int  // 0 means DefaultMaxCommits
	GitHubEnabled bool // fetch PR title/body for merge commits
	GitHubToken   string
}

// DefaultMaxCommits bounds how far back index_history walks when Config
// doesn't specify one (spec.md §10 leaves the exact figure to the
// implementation).
const DefaultMaxCommits = 500

// Source is the git-history ingester.
type Source struct {
	memories *memoryservice.Service
	embedder embedding.Embedder
	cfg      Config
	ghClient func(ctx context.Context) *github.Client
	stories  *enrichment.StoryExtractor
}

// New creates a Source that writes commit memories through memories and
// embeds them with embedder (nil is valid - see memoryservice.AddInput).
func New(memories *memoryservice.Service, embedder embedding.Embedder, cfg Config) *Source {
	if cfg.MaxCommits <= 0 {
		cfg.MaxCommits = DefaultMaxCommits
	}
	return &Source{
		memories: memories,
		embedder: embedder,
		cfg:      cfg,
		ghClient: newGitHubClient(cfg),
		stories:  enrichment.NewStoryExtractor(),
	}
}

func newGitHubClient(cfg Config) func(ctx context.Context) *github.Client {
	if !cfg.GitHubEnabled {
		return nil
	}
	if cfg.GitHubToken == "" {
		return func(ctx context.Context) *github.Client { return github.NewClient(nil) }
	}
	return func(ctx context.Context) *github.Client {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})
		return github.NewClient(oauth2.NewClient(ctx, ts))
	}
}

// Result summarizes one index_history run.
type Result struct {
	Total   int
	Indexed int
	Errors  int
}

// ProgressFunc reports per-commit progress to the caller (the job
// worker, which renews the job's lease and reports it upstream).
type ProgressFunc func(completed, total int)

// IndexHistory walks project's commit log, newest first, up to
// Config.MaxCommits commits, writing one kind=commit memory per commit.
func (s *Source) IndexHistory(ctx context.Context, project store.Project, progress ProgressFunc) (Result, error) {
	repo, err := git.PlainOpen(project.RootPath)
	if err != nil {
		return Result{}, ferrors.Wrap(ferrors.Validation, "gitsource.IndexHistory", "open git repository", err)
	}

	head, err := repo.Head()
	if err != nil {
		return Result{}, ferrors.Wrap(ferrors.Validation, "gitsource.IndexHistory", "resolve HEAD", err)
	}

	commitIter, err := repo.Log(&git.LogOptions{From: head.Hash(), Order: git.LogOrderCommitterTime})
	if err != nil {
		return Result{}, ferrors.Wrap(ferrors.Transient, "gitsource.IndexHistory", "walk commit log", err)
	}

	owner, repoName, hasRemote := parseOwnerRepo(project.RemoteURL)

	var commits []*object.Commit
	_ = commitIter.ForEach(func(c *object.Commit) error {
		if len(commits) >= s.cfg.MaxCommits {
			return storer.ErrStop
		}
		commits = append(commits, c)
		return nil
	})

	result := Result{Total: len(commits)}
	for i, c := range commits {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		body := c.Message
		if s.ghClient != nil && hasRemote {
			if prNumber, ok := mergePRNumber(c.Message); ok {
				if enriched, err := s.fetchPR(ctx, owner, repoName, prNumber); err == nil {
					body = body + "\n\n" + enriched
				}
			}
		}

		title := firstLine(c.Message)
		author := c.Author.Name
		when := c.Author.When

		_, err := s.memories.Add(ctx, memoryservice.AddInput{
			Project:      project,
			Kind:         store.KindCommit,
			Source:       store.SourceGit,
			Title:        title,
			Author:       author,
			Tags:         s.tagsFor(c.Message),
			Context:      c.Hash.String(),
			Body:         body,
			ContentHash:  c.Hash.String(),
			OriginalDate: &when,
			Embedder:     s.embedder,
		})
		if err != nil {
			result.Errors++
		} else {
			result.Indexed++
		}

		if progress != nil {
			progress(i+1, len(commits))
		}
	}

	return result, nil
}

// tagsFor combines the plain ticket-ID pattern with the enrichment
// package's issue/PR/branch reference extraction, deduplicating since
// the two often yield the same value (e.g. "PROJ-456" is both a ticket
// and a branch reference, and "#123" is both an issue and a PR reference).
func (s *Source) tagsFor(message string) []string {
	seen := make(map[string]bool)
	var tags []string
	add := func(v string) {
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		tags = append(tags, v)
	}

	for _, t := range ticketPattern.FindAllString(message, -1) {
		add(t)
	}
	for _, refs := range s.stories.ExtractStoryReferences(message) {
		for _, r := range refs {
			add(r)
		}
	}
	return tags
}

func (s *Source) fetchPR(ctx context.Context, owner, repo string, number int) (string, error) {
	client := s.ghClient(ctx)
	pr, _, err := client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PR #%d: %s\n%s", pr.GetNumber(), pr.GetTitle(), pr.GetBody()), nil
}

func mergePRNumber(message string) (int, bool) {
	m := mergeCommitPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

// parseOwnerRepo extracts the owner/repo pair from a GitHub remote URL,
// handling both the https and ssh forms git remote -v prints.
func parseOwnerRepo(remoteURL string) (owner, repo string, ok bool) {
	u := strings.TrimSuffix(remoteURL, ".git")
	switch {
	case strings.Contains(u, "github.com/"):
		u = u[strings.Index(u, "github.com/")+len("github.com/"):]
	case strings.Contains(u, "github.com:"):
		u = u[strings.Index(u, "github.com:")+len("github.com:"):]
	default:
		return "", "", false
	}
	parts := strings.SplitN(u, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
