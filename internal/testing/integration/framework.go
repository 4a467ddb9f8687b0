// Package integration is an end-to-end testing framework for fold's
// indexing/search pipeline: spin up an in-memory store, vector store,
// and worker pool, feed them a fixture project, and assert on the
// resulting memories, links, and search results.
//
// It is a smaller, domain-specific descendant of a much larger
// multi-agent-workflow test harness; the TestCase/Assertion/TestResult
// shape is kept, but Workflow/ExecutionResult is replaced with Scenario/
// Harness, since fold has no agent workflows to execute.
package integration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ferg-cod3s/fold/internal/store"
)

// Scenario is one integration test case run against a Harness.
type Scenario struct {
	Name        string
	Description string
	Timeout     time.Duration
	Run         func(ctx context.Context, h *Harness) error
	Assertions  []Assertion
}

// Assertion checks one property of a Harness after its Scenario has run.
type Assertion interface {
	Assert(h *Harness) error
	Description() string
}

// TestResult is the outcome of running one Scenario.
type TestResult struct {
	Name       string
	Passed     bool
	Duration   time.Duration
	RunError   error
	Assertions []AssertionResult
}

// AssertionResult is the outcome of one Assertion within a TestResult.
type AssertionResult struct {
	Description string
	Passed      bool
	Error       error
}

// SuiteResult aggregates the TestResults of a RunSuite call.
type SuiteResult struct {
	TotalTests  int
	PassedTests int
	FailedTests int
	Results     []*TestResult
	Duration    time.Duration
}

// Framework runs Scenarios against a freshly built Harness each time.
type Framework struct {
	newHarness func() (*Harness, func(), error)
	results    []*TestResult
}

// NewFramework creates a Framework that builds a fresh in-memory Harness
// for every Scenario via NewHarness.
func NewFramework() *Framework {
	return &Framework{newHarness: NewHarness}
}

// Run executes one Scenario against a fresh Harness and records the result.
func (f *Framework) Run(ctx context.Context, s *Scenario) *TestResult {
	result := &TestResult{Name: s.Name}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h, cleanup, err := f.newHarness()
	if err != nil {
		result.RunError = fmt.Errorf("build harness: %w", err)
		f.results = append(f.results, result)
		return result
	}
	defer cleanup()

	start := time.Now()
	runErr := s.Run(runCtx, h)
	result.Duration = time.Since(start)

	if runErr != nil {
		result.RunError = fmt.Errorf("scenario run failed: %w", runErr)
		result.Passed = false
		f.results = append(f.results, result)
		return result
	}

	allPassed := true
	for _, a := range s.Assertions {
		ar := AssertionResult{Description: a.Description(), Passed: true}
		if err := a.Assert(h); err != nil {
			ar.Passed = false
			ar.Error = err
			allPassed = false
		}
		result.Assertions = append(result.Assertions, ar)
	}
	result.Passed = allPassed

	f.results = append(f.results, result)
	return result
}

// RunSuite runs every Scenario in order and aggregates the results.
func (f *Framework) RunSuite(ctx context.Context, scenarios []*Scenario) *SuiteResult {
	suite := &SuiteResult{TotalTests: len(scenarios)}
	start := time.Now()

	for _, s := range scenarios {
		result := f.Run(ctx, s)
		suite.Results = append(suite.Results, result)
		if result.Passed {
			suite.PassedTests++
		} else {
			suite.FailedTests++
		}
	}

	suite.Duration = time.Since(start)
	return suite
}

// Results returns every TestResult recorded so far.
func (f *Framework) Results() []*TestResult {
	return f.results
}

// --- Built-in assertions ---

// MemoryCountAssertion checks the number of memories indexed for a project.
type MemoryCountAssertion struct {
	ProjectID string
	Expected  int
}

func (a *MemoryCountAssertion) Assert(h *Harness) error {
	memories, err := h.Store.ListMemories(context.Background(), a.ProjectID, "")
	if err != nil {
		return fmt.Errorf("list memories: %w", err)
	}
	if len(memories) != a.Expected {
		return fmt.Errorf("expected %d memories, got %d", a.Expected, len(memories))
	}
	return nil
}

func (a *MemoryCountAssertion) Description() string {
	return fmt.Sprintf("project has exactly %d memories", a.Expected)
}

// SearchFindsAssertion checks that searching a project for query surfaces
// a memory whose title or body contains want.
type SearchFindsAssertion struct {
	ProjectID string
	Query     string
	Want      string
}

func (a *SearchFindsAssertion) Assert(h *Harness) error {
	results, err := h.Ranker.Search(context.Background(), a.ProjectID, a.Query, searchParamsDefault())
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	for _, r := range results {
		if strings.Contains(r.Memory.Title, a.Want) || strings.Contains(r.Memory.Body, a.Want) {
			return nil
		}
	}
	return fmt.Errorf("no result for query %q contained %q (got %d results)", a.Query, a.Want, len(results))
}

func (a *SearchFindsAssertion) Description() string {
	return fmt.Sprintf("search(%q) surfaces a memory containing %q", a.Query, a.Want)
}

// JobCompletedAssertion checks that a job reached the completed status.
type JobCompletedAssertion struct {
	JobID string
}

func (a *JobCompletedAssertion) Assert(h *Harness) error {
	job, err := h.Store.GetJob(context.Background(), a.JobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if job.Status != store.JobCompleted {
		return fmt.Errorf("job %s status is %q, expected completed", a.JobID, job.Status)
	}
	return nil
}

func (a *JobCompletedAssertion) Description() string {
	return fmt.Sprintf("job %s completed", a.JobID)
}
