//go:build integration
// +build integration

package integration

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jwebster45206/loot-list/integration/runner"
)

var caseFlag = flag.String("case", "", "Name of test case to run (from integration/cases/)")
var errFlag = flag.String("err", "continue", "Error handling mode: 'continue' (run all steps) or 'exit' (stop on first failure)")
var runsFlag = flag.Int("runs", 1, "Number of times to run each test suite (useful for testing dice formulas)")

func TestMain(m *testing.M) {
	fmt.Printf("Running Loot List Integration Tests\n")
	fmt.Printf("   API Base URL: %s\n", apiBaseURL())

	code := m.Run()
	os.Exit(code)
}

func TestIntegrationSuites(t *testing.T) {
	testRunner := newRunner(runner.ErrorHandlingContinue)

	testFiles, err := discoverTestFiles("cases")
	if err != nil {
		t.Fatalf("Failed to discover test files: %v", err)
	}
	if len(testFiles) == 0 {
		t.Fatal("No test files found in cases directory")
	}

	var jobs []runner.TestJob
	for _, file := range testFiles {
		expandedJobs, err := runner.LoadTestSuiteWithExpansion(file, "cases")
		if err != nil {
			t.Errorf("Failed to load test suite %s: %v", file, err)
			continue
		}
		jobs = append(jobs, expandedJobs...)
	}
	if len(jobs) == 0 {
		t.Fatal("No valid test suites loaded")
	}

	t.Logf("Loaded %d test suites", len(jobs))
	runJobs(t, testRunner, jobs, 1)
}

func TestSingleSuite(t *testing.T) {
	if *caseFlag == "" {
		t.Skip("Use -case flag to specify test case(s), e.g. -case=grant_basic or -case=grant_basic,drop_rules")
	}
	if *errFlag != string(runner.ErrorHandlingExit) && *errFlag != string(runner.ErrorHandlingContinue) {
		t.Fatalf("Invalid -err flag value: %s (must be 'exit' or 'continue')", *errFlag)
	}

	var jobs []runner.TestJob
	for _, name := range strings.Split(*caseFlag, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !strings.HasSuffix(name, ".json") {
			name += ".json"
		}
		expanded, err := runner.LoadTestSuiteWithExpansion(filepath.Join("cases", name), "cases")
		if err != nil {
			t.Fatalf("Failed to load test case %s: %v", name, err)
		}
		jobs = append(jobs, expanded...)
	}
	if len(jobs) == 0 {
		t.Fatalf("No valid test cases found in -case flag: %s", *caseFlag)
	}

	runs := *runsFlag
	if runs < 1 {
		runs = 1
	}
	runJobs(t, newRunner(runner.ErrorHandlingMode(*errFlag)), jobs, runs)
}

func newRunner(mode runner.ErrorHandlingMode) *runner.Runner {
	r := runner.NewRunner(apiBaseURL())
	r.Timeout = time.Duration(getIntEnv("TEST_TIMEOUT_SECONDS", 30)) * time.Second
	r.ErrorHandlingMode = mode
	r.Logger = func(format string, args ...interface{}) {
		fmt.Printf(format+"\n", args...)
	}
	return r
}

// runJobs runs every job sequentially, runs times, and reports failures per case
func runJobs(t *testing.T, testRunner *runner.Runner, jobs []runner.TestJob, runs int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var allFailures []failureDetail
	totalTests := 0
	for run := 1; run <= runs; run++ {
		for i, job := range jobs {
			t.Logf("[%d/%d] Starting test suite: %s (%d steps, run %d)", i+1, len(jobs), job.Name, len(job.Suite.Steps), run)
			totalTests++

			result, err := testRunner.RunSuite(ctx, job.Suite)
			if err != nil && result.Error == nil {
				result.Error = err
			}
			t.Logf("Session ID: %s", result.SessionID)

			if result.Error == nil {
				t.Logf("[%d/%d] PASSED: Test suite '%s' completed in %v", i+1, len(jobs), job.Name, result.Duration)
				continue
			}

			t.Errorf("[%d/%d] FAILED: Test suite '%s' failed: %v", i+1, len(jobs), job.Name, result.Error)
			for _, step := range result.Results {
				if step.Error != nil {
					allFailures = append(allFailures, failureDetail{
						caseName: job.Name,
						stepName: step.StepName,
						error:    step.Error.Error(),
						run:      run,
					})
				}
			}
			if testRunner.ErrorHandlingMode == runner.ErrorHandlingExit {
				t.Log(buildFailureReport(allFailures, totalTests))
				return
			}
		}
	}

	if len(allFailures) > 0 {
		t.Log(buildFailureReport(allFailures, totalTests))
	}
}

func buildFailureReport(allFailures []failureDetail, totalTests int) string {
	var sb strings.Builder

	sb.WriteString("\n========================================\n")
	sb.WriteString("Detailed Failure Report\n")
	sb.WriteString("========================================\n")
	sb.WriteString(fmt.Sprintf("\nSuite runs: %d, step failures: %d\n", totalTests, len(allFailures)))

	failuresByCase := make(map[string][]failureDetail)
	for _, failure := range allFailures {
		failuresByCase[failure.caseName] = append(failuresByCase[failure.caseName], failure)
	}

	var caseNames []string
	for caseName := range failuresByCase {
		caseNames = append(caseNames, caseName)
	}
	sort.Strings(caseNames)

	for _, caseName := range caseNames {
		failures := failuresByCase[caseName]
		sb.WriteString(fmt.Sprintf("\n%s (%d step failure(s)):\n", caseName, len(failures)))
		for _, fail := range failures {
			sb.WriteString(fmt.Sprintf("  ✗ %s (run %d):\n", fail.stepName, fail.run))
			sb.WriteString(fmt.Sprintf("      %s\n", fail.error))
		}
	}
	sb.WriteString("\n========================================\n")
	return sb.String()
}

// failureDetail tracks information about a specific step failure
type failureDetail struct {
	caseName string
	stepName string
	error    string
	run      int
}

// Helper functions

func apiBaseURL() string {
	if url := os.Getenv("API_BASE_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func discoverTestFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".json") {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

func getIntEnv(name string, defaultValue int) int {
	str := os.Getenv(name)
	if str == "" {
		return defaultValue
	}

	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultValue
	}

	return val
}
