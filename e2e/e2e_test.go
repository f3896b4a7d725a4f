//go:build e2e

package e2e

import (
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs the feature files against a live server started with
// BLOODLINK_USER_SEED=e2e/testdata/users.json and the memory backends.
// Acceptances consume donors, so run it against a fresh server.
func TestFeatures(t *testing.T) {
	tc, err := NewTestContext("testdata/users.json")
	if err != nil {
		t.Fatal(err)
	}
	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			RegisterSteps(ctx, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
