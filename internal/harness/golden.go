package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

const goldenDir = "testdata/golden"

// RunWithGolden runs s and checks its report against
// testdata/golden/<name>.golden. Pass -update to go test to rewrite the
// file. The error covers only failures to run; a report mismatch fails t.
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(s)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, s.Name, result)
	return result, nil
}

// AssertGolden checks an already computed report.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()
	goldie.New(t, goldie.WithFixtureDir(goldenDir), goldie.WithNameSuffix(".golden")).
		Assert(t, name, []byte(result.Text()))
}
