package exec

import (
	"testing"
)

func TestParseTestOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		passed int
		failed int
		total  int
	}{
		{
			name:   "jest",
			output: "Test Suites: 1 failed, 2 passed, 3 total\nTests:       2 failed, 10 passed, 12 total\nTime: 1s",
			passed: 10, failed: 2, total: 12,
		},
		{
			name:   "jest all passing",
			output: "Tests:       7 passed, 7 total",
			passed: 7, total: 7,
		},
		{
			name:   "go test verbose",
			output: "=== RUN   TestA\n--- PASS: TestA (0.00s)\n=== RUN   TestB\n--- FAIL: TestB (0.00s)\n    --- PASS: TestB/sub (0.00s)\nFAIL\nFAIL\tpkg\t0.01s",
			passed: 2, failed: 1, total: 3,
		},
		{
			name:   "go test packages",
			output: "ok  \texample.com/a\t0.01s\nok  \texample.com/b\t0.02s\nFAIL\texample.com/c\t0.03s\n",
			passed: 2, failed: 1, total: 3,
		},
		{
			name:   "go test packages with a failing test",
			output: "ok  \texample.com/a\t0.01s\nok  \texample.com/b\t(cached)\nok  \texample.com/c\t0.02s\n--- FAIL: TestX (0.00s)\n    x_test.go:12: boom\nFAIL\nFAIL\texample.com/d\t0.01s\nFAIL\n",
			passed: 3, failed: 1, total: 4,
		},
		{
			name:   "go test failure without package line",
			output: "--- FAIL: TestX (0.00s)\n--- FAIL: TestY (0.00s)\n",
			failed: 2, total: 2,
		},
		{
			name:   "mocha",
			output: "  14 passing (2s)\n  3 failing\n",
			passed: 14, failed: 3, total: 17,
		},
		{
			name:   "pytest",
			output: "========== 8 passed, 1 failed in 0.12s ==========",
			passed: 8, failed: 1, total: 9,
		},
		{
			name:   "unknown",
			output: "all good",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTestOutput(tt.output)
			if got.Passed != tt.passed || got.Failed != tt.failed || got.Total != tt.total {
				t.Errorf("ParseTestOutput() = %d/%d/%d, want %d/%d/%d",
					got.Passed, got.Failed, got.Total, tt.passed, tt.failed, tt.total)
			}
			if got.Output != tt.output {
				t.Errorf("Output not preserved")
			}
		})
	}
}
