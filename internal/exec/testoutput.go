package exec

import (
	"regexp"
	"strconv"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

const maxTestOutput = 2000

var (
	jestSummary  = regexp.MustCompile(`(?m)^Tests:\s+(.*\d+\s+total.*)$`)
	countPassed  = regexp.MustCompile(`(\d+)\s+passed`)
	countFailed  = regexp.MustCompile(`(\d+)\s+failed`)
	countTotal   = regexp.MustCompile(`(\d+)\s+total`)
	mochaPassing = regexp.MustCompile(`(\d+)\s+passing`)
	mochaFailing = regexp.MustCompile(`(\d+)\s+failing`)
	goTestPass   = regexp.MustCompile(`(?m)^\s*--- PASS: `)
	goTestFail   = regexp.MustCompile(`(?m)^\s*--- FAIL: `)
	goPkgOK      = regexp.MustCompile(`(?m)^ok[ \t]+\S+`)
	goPkgFail    = regexp.MustCompile(`(?m)^FAIL[ \t]+\S+`)
)

// ParseTestOutput extracts pass/fail counts from jest, go test, mocha or
// pytest output. Unrecognized output yields zero counts.
func ParseTestOutput(output string) models.TestResults {
	r := models.TestResults{Output: output}
	if len(output) > maxTestOutput {
		r.Output = output[:maxTestOutput]
	}

	if m := jestSummary.FindStringSubmatch(output); m != nil {
		r.Passed = firstInt(countPassed, m[1])
		r.Failed = firstInt(countFailed, m[1])
		r.Total = firstInt(countTotal, m[1])
		return r
	}

	// Without -v go test prints --- FAIL lines but no --- PASS lines, so
	// per-test counts are only complete when a PASS line is present.
	testPass, testFail := countLines(goTestPass, output), countLines(goTestFail, output)
	pkgOK, pkgFail := countLines(goPkgOK, output), countLines(goPkgFail, output)
	switch {
	case testPass > 0:
		return withCounts(r, testPass, testFail)
	case pkgOK+pkgFail > 0:
		return withCounts(r, pkgOK, pkgFail)
	case testFail > 0:
		return withCounts(r, 0, testFail)
	}

	if mochaPassing.MatchString(output) {
		return withCounts(r, firstInt(mochaPassing, output), firstInt(mochaFailing, output))
	}
	if countPassed.MatchString(output) || countFailed.MatchString(output) {
		return withCounts(r, firstInt(countPassed, output), firstInt(countFailed, output))
	}
	return r
}

func withCounts(r models.TestResults, passed, failed int) models.TestResults {
	r.Passed = passed
	r.Failed = failed
	r.Total = passed + failed
	return r
}

func countLines(re *regexp.Regexp, s string) int {
	return len(re.FindAllString(s, -1))
}

func firstInt(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}
