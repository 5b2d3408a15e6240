package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint derives a stable identifier for a gap so the same structural
// problem can be correlated across reviews. It hashes the rule id plus the
// sorted affected files and functions; permuting either list does not change
// the result. The 16-hex-char prefix is short enough for display and long
// enough that collisions are negligible for dedup purposes.
func Fingerprint(ruleID string, affectedFiles, affectedFunctions []string) string {
	files := append([]string(nil), affectedFiles...)
	fns := append([]string(nil), affectedFunctions...)
	sort.Strings(files)
	sort.Strings(fns)

	payload := ruleID + "::" + strings.Join(files, "|") + "::" + strings.Join(fns, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}

// ProblemFingerprint computes the fingerprint for a detected problem.
func ProblemFingerprint(p Problem) string {
	return Fingerprint(p.RuleID, p.AffectedFiles, p.AffectedFunctions)
}
