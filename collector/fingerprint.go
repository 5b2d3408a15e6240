package collector

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

const (
	maxMessageSample = 500
	maxStackTrace    = 2000
	maxEndpoints     = 10
)

// errorTypePatterns extract a named error type from a log message, tried
// in order. First capture group wins.
var errorTypePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\w+Error):`),
	regexp.MustCompile(`(\w+Exception):`),
	regexp.MustCompile(`Error:\s*(\w+)`),
	regexp.MustCompile(`Exception:\s*(\w+)`),
	regexp.MustCompile(`^\[?(\w+Error)\]?`),
	regexp.MustCompile(`^\[?(\w+Exception)\]?`),
}

var (
	uuidPattern      = regexp.MustCompile(`\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	timestampPattern = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}`)
	numberPattern    = regexp.MustCompile(`\b\d+\b`)
	doubleQuoted     = regexp.MustCompile(`"[^"]*"`)
	singleQuoted     = regexp.MustCompile(`'[^']*'`)
)

// stackTracePatterns recognize Python tracebacks, Java-style frames, and
// generic file/line references embedded in a log message.
var stackTracePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)(Traceback \(most recent call last\):.*?)(\n\n|\z)`),
	regexp.MustCompile(`(?s)(at [\w.$]+\([\w.]+:\d+\).*?)(\n\n|\z)`),
	regexp.MustCompile(`(?s)(File "[^"]+", line \d+.*?)(\n\n|\z)`),
}

// FingerprintError derives a stable identity for an error message: the
// extracted error type plus the first 16 hex chars of the MD5 of the
// type and the normalized message. Messages that differ only in IDs,
// timestamps, numbers, or quoted values share a fingerprint.
func FingerprintError(message string) (errorType, fingerprint string) {
	errorType = "UnknownError"
	for _, p := range errorTypePatterns {
		if m := p.FindStringSubmatch(message); m != nil {
			errorType = m[1]
			break
		}
	}

	normalized := uuidPattern.ReplaceAllString(message, "<UUID>")
	normalized = timestampPattern.ReplaceAllString(normalized, "<TIMESTAMP>")
	normalized = numberPattern.ReplaceAllString(normalized, "<NUM>")
	normalized = doubleQuoted.ReplaceAllString(normalized, `"<STR>"`)
	normalized = singleQuoted.ReplaceAllString(normalized, "'<STR>'")

	sum := md5.Sum([]byte(errorType + ":" + normalized))
	return errorType, hex.EncodeToString(sum[:])[:16]
}

// ExtractStackTrace pulls an embedded stack trace out of a log message,
// truncated to 2000 characters. Returns "" when none is recognized.
func ExtractStackTrace(message string) string {
	for _, p := range stackTracePatterns {
		if m := p.FindStringSubmatch(message); m != nil {
			trace := m[1]
			if len(trace) > maxStackTrace {
				trace = trace[:maxStackTrace]
			}
			return trace
		}
	}
	return ""
}

// DetectLogLevel infers a level from message content for providers that
// do not report one.
func DetectLogLevel(message string) string {
	upper := strings.ToUpper(message)
	switch {
	case strings.Contains(upper, "ERROR") || strings.Contains(upper, "EXCEPTION"):
		return "ERROR"
	case strings.Contains(upper, "WARN"):
		return "WARN"
	case strings.Contains(upper, "DEBUG"):
		return "DEBUG"
	case strings.Contains(upper, "TRACE"):
		return "TRACE"
	default:
		return "INFO"
	}
}

// AggregateErrors groups ERROR-level log entries into fingerprinted
// clusters, sorted by occurrence count descending.
func AggregateErrors(logs []LogEntry) []ErrorData {
	byFingerprint := make(map[string]*ErrorData)
	var order []string

	for _, entry := range logs {
		if entry.Level != "ERROR" {
			continue
		}

		errorType, fingerprint := FingerprintError(entry.Message)
		endpoint := entry.Attributes["endpoint"]
		if endpoint == "" {
			endpoint = entry.Attributes["path"]
		}

		existing, ok := byFingerprint[fingerprint]
		if !ok {
			sample := entry.Message
			if len(sample) > maxMessageSample {
				sample = sample[:maxMessageSample]
			}
			data := &ErrorData{
				Fingerprint:   fingerprint,
				ErrorType:     errorType,
				MessageSample: sample,
				Count:         1,
				FirstSeen:     entry.Timestamp,
				LastSeen:      entry.Timestamp,
				StackTrace:    ExtractStackTrace(entry.Message),
			}
			if endpoint != "" {
				data.Endpoints = []string{endpoint}
			}
			byFingerprint[fingerprint] = data
			order = append(order, fingerprint)
			continue
		}

		existing.Count++
		if entry.Timestamp.After(existing.LastSeen) {
			existing.LastSeen = entry.Timestamp
		}
		if endpoint != "" && !contains(existing.Endpoints, endpoint) {
			existing.Endpoints = append(existing.Endpoints, endpoint)
		}
	}

	errors := make([]ErrorData, 0, len(order))
	for _, fp := range order {
		data := byFingerprint[fp]
		if len(data.Endpoints) > maxEndpoints {
			data.Endpoints = data.Endpoints[:maxEndpoints]
		}
		errors = append(errors, *data)
	}
	sort.SliceStable(errors, func(i, j int) bool {
		return errors[i].Count > errors[j].Count
	})
	return errors
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
