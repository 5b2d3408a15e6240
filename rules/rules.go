package rules

import (
	"fmt"

	"github.com/c360studio/healthwatch/facts"
)

// ruleFunc is one named detection predicate over the fact index.
type ruleFunc func(idx *facts.Index) []Problem

// allRules lists every rule in evaluation order. Order matters for the
// keep-first deduplication pass in Evaluate.
var allRules = []ruleFunc{
	ruleSilentException,
	ruleHandlerNoLogging,
	ruleExternalIONoLogging,
	ruleErrorPathNoErrorLog,
	ruleLargeFunctionNoLogging,
	ruleHandlerNoMetrics,
	ruleExternalIONoLatency,
	ruleNoMetricsAtAll,
	ruleErrorNoCounter,
}

// largeFunctionMinLines is the LOG_005 size threshold.
const largeFunctionMinLines = 50

// errorLogLevels are the log levels that satisfy LOG_004.
var errorLogLevels = map[string]bool{
	"error":     true,
	"exception": true,
	"critical":  true,
	"fatal":     true,
}

// factsInRange returns facts of the given type fully contained in
// [lineStart, lineEnd] within a single file's fact list.
func factsInRange(fileFacts []facts.CodeFact, lineStart, lineEnd int, ft facts.FactType) []facts.CodeFact {
	var out []facts.CodeFact
	for _, f := range fileFacts {
		if f.FactType == ft && f.LineStart >= lineStart && f.EndOrStart() <= lineEnd {
			out = append(out, f)
		}
	}
	return out
}

func hasFactInRange(fileFacts []facts.CodeFact, lineStart, lineEnd int, ft facts.FactType) bool {
	return len(factsInRange(fileFacts, lineStart, lineEnd, ft)) > 0
}

// enclosingFunction finds the first function fact whose range contains the
// given fact's range.
func enclosingFunction(f facts.CodeFact, idx *facts.Index) *facts.CodeFact {
	for _, candidate := range idx.ByFile[f.FilePath] {
		if candidate.FactType == facts.FactFunction &&
			candidate.LineStart <= f.LineStart &&
			candidate.EndOrStart() >= f.EndOrStart() {
			c := candidate
			return &c
		}
	}
	return nil
}

// fnKey identifies a function within a file for per-rule dedup sets.
type fnKey struct {
	file string
	name string
}

// ruleSilentException (LOG_001): try/except block without any logging call
// inside its line range.
func ruleSilentException(idx *facts.Index) []Problem {
	var problems []Problem
	seen := make(map[struct {
		file string
		name string
		line int
	}]bool)

	for _, fact := range idx.ByType[facts.FactTryExcept] {
		fileFacts := idx.ByFile[fact.FilePath]
		lineStart := fact.LineStart
		lineEnd := fact.EndOrStart()

		if hasFactInRange(fileFacts, lineStart, lineEnd, facts.FactLoggingCall) {
			continue
		}

		funcName := fact.ParentFunction
		if funcName == "" {
			funcName = "<module>"
		}
		key := struct {
			file string
			name string
			line int
		}{fact.FilePath, funcName, lineStart}
		if seen[key] {
			continue
		}
		seen[key] = true

		problems = append(problems, Problem{
			RuleID:            "LOG_001",
			Type:              ProblemLoggingGap,
			Severity:          SeverityHigh,
			Title:             fmt.Sprintf("Silent error handler in %s", funcName),
			Category:          "error_handling",
			AffectedFiles:     []string{fact.FilePath},
			AffectedFunctions: []string{funcName},
			Evidence: []Evidence{{
				"type":       "try_except_without_logging",
				"file":       fact.FilePath,
				"line_start": lineStart,
				"line_end":   lineEnd,
				"function":   funcName,
			}},
		})
	}
	return problems
}

// ruleHandlerNoLogging (LOG_002): HTTP handler function without any logging
// call. Class-level controller markers are skipped; only handler functions
// with a resolvable function range are checked.
func ruleHandlerNoLogging(idx *facts.Index) []Problem {
	var problems []Problem

	for _, handler := range idx.ByType[facts.FactHTTPHandler] {
		if handler.Meta("kind") == "controller_class" {
			continue
		}

		fileFacts := idx.ByFile[handler.FilePath]
		var funcFact *facts.CodeFact
		for i := range fileFacts {
			if fileFacts[i].FactType == facts.FactFunction && fileFacts[i].Name == handler.Name {
				funcFact = &fileFacts[i]
				break
			}
		}
		if funcFact == nil {
			continue
		}

		lineStart := funcFact.LineStart
		lineEnd := funcFact.EndOrStart()
		if hasFactInRange(fileFacts, lineStart, lineEnd, facts.FactLoggingCall) {
			continue
		}

		problems = append(problems, Problem{
			RuleID:            "LOG_002",
			Type:              ProblemLoggingGap,
			Severity:          SeverityMedium,
			Title:             fmt.Sprintf("HTTP handler '%s' has no logging", handler.Name),
			Category:          "observability",
			AffectedFiles:     []string{handler.FilePath},
			AffectedFunctions: []string{handler.Name},
			Evidence: []Evidence{{
				"type":       "http_handler_no_logging",
				"file":       handler.FilePath,
				"function":   handler.Name,
				"line_start": lineStart,
				"line_end":   lineEnd,
			}},
		})
	}
	return problems
}

// ruleExternalIONoLogging (LOG_003): external I/O call inside a function
// with no logging. One problem per function regardless of how many I/O
// call sites it contains.
func ruleExternalIONoLogging(idx *facts.Index) []Problem {
	var problems []Problem
	seenFunctions := make(map[fnKey]bool)

	for _, ioFact := range idx.ByType[facts.FactExternalIO] {
		fn := enclosingFunction(ioFact, idx)
		if fn == nil {
			continue
		}

		key := fnKey{fn.FilePath, fn.Name}
		if seenFunctions[key] {
			continue
		}

		fileFacts := idx.ByFile[fn.FilePath]
		if hasFactInRange(fileFacts, fn.LineStart, fn.EndOrStart(), facts.FactLoggingCall) {
			seenFunctions[key] = true
			continue
		}
		seenFunctions[key] = true

		problems = append(problems, Problem{
			RuleID:            "LOG_003",
			Type:              ProblemLoggingGap,
			Severity:          SeverityMedium,
			Title:             fmt.Sprintf("External I/O in '%s' without logging", fn.Name),
			Category:          "external_calls",
			AffectedFiles:     []string{ioFact.FilePath},
			AffectedFunctions: []string{fn.Name},
			Evidence: []Evidence{{
				"type":     "external_io_no_logging",
				"file":     ioFact.FilePath,
				"function": fn.Name,
				"io_call":  ioFact.Name,
				"io_line":  ioFact.LineStart,
			}},
		})
	}
	return problems
}

// ruleErrorPathNoErrorLog (LOG_004): function has a try/except block but no
// error-level logging call anywhere inside the function.
func ruleErrorPathNoErrorLog(idx *facts.Index) []Problem {
	var problems []Problem
	seenFunctions := make(map[fnKey]bool)

	for _, tryFact := range idx.ByType[facts.FactTryExcept] {
		funcName := tryFact.ParentFunction
		if funcName == "" {
			continue
		}

		key := fnKey{tryFact.FilePath, funcName}
		if seenFunctions[key] {
			continue
		}
		seenFunctions[key] = true

		fn := enclosingFunction(tryFact, idx)
		if fn == nil {
			continue
		}

		fileFacts := idx.ByFile[fn.FilePath]
		loggingCalls := factsInRange(fileFacts, fn.LineStart, fn.EndOrStart(), facts.FactLoggingCall)
		hasErrorLog := false
		for _, lc := range loggingCalls {
			if errorLogLevels[lc.Meta("log_level")] {
				hasErrorLog = true
				break
			}
		}
		if hasErrorLog {
			continue
		}

		problems = append(problems, Problem{
			RuleID:            "LOG_004",
			Type:              ProblemLoggingGap,
			Severity:          SeverityMedium,
			Title:             fmt.Sprintf("Error handler in '%s' lacks error-level logging", funcName),
			Category:          "error_handling",
			AffectedFiles:     []string{tryFact.FilePath},
			AffectedFunctions: []string{funcName},
			Evidence: []Evidence{{
				"type":     "try_except_without_error_log",
				"file":     tryFact.FilePath,
				"function": funcName,
				"try_line": tryFact.LineStart,
			}},
		})
	}
	return problems
}

// ruleLargeFunctionNoLogging (LOG_005): function spanning at least 50 lines
// with no logging call.
func ruleLargeFunctionNoLogging(idx *facts.Index) []Problem {
	var problems []Problem

	for _, fn := range idx.ByType[facts.FactFunction] {
		lineStart := fn.LineStart
		lineEnd := fn.EndOrStart()
		size := lineEnd - lineStart
		if size < largeFunctionMinLines {
			continue
		}

		fileFacts := idx.ByFile[fn.FilePath]
		if hasFactInRange(fileFacts, lineStart, lineEnd, facts.FactLoggingCall) {
			continue
		}

		problems = append(problems, Problem{
			RuleID:            "LOG_005",
			Type:              ProblemLoggingGap,
			Severity:          SeverityLow,
			Title:             fmt.Sprintf("Large function '%s' (%d lines) has no logging", fn.Name, size),
			Category:          "observability",
			AffectedFiles:     []string{fn.FilePath},
			AffectedFunctions: []string{fn.Name},
			Evidence: []Evidence{{
				"type":       "large_function_no_logging",
				"file":       fn.FilePath,
				"function":   fn.Name,
				"line_count": size,
				"line_start": lineStart,
				"line_end":   lineEnd,
			}},
		})
	}
	return problems
}

// ruleHandlerNoMetrics (MET_001): a file contains HTTP handlers but zero
// metrics calls. Emitted once per file listing every handler in it.
func ruleHandlerNoMetrics(idx *facts.Index) []Problem {
	var problems []Problem
	checkedFiles := make(map[string]bool)

	for _, handler := range idx.ByType[facts.FactHTTPHandler] {
		if handler.Meta("kind") == "controller_class" {
			continue
		}
		if checkedFiles[handler.FilePath] {
			continue
		}
		checkedFiles[handler.FilePath] = true

		fileFacts := idx.ByFile[handler.FilePath]
		hasMetrics := false
		for _, f := range fileFacts {
			if f.FactType == facts.FactMetricsCall {
				hasMetrics = true
				break
			}
		}
		if hasMetrics {
			continue
		}

		var handlerNames []string
		for _, f := range fileFacts {
			if f.FactType == facts.FactHTTPHandler && f.Meta("kind") != "controller_class" {
				handlerNames = append(handlerNames, f.Name)
			}
		}

		problems = append(problems, Problem{
			RuleID:            "MET_001",
			Type:              ProblemMetricsGap,
			Severity:          SeverityHigh,
			Title:             fmt.Sprintf("HTTP handlers in '%s' have no metrics", handler.FilePath),
			Category:          "observability",
			AffectedFiles:     []string{handler.FilePath},
			AffectedFunctions: handlerNames,
			MetricType:        "histogram",
			SuggestedMetricNames: []string{
				"http_request_duration_seconds",
				"http_requests_total",
			},
			Evidence: []Evidence{{
				"type":     "http_handler_no_metrics",
				"file":     handler.FilePath,
				"handlers": handlerNames,
			}},
		})
	}
	return problems
}

// ruleExternalIONoLatency (MET_002): external I/O inside a function with no
// metrics call in that function.
func ruleExternalIONoLatency(idx *facts.Index) []Problem {
	var problems []Problem
	checkedFunctions := make(map[fnKey]bool)

	for _, ioFact := range idx.ByType[facts.FactExternalIO] {
		fn := enclosingFunction(ioFact, idx)
		if fn == nil {
			continue
		}

		key := fnKey{fn.FilePath, fn.Name}
		if checkedFunctions[key] {
			continue
		}
		checkedFunctions[key] = true

		fileFacts := idx.ByFile[fn.FilePath]
		if hasFactInRange(fileFacts, fn.LineStart, fn.EndOrStart(), facts.FactMetricsCall) {
			continue
		}

		problems = append(problems, Problem{
			RuleID:               "MET_002",
			Type:                 ProblemMetricsGap,
			Severity:             SeverityMedium,
			Title:                fmt.Sprintf("External I/O in '%s' has no latency metrics", fn.Name),
			Category:             "performance",
			AffectedFiles:        []string{ioFact.FilePath},
			AffectedFunctions:    []string{fn.Name},
			MetricType:           "histogram",
			SuggestedMetricNames: []string{fmt.Sprintf("%s_duration_seconds", fn.Name)},
			Evidence: []Evidence{{
				"type":     "external_io_no_latency",
				"file":     ioFact.FilePath,
				"function": fn.Name,
				"io_call":  ioFact.Name,
			}},
		})
	}
	return problems
}

// ruleNoMetricsAtAll (MET_003): the codebase has functions but not a single
// metrics call. The affected-file list is capped at 10 entries, selected in
// sorted path order so repeated runs report the same files.
func ruleNoMetricsAtAll(idx *facts.Index) []Problem {
	if len(idx.ByType[facts.FactMetricsCall]) > 0 {
		return nil
	}
	functions := idx.ByType[facts.FactFunction]
	if len(functions) == 0 {
		return nil
	}

	allFiles := sortedKeys(idx.ByFile)
	affected := allFiles
	if len(affected) > 10 {
		affected = affected[:10]
	}

	return []Problem{{
		RuleID:        "MET_003",
		Type:          ProblemMetricsGap,
		Severity:      SeverityHigh,
		Title:         "No metrics instrumentation found in the codebase",
		Category:      "observability",
		AffectedFiles: affected,
		MetricType:    "counter",
		SuggestedMetricNames: []string{
			"requests_total",
			"errors_total",
			"request_duration_seconds",
		},
		Evidence: []Evidence{{
			"type":            "no_metrics_at_all",
			"total_files":     len(allFiles),
			"total_functions": len(functions),
		}},
	}}
}

// ruleErrorNoCounter (MET_004): function has a try/except block but no
// metrics call anywhere inside the function.
func ruleErrorNoCounter(idx *facts.Index) []Problem {
	var problems []Problem
	checkedFunctions := make(map[fnKey]bool)

	for _, tryFact := range idx.ByType[facts.FactTryExcept] {
		funcName := tryFact.ParentFunction
		if funcName == "" {
			continue
		}

		key := fnKey{tryFact.FilePath, funcName}
		if checkedFunctions[key] {
			continue
		}
		checkedFunctions[key] = true

		fn := enclosingFunction(tryFact, idx)
		if fn == nil {
			continue
		}

		fileFacts := idx.ByFile[fn.FilePath]
		if hasFactInRange(fileFacts, fn.LineStart, fn.EndOrStart(), facts.FactMetricsCall) {
			continue
		}

		problems = append(problems, Problem{
			RuleID:               "MET_004",
			Type:                 ProblemMetricsGap,
			Severity:             SeverityLow,
			Title:                fmt.Sprintf("Error handler in '%s' has no error counter", funcName),
			Category:             "error_tracking",
			AffectedFiles:        []string{tryFact.FilePath},
			AffectedFunctions:    []string{funcName},
			MetricType:           "counter",
			SuggestedMetricNames: []string{fmt.Sprintf("%s_errors_total", funcName)},
			Evidence: []Evidence{{
				"type":     "try_except_no_counter",
				"file":     tryFact.FilePath,
				"function": funcName,
				"try_line": tryFact.LineStart,
			}},
		})
	}
	return problems
}
