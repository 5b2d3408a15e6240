package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360studio/healthwatch/facts"
	"github.com/c360studio/healthwatch/llm"
	"github.com/c360studio/healthwatch/rules"
)

// compactTreeThreshold is the file count above which the repo tree prompt
// collapses to per-directory summaries to stay within token limits.
const compactTreeThreshold = 500

// IdentifyCandidateFiles asks the LLM which paths likely hold middleware or
// instrumentation configuration. One call over file names only, no tools.
// Returned paths are validated against the tree; unknown paths are dropped.
//
// The bool result reports that the call itself failed: the run then degrades
// to keeping all gaps genuine instead of spending budget verifying against a
// context that could not be discovered. Budget exhaustion and cancellation
// are returned as errors and abort the review.
func (s *Service) IdentifyCandidateFiles(ctx context.Context, repo *facts.ParsedRepository, ruleIDs []string, budget *llm.Budget) ([]string, bool, error) {
	tree := formatRepoTree(repo.Files)
	ruleIDsText := strings.Join(ruleIDs, ", ")

	s.logger.Info("identifying candidate config files",
		"files", len(repo.Files),
		"rule_ids", ruleIDsText)

	resp, err := s.client.Complete(ctx, llm.Request{
		Capability: "discovery",
		Messages: []llm.Message{
			{Role: "system", Content: identifySystemPrompt},
			{Role: "user", Content: identifyUserPrompt(tree, ruleIDsText)},
		},
		Budget: budget,
	})
	if err != nil {
		if llm.IsBudgetExceeded(err) || ctx.Err() != nil {
			return nil, false, err
		}
		s.logger.Error("candidate identification failed", "error", err)
		return nil, true, nil
	}

	var paths []string
	if arr := llm.ExtractJSONArray(resp.Content); arr != "" {
		if err := json.Unmarshal([]byte(arr), &paths); err != nil {
			paths = nil
		}
	}

	known := make(map[string]bool, len(repo.Files))
	for i := range repo.Files {
		known[repo.Files[i].FilePath] = true
	}

	candidates := make([]string, 0, len(paths))
	for _, p := range paths {
		if known[p] {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) > MaxCandidateFiles {
		candidates = candidates[:MaxCandidateFiles]
	}

	s.logger.Info("candidate config files identified", "count", len(candidates))
	return candidates, false, nil
}

// ExtractFromFile asks the LLM for instrumentation patterns in one candidate
// file. Content is truncated to MaxLinesPerFile lines with an explicit
// marker. A missing file or an unparseable answer yields no extractions;
// only budget exhaustion and cancellation are fatal.
func (s *Service) ExtractFromFile(ctx context.Context, repo *facts.ParsedRepository, path string, ruleIDs []string, budget *llm.Budget) ([]Extraction, error) {
	file := repo.File(path)
	if file == nil || file.Content == "" {
		s.logger.Warn("candidate file has no content", "path", path)
		return nil, nil
	}

	content := file.Content
	lines := strings.Split(content, "\n")
	if len(lines) > MaxLinesPerFile {
		content = strings.Join(lines[:MaxLinesPerFile], "\n") +
			fmt.Sprintf("\n\n... truncated (%d lines total, showing first %d)", len(lines), MaxLinesPerFile)
	}

	s.logger.Info("extracting instrumentation", "path", path, "lines", len(lines))

	resp, err := s.client.Complete(ctx, llm.Request{
		Capability: "extraction",
		Messages: []llm.Message{
			{Role: "system", Content: extractSystemPrompt},
			{Role: "user", Content: extractUserPrompt(path, content, strings.Join(ruleIDs, ", "))},
		},
		Budget: budget,
	})
	if err != nil {
		if llm.IsBudgetExceeded(err) || ctx.Err() != nil {
			return nil, err
		}
		s.logger.Error("file extraction failed", "path", path, "error", err)
		return nil, nil
	}

	extractions := parseExtractions(resp.Content)
	s.logger.Info("file extraction complete", "path", path, "patterns", len(extractions))
	return extractions, nil
}

// extractAll runs the per-file extraction over every candidate, bounded by
// the configured concurrency. Results keep candidate order so sequential and
// concurrent runs build identical contexts.
func (s *Service) extractAll(ctx context.Context, repo *facts.ParsedRepository, candidates, ruleIDs []string, budget *llm.Budget) ([]Extraction, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	perFile := make([][]Extraction, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.extractConcurrency)

	for i, path := range candidates {
		g.Go(func() error {
			ext, err := s.ExtractFromFile(gctx, repo, path, ruleIDs, budget)
			if err != nil {
				return err
			}
			perFile[i] = ext
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Extraction
	for _, ext := range perFile {
		all = append(all, ext...)
	}
	return all, nil
}

// BuildCodebaseContext groups per-file extractions into a single context.
// Logging extractions land in the error-handling bucket and record the
// logging framework; InfrastructureFiles is the sorted union of every
// implementing and registration file.
func BuildCodebaseContext(extractions []Extraction, workspaceID, repoFullName, commitSHA string) *CodebaseContext {
	cc := &CodebaseContext{
		WorkspaceID:  workspaceID,
		RepoFullName: repoFullName,
		CommitSHA:    commitSHA,
	}

	infra := make(map[string]bool)
	for _, ext := range extractions {
		inst := GlobalInstrumentation{
			FilePath:            ext.FilePath,
			InstrumentationType: ext.Type,
			MetricsRecorded:     ext.MetricsRecorded,
			Coverage:            ext.Coverage,
			RegistrationFile:    ext.RegistrationFile,
			Description:         ext.Description,
		}

		switch ext.Type {
		case TypeHTTPMetrics:
			cc.GlobalHTTPMetrics = append(cc.GlobalHTTPMetrics, inst)
		case TypeDBInstrumentation:
			cc.GlobalDBInstrumentation = append(cc.GlobalDBInstrumentation, inst)
		case TypeTracing:
			cc.GlobalTracing = append(cc.GlobalTracing, inst)
		case TypeErrorHandling:
			cc.GlobalErrorHandling = append(cc.GlobalErrorHandling, inst)
		case TypeLogging:
			cc.GlobalErrorHandling = append(cc.GlobalErrorHandling, inst)
			if cc.LoggingFramework == "" && ext.FunctionOrClass != "" {
				cc.LoggingFramework = ext.FunctionOrClass
			}
		default:
			continue
		}

		if ext.FilePath != "" {
			infra[ext.FilePath] = true
		}
		if ext.RegistrationFile != "" {
			infra[ext.RegistrationFile] = true
		}
	}

	cc.InfrastructureFiles = make([]string, 0, len(infra))
	for f := range infra {
		cc.InfrastructureFiles = append(cc.InfrastructureFiles, f)
	}
	sort.Strings(cc.InfrastructureFiles)
	if len(cc.InfrastructureFiles) == 0 {
		cc.InfrastructureFiles = nil
	}

	cc.Summary = contextSummary(cc)
	return cc
}

func contextSummary(cc *CodebaseContext) string {
	var parts []string
	if n := len(cc.GlobalHTTPMetrics); n > 0 {
		parts = append(parts, fmt.Sprintf("%d HTTP metrics middleware", n))
	}
	if n := len(cc.GlobalDBInstrumentation); n > 0 {
		parts = append(parts, fmt.Sprintf("%d DB instrumentation", n))
	}
	if n := len(cc.GlobalTracing); n > 0 {
		parts = append(parts, fmt.Sprintf("%d tracing setup", n))
	}
	if n := len(cc.GlobalErrorHandling); n > 0 {
		parts = append(parts, fmt.Sprintf("%d global error handlers", n))
	}
	if len(parts) == 0 {
		return "No global observability infrastructure found"
	}
	return "Found: " + strings.Join(parts, ", ")
}

// VerifyGaps verifies gaps grouped by rule id. Each group gets one
// tool-using agent run over the sampled gaps; the pass ratio decides the
// whole group. Groups run sequentially in rule-id order with an optional
// pause between them.
func (s *Service) VerifyGaps(ctx context.Context, repo *facts.ParsedRepository, gaps []rules.Problem, cc *CodebaseContext, budget *llm.Budget) (map[string]GroupResult, error) {
	if len(gaps) == 0 {
		return map[string]GroupResult{}, nil
	}

	byRule := make(map[string][]rules.Problem)
	for _, g := range gaps {
		byRule[g.RuleID] = append(byRule[g.RuleID], g)
	}
	ruleIDs := make([]string, 0, len(byRule))
	for id := range byRule {
		ruleIDs = append(ruleIDs, id)
	}
	sort.Strings(ruleIDs)

	s.logger.Info("verifying gaps",
		"gaps", len(gaps),
		"rule_types", len(ruleIDs),
		"sample_size", s.sampleSize,
		"confidence_threshold", s.confidenceThreshold)

	contextJSON, err := json.MarshalIndent(cc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal codebase context: %w", err)
	}

	results := make(map[string]GroupResult, len(ruleIDs))
	for i, ruleID := range ruleIDs {
		group := byRule[ruleID]
		sample := group
		if len(sample) > s.sampleSize {
			sample = sample[:s.sampleSize]
		}

		s.logger.Info("verifying rule group",
			"rule_id", ruleID,
			"sample", len(sample),
			"total", len(group))

		result, err := s.verifyRuleGroup(ctx, repo, ruleID, sample, string(contextJSON), budget)
		if err != nil {
			return nil, err
		}
		if len(group) > len(sample) {
			result = extendVerdicts(result, group, s.logger)
		}
		results[ruleID] = result

		passCount, failCount := 0, 0
		for _, v := range result.Verdicts {
			if v.Verdict == VerdictGenuine {
				failCount++
			} else {
				passCount++
			}
		}
		s.logger.Info("rule group verified",
			"rule_id", ruleID,
			"pass", passCount,
			"fail", failCount,
			"tool_calls", result.ToolCallsUsed,
			"files_read", len(result.FilesRead))

		if s.verificationDelay > 0 && i < len(ruleIDs)-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.verificationDelay):
			}
		}
	}

	genuine, dismissed := 0, 0
	for _, r := range results {
		for _, v := range r.Verdicts {
			if v.Verdict == VerdictGenuine {
				genuine++
			} else {
				dismissed++
			}
		}
	}
	s.logger.Info("verification complete", "genuine", genuine, "false_alarm", dismissed)
	return results, nil
}

// verifyRuleGroup runs the verification agent over one rule group's sample.
// Agent failures degrade the group to genuine; only budget exhaustion and
// cancellation abort.
func (s *Service) verifyRuleGroup(ctx context.Context, repo *facts.ParsedRepository, ruleID string, sample []rules.Problem, contextText string, budget *llm.Budget) (GroupResult, error) {
	findings := make([]string, 0, len(sample))
	for i, gap := range sample {
		findings = append(findings, fmt.Sprintf("  %d. %s (files: %s)", i+1, gap.Title, strings.Join(gap.AffectedFiles, ", ")))
	}

	result, err := s.client.RunAgent(ctx, llm.AgentRequest{
		Capability: "verification",
		Messages: []llm.Message{
			{Role: "system", Content: verificationSystemPrompt},
			{Role: "user", Content: verificationUserPrompt(
				contextText, ruleID, strconv.Itoa(len(sample)), strings.Join(findings, "\n"))},
		},
		Executor: NewRepoTools(repo, WithToolsLogger(s.logger), WithSearchLimit(s.searchLimit)),
		Budget:   budget,
	})
	if err != nil {
		if llm.IsBudgetExceeded(err) || ctx.Err() != nil {
			return GroupResult{}, err
		}
		s.logger.Error("verification agent failed", "rule_id", ruleID, "error", err)
		verdicts := make([]GapVerdictResult, 0, len(sample))
		for _, gap := range sample {
			verdicts = append(verdicts, GapVerdictResult{
				GapTitle: gap.Title,
				RuleID:   ruleID,
				Verdict:  VerdictGenuine,
				Reason:   "Verification failed: " + truncate(err.Error(), 100),
			})
		}
		return GroupResult{RuleID: ruleID, Verdicts: verdicts}, nil
	}

	return GroupResult{
		RuleID:        ruleID,
		Verdicts:      s.parsePassFailVerdicts(result.Response.Content, sample, ruleID),
		FilesRead:     filesReadFrom(result.Transcript),
		ToolCallsUsed: result.ToolCallsUsed,
	}, nil
}

// verdictEntry is the agent's raw per-gap answer. A missing verdict counts
// as fail.
type verdictEntry struct {
	GapTitle     string `json:"gap_title"`
	Verdict      string `json:"verdict"`
	Reason       string `json:"reason"`
	EvidenceFile string `json:"evidence_file"`
}

// parsePassFailVerdicts converts the agent's pass/fail answers into group
// verdicts. The pass ratio decides the whole group; individual reasons are
// preserved for audit but never override the group decision. Sampled gaps
// the agent skipped inherit the group verdict.
func (s *Service) parsePassFailVerdicts(output string, sample []rules.Problem, ruleID string) []GapVerdictResult {
	entries, ok := parseVerdictEntries(output)
	if !ok {
		s.logger.Warn("failed to parse verification output, defaulting group to genuine",
			"rule_id", ruleID,
			"raw", truncate(output, 300))
		verdicts := make([]GapVerdictResult, 0, len(sample))
		for _, gap := range sample {
			verdicts = append(verdicts, GapVerdictResult{
				GapTitle: gap.Title,
				RuleID:   ruleID,
				Verdict:  VerdictGenuine,
				Reason:   "Failed to parse verification output",
			})
		}
		return verdicts
	}

	passCount := 0
	for _, e := range entries {
		if strings.EqualFold(e.Verdict, "pass") {
			passCount++
		}
	}
	total := len(entries)
	covered := total > 0 && float64(passCount)/float64(total) >= s.confidenceThreshold

	groupVerdict := VerdictGenuine
	if covered {
		groupVerdict = VerdictFalseAlarm
	}
	s.logger.Info("confidence decision",
		"rule_id", ruleID,
		"pass", passCount,
		"total", total,
		"threshold", s.confidenceThreshold,
		"group_verdict", string(groupVerdict))

	verdicts := make([]GapVerdictResult, 0, max(len(entries), len(sample)))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		seen[e.GapTitle] = true
		verdicts = append(verdicts, GapVerdictResult{
			GapTitle:     e.GapTitle,
			RuleID:       ruleID,
			Verdict:      groupVerdict,
			Reason:       e.Reason,
			EvidenceFile: e.EvidenceFile,
		})
	}
	for _, gap := range sample {
		if !seen[gap.Title] {
			verdicts = append(verdicts, GapVerdictResult{
				GapTitle: gap.Title,
				RuleID:   ruleID,
				Verdict:  groupVerdict,
				Reason:   "No individual verdict from agent, using group decision",
			})
		}
	}
	return verdicts
}

// extendVerdicts applies the group verdict to the gaps that were not
// sampled. The first sampled verdict's reason and evidence are propagated.
func extendVerdicts(result GroupResult, all []rules.Problem, logger *slog.Logger) GroupResult {
	if len(result.Verdicts) == 0 {
		return result
	}

	groupVerdict := result.Verdicts[0].Verdict
	sampleReason := result.Verdicts[0].Reason
	sampleEvidence := result.Verdicts[0].EvidenceFile
	sampleCount := len(result.Verdicts)

	covered := make(map[string]bool, sampleCount)
	for _, v := range result.Verdicts {
		covered[v.GapTitle] = true
	}

	extended := result.Verdicts
	for _, gap := range all {
		if !covered[gap.Title] {
			extended = append(extended, GapVerdictResult{
				GapTitle:     gap.Title,
				RuleID:       result.RuleID,
				Verdict:      groupVerdict,
				Reason:       "Extended from sample: " + sampleReason,
				EvidenceFile: sampleEvidence,
			})
		}
	}

	logger.Info("extended verdicts to full group",
		"rule_id", result.RuleID,
		"samples", sampleCount,
		"total", len(extended),
		"verdict", string(groupVerdict))

	result.Verdicts = extended
	return result
}

// parseExtractions reads the extraction prompt's JSON array answer. A lone
// object is wrapped into a single-element result.
func parseExtractions(content string) []Extraction {
	if arr := llm.ExtractJSONArray(content); arr != "" {
		var out []Extraction
		if err := json.Unmarshal([]byte(arr), &out); err == nil {
			return out
		}
	}
	if obj := llm.ExtractJSON(content); obj != "" {
		var one Extraction
		if err := json.Unmarshal([]byte(obj), &one); err == nil && one.Type != "" {
			return []Extraction{one}
		}
	}
	return nil
}

// parseVerdictEntries reads the agent's JSON array answer. A lone object is
// wrapped; anything unparseable reports failure so the group can default.
func parseVerdictEntries(output string) ([]verdictEntry, bool) {
	if arr := llm.ExtractJSONArray(output); arr != "" {
		var entries []verdictEntry
		if err := json.Unmarshal([]byte(arr), &entries); err == nil {
			return entries, true
		}
	}
	if obj := llm.ExtractJSON(output); obj != "" {
		var one verdictEntry
		if err := json.Unmarshal([]byte(obj), &one); err == nil {
			return []verdictEntry{one}, true
		}
	}
	return nil, false
}

// filesReadFrom lists the read_file targets from an agent transcript.
func filesReadFrom(transcript []llm.Message) []string {
	var files []string
	for _, msg := range transcript {
		if msg.Role != "assistant" {
			continue
		}
		for _, call := range msg.ToolCalls {
			if call.Name != "read_file" {
				continue
			}
			if path, ok := call.Arguments["file_path"].(string); ok && path != "" {
				files = append(files, path)
			}
		}
	}
	return files
}

// formatRepoTree renders the file tree for the identification prompt.
func formatRepoTree(files []facts.ParsedFile) string {
	if len(files) <= compactTreeThreshold {
		lines := make([]string, 0, len(files))
		for i := range files {
			f := &files[i]
			lines = append(lines, fmt.Sprintf("  %s  (%s, %d lines)", f.FilePath, f.Language, f.LineCount))
		}
		return strings.Join(lines, "\n")
	}
	return compactRepoTree(files)
}

// compactRepoTree groups files by directory for large repos.
func compactRepoTree(files []facts.ParsedFile) string {
	type dirStats struct {
		total int
		langs map[string]int
	}

	dirs := make(map[string]*dirStats)
	for i := range files {
		f := &files[i]
		dir := "./"
		if idx := strings.LastIndex(f.FilePath, "/"); idx >= 0 {
			dir = f.FilePath[:idx+1]
		}
		lang := f.Language
		if lang == "" {
			lang = "unknown"
		}
		st := dirs[dir]
		if st == nil {
			st = &dirStats{langs: make(map[string]int)}
			dirs[dir] = st
		}
		st.total++
		st.langs[lang]++
	}

	names := make([]string, 0, len(dirs))
	for d := range dirs {
		names = append(names, d)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, d := range names {
		st := dirs[d]
		langs := make([]string, 0, len(st.langs))
		for l := range st.langs {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		parts := make([]string, 0, len(langs))
		for _, l := range langs {
			parts = append(parts, fmt.Sprintf("%d %s", st.langs[l], l))
		}
		lines = append(lines, fmt.Sprintf("  %s (%d files: %s)", d, st.total, strings.Join(parts, ", ")))
	}
	return strings.Join(lines, "\n")
}

// truncate clips s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
