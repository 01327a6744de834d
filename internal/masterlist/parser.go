// Package masterlist turns checklist-style markdown task lists into an
// ordered list of categories and task templates.
//
// The scanner is deliberately narrow and permissive: it recognizes headings,
// checklist items, their indented continuation lines and a couple of
// directives, and skips everything else. Human-written lists are
// inconsistent, so a malformed document yields fewer tasks rather than an
// error. ParseStrict is available for callers that want to see what was
// skipped.
package masterlist

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Priority levels recognized in task text.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// Document is the parser output.
type Document struct {
	Title        string
	DefaultPhase string
	Categories   []Category
}

// Category is a heading and the checklist items under it.
type Category struct {
	Name  string
	Phase string // empty when the heading carries no phase token
	Tasks []TaskTemplate
}

// TaskTemplate is a single checklist item.
type TaskTemplate struct {
	Title       string
	Description string
	Priority    string // empty when no priority token was present
	Tags        []string
	Checked     bool // informational only; imports always start as TODO
	Line        int
}

var (
	headingRe   = regexp.MustCompile(`^(#{1,6})\s+(.+?)(?:\s+#+)?\s*$`)
	checklistRe = regexp.MustCompile(`^\s*[-*+]\s+\[([ xX])\]\s*(.*)$`)
	bracketRe   = regexp.MustCompile(`\[([^\[\]]+)\](\()?`)
	tagTokenRe  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:/-]{0,31}$`)
	bulletRe    = regexp.MustCompile(`^[-*+]\s+`)
	directiveRe = regexp.MustCompile(`(?i)^\s*(?:\*\*)?(?:default\s+)?phase(?:\*\*)?\s*:\s*(?:\*\*)?\s*([0-9]{1,2}[A-Za-z]?)\b`)

	phaseWordRe    = regexp.MustCompile(`(?i)\bphase\s*[-:]?\s*([0-9]{1,2}[A-Za-z]?)\b`)
	phaseBracketRe = regexp.MustCompile(`^\[([0-9]{1,2}[A-Za-z]?)\]`)
	phaseLeadRe    = regexp.MustCompile(`^([0-9]{1,2}[A-Za-z]?)[.:)]\s`)
)

var priorityTokens = map[string]string{
	"P0":       PriorityUrgent,
	"CRITICAL": PriorityUrgent,
	"URGENT":   PriorityUrgent,
	"P1":       PriorityHigh,
	"HIGH":     PriorityHigh,
	"P2":       PriorityMedium,
	"MEDIUM":   PriorityMedium,
	"MED":      PriorityMedium,
	"P3":       PriorityLow,
	"LOW":      PriorityLow,
}

// NormalizePriority maps a priority word or code to one of the four levels.
// It returns "" for anything unrecognized.
func NormalizePriority(s string) string {
	return priorityTokens[strings.ToUpper(strings.TrimSpace(s))]
}

// ParseError lists lines the strict parser could not classify.
type ParseError struct {
	Lines []int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unrecognized content on %d line(s), first at line %d", len(e.Lines), e.Lines[0])
}

type frontMatter struct {
	Title        string   `yaml:"title"`
	Phase        string   `yaml:"phase"`
	DefaultPhase string   `yaml:"default_phase"`
	Tags         []string `yaml:"tags"`
}

// Parse scans markdown text into a Document. It never fails.
func Parse(text string) *Document {
	doc, _ := scan(text)
	return doc
}

// ParseStrict scans like Parse and additionally reports every non-blank line
// after the first heading that is neither a heading, a checklist item nor a
// task continuation line.
func ParseStrict(text string) (*Document, error) {
	doc, unknown := scan(text)
	if len(unknown) > 0 {
		return doc, &ParseError{Lines: unknown}
	}
	return doc, nil
}

// CountChecklistItems returns the number of checklist lines in text,
// skipping fenced code blocks.
func CountChecklistItems(text string) int {
	n := 0
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if !inFence && checklistRe.MatchString(line) {
			n++
		}
	}
	return n
}

func scan(text string) (*Document, []int) {
	doc := &Document{}
	var unknown []int

	body, fm, offset := splitFrontMatter(text)
	if fm != nil {
		doc.Title = strings.TrimSpace(fm.Title)
		doc.DefaultPhase = normalizePhase(fm.DefaultPhase)
		if doc.DefaultPhase == "" {
			doc.DefaultPhase = normalizePhase(fm.Phase)
		}
	}
	var docTags []string
	if fm != nil {
		for _, tag := range fm.Tags {
			docTags = appendTag(docTags, tag)
		}
	}

	var (
		current  *Category
		lastTask *TaskTemplate
		inFence  bool
	)

	// The whole document is in memory, so lines have no length cap.
	lineNo := offset
	for _, line := range strings.Split(body, "\n") {
		lineNo++
		raw := strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(raw)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			lastTask = nil
			continue
		}
		if inFence {
			continue
		}

		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			name := cleanHeading(m[2])
			if len(m[1]) == 1 && doc.Title == "" {
				doc.Title = name
			}
			doc.Categories = append(doc.Categories, Category{
				Name:  name,
				Phase: detectPhase(name),
			})
			current = &doc.Categories[len(doc.Categories)-1]
			lastTask = nil
			continue
		}

		if current == nil {
			// Preamble: only the default-phase directive is meaningful.
			if m := directiveRe.FindStringSubmatch(trimmed); m != nil && doc.DefaultPhase == "" {
				doc.DefaultPhase = normalizePhase(m[1])
			}
			continue
		}

		if m := checklistRe.FindStringSubmatch(raw); m != nil {
			task := parseTaskText(m[2])
			task.Checked = m[1] != " "
			task.Line = lineNo
			for _, tag := range docTags {
				task.Tags = appendTag(task.Tags, tag)
			}
			current.Tasks = append(current.Tasks, task)
			lastTask = &current.Tasks[len(current.Tasks)-1]
			continue
		}

		if trimmed == "" {
			continue
		}

		// Indented text directly under a task extends its description.
		if lastTask != nil && raw != trimmed && (strings.HasPrefix(raw, " ") || strings.HasPrefix(raw, "\t")) {
			line := bulletRe.ReplaceAllString(trimmed, "")
			if lastTask.Description == "" {
				lastTask.Description = line
			} else {
				lastTask.Description += "\n" + line
			}
			continue
		}

		lastTask = nil
		unknown = append(unknown, lineNo)
	}

	return doc, unknown
}

// splitFrontMatter separates a leading YAML front matter block. The returned
// offset is the number of lines consumed so line numbers stay accurate.
func splitFrontMatter(text string) (string, *frontMatter, int) {
	text = strings.TrimPrefix(text, "\ufeff")
	if !strings.HasPrefix(text, "---\n") && !strings.HasPrefix(text, "---\r\n") {
		return text, nil, 0
	}
	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "---" {
			continue
		}
		var fm frontMatter
		if err := yaml.Unmarshal([]byte(strings.Join(lines[1:i], "\n")), &fm); err != nil {
			// Not front matter we understand; treat the block as preamble.
			return text, nil, 0
		}
		return strings.Join(lines[i+1:], "\n"), &fm, i + 1
	}
	return text, nil, 0
}

// parseTaskText extracts priority and tag tokens from checklist text.
func parseTaskText(text string) TaskTemplate {
	var task TaskTemplate

	title := bracketRe.ReplaceAllStringFunc(text, func(match string) string {
		if strings.HasSuffix(match, "(") {
			// Markdown link text, keep it.
			return match
		}
		token := strings.TrimSpace(match[1 : len(match)-1])
		if p := NormalizePriority(token); p != "" {
			if task.Priority == "" {
				task.Priority = p
			}
			return " "
		}
		if tagTokenRe.MatchString(token) {
			task.Tags = appendTag(task.Tags, token)
			return " "
		}
		return match
	})

	task.Title = strings.Join(strings.Fields(title), " ")
	return task
}

func appendTag(tags []string, tag string) []string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return tags
	}
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}

// cleanHeading strips markdown emphasis from heading text.
func cleanHeading(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	s = strings.Trim(s, "`*_ ")
	return strings.Join(strings.Fields(s), " ")
}

// detectPhase finds a phase code like "0A", "1" or "3" in heading text.
func detectPhase(name string) string {
	for _, re := range []*regexp.Regexp{phaseWordRe, phaseBracketRe, phaseLeadRe} {
		if m := re.FindStringSubmatch(name); m != nil {
			return normalizePhase(m[1])
		}
	}
	return ""
}

func normalizePhase(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
