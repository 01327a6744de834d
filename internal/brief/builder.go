// Package brief renders the markdown brief an agent reads after claiming a
// task: what the task is, where it came from and what has happened to it.
package brief

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/imkarma/taskhive/internal/store"
)

// maxRelated caps the sibling list so briefs of huge categories stay short.
const maxRelated = 10

// Builder constructs task briefs from the backlog.
type Builder struct {
	store *store.Store
	now   func() time.Time
}

// New creates a brief builder.
func New(s *store.Store) *Builder {
	return &Builder{store: s, now: time.Now}
}

// Build renders the brief for task. Sections:
// 1. Task summary and description
// 2. Source list the task was imported from
// 3. Other open tasks in the same category
// 4. Event history
// 5. Working agreement for the holder
func (b *Builder) Build(ctx context.Context, task *store.Task) (string, error) {
	var parts []string

	parts = append(parts, b.taskSection(task))

	if task.Provenance != nil {
		parts = append(parts, b.sourceSection(task.Provenance))
	}

	related, err := b.relatedSection(ctx, task)
	if err != nil {
		return "", err
	}
	if related != "" {
		parts = append(parts, related)
	}

	history, err := b.eventHistory(ctx, task.ID)
	if err != nil {
		return "", err
	}
	if history != "" {
		parts = append(parts, history)
	}

	parts = append(parts, b.instructions(task))

	return strings.Join(parts, "\n\n"), nil
}

func (b *Builder) taskSection(task *store.Task) string {
	var sb strings.Builder

	sb.WriteString("# Task brief\n")
	sb.WriteString(fmt.Sprintf("**%s: %s**\n", task.ShortID(), task.Title))
	sb.WriteString(fmt.Sprintf("ID: %s\n", task.ID))
	sb.WriteString(fmt.Sprintf("Status: %s | Priority: %s\n", task.Status, task.Priority))
	if task.Category != "" {
		sb.WriteString(fmt.Sprintf("Category: %s\n", task.Category))
	}
	if task.Phase != "" {
		sb.WriteString(fmt.Sprintf("Phase: %s\n", task.Phase))
	}
	if len(task.Tags) > 0 {
		sb.WriteString(fmt.Sprintf("Tags: %s\n", strings.Join(task.Tags, ", ")))
	}
	if task.Claim != nil {
		sb.WriteString(fmt.Sprintf("Claimed by %s %s\n", task.Claim.Holder, humanize.RelTime(task.Claim.ClaimedAt, b.now(), "ago", "from now")))
	}

	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n## Description\n%s\n", task.Description))
	}

	return sb.String()
}

func (b *Builder) sourceSection(p *store.Provenance) string {
	var sb strings.Builder
	sb.WriteString("## Source\n")
	sb.WriteString(fmt.Sprintf("Imported from **%s** (%s)\n", p.ListName, p.SourceFile))
	sb.WriteString(fmt.Sprintf("Import %s, %s\n", p.ImportID, humanize.RelTime(p.ImportedAt, b.now(), "ago", "from now")))
	return sb.String()
}

func (b *Builder) relatedSection(ctx context.Context, task *store.Task) (string, error) {
	if task.Category == "" {
		return "", nil
	}
	siblings, err := b.store.ListTasks(ctx, store.TaskFilter{Scope: &task.Scope, Category: task.Category})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	n := 0
	for _, s := range siblings {
		if s.ID == task.ID || s.Status == store.StatusDone || s.Status == store.StatusCancelled {
			continue
		}
		if n == maxRelated {
			sb.WriteString("- ...\n")
			break
		}
		holder := ""
		if s.Claim != nil {
			holder = " (held by " + s.Claim.Holder + ")"
		}
		sb.WriteString(fmt.Sprintf("- [%s] %s%s\n", s.Status, s.Title, holder))
		n++
	}
	if n == 0 {
		return "", nil
	}
	return "## Other open tasks in " + task.Category + "\n" + sb.String(), nil
}

func (b *Builder) eventHistory(ctx context.Context, taskID string) (string, error) {
	events, err := b.store.GetEvents(ctx, taskID)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("## History\n")
	for _, e := range events {
		agent := "system"
		if e.Agent != "" {
			agent = e.Agent
		}
		sb.WriteString(fmt.Sprintf("- %s **[%s]** %s: %s\n", humanize.RelTime(e.Timestamp, b.now(), "ago", "from now"), agent, e.Type, e.Content))
	}
	return sb.String(), nil
}

func (b *Builder) instructions(task *store.Task) string {
	return fmt.Sprintf(`## Working agreement
- You hold this task until you release it or change its status
- When you stop without finishing, release it: taskhive release %s
- When done, mark it: taskhive task status %s done`, task.ShortID(), task.ShortID())
}
