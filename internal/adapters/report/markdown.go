// Package report renders run reports and delivers them to files, mail and
// the log
package report

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/mikey/llm-mail-triage/internal/core"
)

var sectionTitles = map[core.Action]string{
	core.ActionKeep:    "Kept",
	core.ActionLabel:   "Labelled",
	core.ActionArchive: "Archived",
	core.ActionTrash:   "Trashed (quarantine)",
}

const markdownTemplate = `# Mail Triage Report – {{ .Date }}

Run: {{ .RunID }}
Duration: {{ printf "%.1f" .Seconds }}s
{{- if .DryRun }}

> Dry run: no changes were made to the mailbox.
{{- end }}

## Summary
{{ range .Counts }}- {{ .Action }}: {{ .Count }}
{{ end }}- total: {{ .Total }}
{{ range .Sections }}
## {{ .Title }}
{{ range .Subjects }}- {{ . }}
{{ end }}{{ end }}{{ if .Errors }}
## Errors
{{ range .Errors }}- {{ . }}
{{ end }}{{ end }}
---
Configuration snapshot:
- dry_run: {{ .DryRun }}
- action: {{ .JunkAction }}
{{- if .PreserveDays }}
- preserve_days: {{ .PreserveDays }}
{{- end }}
{{- if .Watermark }}
- watermark: {{ .Watermark }}
{{- end }}
`

type countRow struct {
	Action core.Action
	Count  int
}

type section struct {
	Title    string
	Subjects []string
}

type view struct {
	Date         string
	RunID        string
	Seconds      float64
	DryRun       bool
	Counts       []countRow
	Total        int
	Sections     []section
	Errors       []string
	JunkAction   core.Action
	PreserveDays int
	Watermark    string
}

// Renderer turns a RunReport into Markdown
type Renderer struct {
	tmpl         *template.Template
	junkAction   core.Action
	preserveDays int
}

// NewRenderer creates a new renderer. junkAction is echoed in the
// configuration snapshot.
func NewRenderer(junkAction core.Action) *Renderer {
	return &Renderer{
		tmpl:       template.Must(template.New("report").Parse(markdownTemplate)),
		junkAction: junkAction,
	}
}

// WithPreserveDays echoes the quarantine retention in the snapshot
func (r *Renderer) WithPreserveDays(days int) *Renderer {
	r.preserveDays = days
	return r
}

// Render returns the Markdown for report
func (r *Renderer) Render(report core.RunReport) (string, error) {
	v := view{
		Date:         report.FinishedAt.Format("2006-01-02"),
		RunID:        report.RunID,
		Seconds:      report.Duration().Seconds(),
		DryRun:       report.DryRun,
		Total:        report.Total(),
		Errors:       report.Errors,
		JunkAction:   r.junkAction,
		PreserveDays: r.preserveDays,
	}
	if !report.Watermark.IsZero() {
		v.Watermark = report.Watermark.UTC().Format(time.RFC3339)
	}
	for _, a := range core.Actions {
		v.Counts = append(v.Counts, countRow{Action: a, Count: report.Counts[a]})
		if subjects := report.Examples[a]; len(subjects) > 0 {
			v.Sections = append(v.Sections, section{Title: sectionTitles[a], Subjects: subjects})
		}
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

// Subject is a one-line summary used for mail subjects
func Subject(report core.RunReport) string {
	prefix := "Mail triage"
	if report.DryRun {
		prefix += " (dry run)"
	}
	return fmt.Sprintf("%s %s: %d processed, %d trashed, %d errors",
		prefix,
		report.FinishedAt.Format("2006-01-02"),
		report.Total(),
		report.Counts[core.ActionTrash],
		len(report.Errors))
}
