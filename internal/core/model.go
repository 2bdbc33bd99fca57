package core

import (
	"net/textproto"
	"strings"
	"time"
)

// Action is the mailbox state transition chosen for a message
type Action string

const (
	ActionKeep    Action = "keep"
	ActionLabel   Action = "label"
	ActionArchive Action = "archive"
	ActionTrash   Action = "trash"
)

// Actions lists every action in order of increasing destructiveness
var Actions = []Action{ActionKeep, ActionLabel, ActionArchive, ActionTrash}

// Valid reports whether a is one of the known actions
func (a Action) Valid() bool {
	switch a {
	case ActionKeep, ActionLabel, ActionArchive, ActionTrash:
		return true
	}
	return false
}

// Severity orders actions from least (0) to most destructive
func (a Action) Severity() int {
	switch a {
	case ActionKeep:
		return 0
	case ActionLabel:
		return 1
	case ActionArchive:
		return 2
	case ActionTrash:
		return 3
	}
	return 0
}

// ParseAction converts a free-form string to an Action
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	return a, a.Valid()
}

// LeastDestructive returns whichever of a and b is safer
func LeastDestructive(a, b Action) Action {
	if b.Severity() < a.Severity() {
		return b
	}
	return a
}

// Category is the classifier's coarse judgement of a message
type Category string

const (
	CategorySpam       Category = "spam"
	CategoryPromo      Category = "promo"
	CategoryNewsletter Category = "newsletter"
	CategoryPersonal   Category = "personal"
	CategoryReceipt    Category = "receipt"
	CategoryUnknown    Category = "unknown"
)

// ParseCategory maps anything outside the fixed enumeration to CategoryUnknown
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CategorySpam, CategoryPromo, CategoryNewsletter, CategoryPersonal, CategoryReceipt:
		return c
	}
	return CategoryUnknown
}

// DefaultAction is the action implied by a category when the classifier
// did not suggest a usable one
func (c Category) DefaultAction() Action {
	switch c {
	case CategorySpam:
		return ActionTrash
	case CategoryPromo, CategoryNewsletter:
		return ActionArchive
	case CategoryReceipt:
		return ActionLabel
	case CategoryPersonal:
		return ActionKeep
	}
	return ActionArchive
}

// Attribution records which layer produced a decision
type Attribution string

const (
	// ByPolicy covers both safety rules and deterministic policy rules
	ByPolicy Attribution = "policy"
	ByLLM    Attribution = "llm"
)

// Well-known mailbox labels
const (
	LabelInbox     = "INBOX"
	LabelTrash     = "TRASH"
	LabelStarred   = "STARRED"
	LabelImportant = "IMPORTANT"
)

// MessageSummary is an immutable snapshot of one mailbox item
type MessageSummary struct {
	ID       string
	ThreadID string
	From     string
	To       []string
	Cc       []string
	Subject  string
	Snippet  string
	Labels   []string
	Date     time.Time
	Body     string
	// Headers only carries the few headers the policy rules look at,
	// keyed by canonical MIME header name
	Headers map[string]string
}

// HasLabel reports whether the message carries label (case-insensitive)
func (m MessageSummary) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// Header returns the value of the named header or ""
func (m MessageSummary) Header(name string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// Clone returns a deep copy so callers can never alias the original slices
func (m MessageSummary) Clone() MessageSummary {
	c := m
	c.To = append([]string(nil), m.To...)
	c.Cc = append([]string(nil), m.Cc...)
	c.Labels = append([]string(nil), m.Labels...)
	if m.Headers != nil {
		c.Headers = make(map[string]string, len(m.Headers))
		for k, v := range m.Headers {
			c.Headers[k] = v
		}
	}
	return c
}

// Classification is the normalized output of the external classifier
type Classification struct {
	Category        Category
	Confidence      float64
	SuggestedAction Action
	Rationale       string
	Model           string
}

// UnknownClassification is the sentinel used whenever the classifier could
// not give an answer
func UnknownClassification(rationale string) Classification {
	return Classification{
		Category:        CategoryUnknown,
		Confidence:      0.0,
		SuggestedAction: ActionArchive,
		Rationale:       rationale,
	}
}

// IsNoOpinion reports whether c is the unknown sentinel
func (c Classification) IsNoOpinion() bool {
	return c.Category == CategoryUnknown && c.Confidence == 0
}

// Decision is the final, attributed verdict for one message
type Decision struct {
	Message     MessageSummary
	Action      Action
	LabelsToAdd []string
	Reason      string
	By          Attribution
	// Rule names the policy rule or "classifier"
	Rule string
	// Confidence is only set for classifier decisions
	Confidence float64
	Executed   bool
	Error      string
}

// Verdict is the tagged result of a decision strategy: either decisive
// with a Decision, or undecided
type Verdict struct {
	decision Decision
	decisive bool
}

// Decisive wraps d as a decisive verdict
func Decisive(d Decision) Verdict {
	return Verdict{decision: d, decisive: true}
}

// Undecided is the verdict of a strategy with no opinion
func Undecided() Verdict {
	return Verdict{}
}

// Decision returns the decision and whether the verdict was decisive
func (v Verdict) Decision() (Decision, bool) {
	return v.decision, v.decisive
}

// RunReport aggregates one triage run
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Counts     map[Action]int
	Examples   map[Action][]string
	Errors     []string
	Decisions  []Decision
	// Watermark is the value persisted at the end of the run, zero if none
	Watermark time.Time
}

// Total returns the number of processed messages
func (r RunReport) Total() int {
	total := 0
	for _, n := range r.Counts {
		total += n
	}
	return total
}

// Duration is the wall time of the run
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// CacheEntry is a cached classification for one message
type CacheEntry struct {
	MessageID      string
	Classification Classification
	StoredAt       time.Time
	ExpiresAt      time.Time
}
