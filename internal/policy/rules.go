package policy

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/safety"
	"go.uber.org/zap"
)

// RuleConfig is a user-defined rule. When is a CEL expression over the
// message that must evaluate to a bool, for example:
//
//	domain == "github.com" && subject.contains("[ci]")
type RuleConfig struct {
	Name   string   `mapstructure:"name"`
	When   string   `mapstructure:"when"`
	Action string   `mapstructure:"action"`
	Labels []string `mapstructure:"labels"`
}

type compiledRule struct {
	name    string
	action  core.Action
	labels  []string
	program cel.Program
}

func newRuleEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("sender", cel.StringType),
		cel.Variable("domain", cel.StringType),
		cel.Variable("from", cel.StringType),
		cel.Variable("subject", cel.StringType),
		cel.Variable("snippet", cel.StringType),
		cel.Variable("body", cel.StringType),
		cel.Variable("labels", cel.ListType(cel.StringType)),
		cel.Variable("to", cel.ListType(cel.StringType)),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
	)
}

func compileRules(cfgs []RuleConfig) ([]*compiledRule, error) {
	if len(cfgs) == 0 {
		return nil, nil
	}

	env, err := newRuleEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	rules := make([]*compiledRule, 0, len(cfgs))
	for i, rc := range cfgs {
		field := fmt.Sprintf("policy.rules[%d]", i)
		if strings.TrimSpace(rc.Name) == "" {
			return nil, &core.ConfigurationError{Field: field, Err: fmt.Errorf("rule name is required")}
		}

		action, ok := core.ParseAction(rc.Action)
		if !ok {
			return nil, &core.ConfigurationError{Field: field, Err: fmt.Errorf("unknown action %q", rc.Action)}
		}
		if action == core.ActionLabel && len(rc.Labels) == 0 {
			return nil, &core.ConfigurationError{Field: field, Err: fmt.Errorf("label rule %q has no labels", rc.Name)}
		}

		ast, issues := env.Compile(rc.When)
		if issues != nil && issues.Err() != nil {
			return nil, &core.ConfigurationError{Field: field, Err: fmt.Errorf("CEL compile error: %w", issues.Err())}
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, &core.ConfigurationError{Field: field, Err: fmt.Errorf("CEL program error: %w", err)}
		}

		rules = append(rules, &compiledRule{
			name:    rc.Name,
			action:  action,
			labels:  append([]string(nil), rc.Labels...),
			program: prg,
		})
	}
	return rules, nil
}

func ruleActivation(msg core.MessageSummary, sender string) map[string]interface{} {
	headers := make(map[string]string, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}
	labels := append([]string{}, msg.Labels...)
	to := append([]string{}, msg.To...)

	return map[string]interface{}{
		"sender":  sender,
		"domain":  safety.DomainOf(sender),
		"from":    msg.From,
		"subject": msg.Subject,
		"snippet": msg.Snippet,
		"body":    msg.Body,
		"labels":  labels,
		"to":      to,
		"headers": headers,
	}
}

// evaluate runs the rule. An evaluation error counts as no match.
func (r *compiledRule) evaluate(msg core.MessageSummary, sender string, logger *zap.Logger) (core.Decision, bool) {
	out, _, err := r.program.Eval(ruleActivation(msg, sender))
	if err != nil {
		logger.Warn("Custom rule evaluation failed",
			zap.String("rule", r.name),
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return core.Decision{}, false
	}

	matched, ok := out.Value().(bool)
	if !ok || !matched {
		return core.Decision{}, false
	}

	return core.Decision{
		Action:      r.action,
		LabelsToAdd: append([]string(nil), r.labels...),
		Reason:      "rule " + r.name,
	}, true
}
