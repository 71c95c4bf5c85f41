package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/multisense/agent/internal/gateway"
)

// ScriptGenerator is a deterministic gateway.Generator. It matches the last
// user message against registered substrings and returns the paired reply;
// unmatched inputs get the fallback. Every call is recorded.
//
// Thread-safe for concurrent use.
type ScriptGenerator struct {
	mu       sync.Mutex
	rules    []scriptRule
	fallback string
	calls    []gateway.GenerateRequest
	err      error
}

type scriptRule struct {
	pattern string
	reply   string
}

// NewScriptGenerator creates a generator with the given fallback reply.
func NewScriptGenerator(fallback string) *ScriptGenerator {
	return &ScriptGenerator{fallback: fallback}
}

// Reply registers a pattern-reply pair. Patterns are matched
// case-insensitively against the last message; first match wins.
func (g *ScriptGenerator) Reply(pattern, reply string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, scriptRule{pattern: strings.ToLower(pattern), reply: reply})
}

// FailWith makes every subsequent Generate call return err. Pass nil to
// restore normal behavior.
func (g *ScriptGenerator) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// Calls returns a copy of every recorded request.
func (g *ScriptGenerator) Calls() []gateway.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := make([]gateway.GenerateRequest, len(g.calls))
	copy(cp, g.calls)
	return cp
}

// LastCall returns the most recent request, or a zero request when none.
func (g *ScriptGenerator) LastCall() gateway.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.calls) == 0 {
		return gateway.GenerateRequest{}
	}
	return g.calls[len(g.calls)-1]
}

// Generate implements gateway.Generator.
func (g *ScriptGenerator) Generate(_ context.Context, req gateway.GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, req)
	if g.err != nil {
		return "", g.err
	}

	var last string
	if len(req.Messages) > 0 {
		last = strings.ToLower(req.Messages[len(req.Messages)-1].Text)
	}
	for _, rule := range g.rules {
		if strings.Contains(last, rule.pattern) {
			return rule.reply, nil
		}
	}
	return g.fallback, nil
}
