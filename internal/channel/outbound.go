package channel

import (
	"log/slog"
	"unicode/utf8"
)

// DefaultTextLimit applies when a descriptor leaves TextLimit unset.
const DefaultTextLimit = 2000

// DefaultTruncationSuffix marks a reply cut at the platform ceiling.
const DefaultTruncationSuffix = "\n\n… (truncated, view the full answer in the web app)"

// OutboundPolicy holds per-platform size rules for a single message.
type OutboundPolicy struct {
	TextLimit        int    `json:"text_limit,omitempty"`
	TruncationSuffix string `json:"truncation_suffix,omitempty"`
}

// NormalizeOutboundPolicy fills zero fields with defaults.
func NormalizeOutboundPolicy(policy OutboundPolicy) OutboundPolicy {
	if policy.TextLimit <= 0 {
		policy.TextLimit = DefaultTextLimit
	}
	if policy.TruncationSuffix == "" {
		policy.TruncationSuffix = DefaultTruncationSuffix
	}
	return policy
}

// EnforceLimit truncates text so that it is exactly TextLimit characters
// long, suffix included, when it exceeds the limit. Lengths are counted in
// runes so multi-byte text is never split inside a character.
func EnforceLimit(log *slog.Logger, text string, policy OutboundPolicy) string {
	policy = NormalizeOutboundPolicy(policy)
	length := utf8.RuneCountInString(text)
	if length <= policy.TextLimit {
		return text
	}
	if log != nil {
		log.Warn("message exceeds platform limit, truncating",
			slog.Int("length", length),
			slog.Int("limit", policy.TextLimit))
	}
	suffix := []rune(policy.TruncationSuffix)
	if len(suffix) >= policy.TextLimit {
		return string(suffix[:policy.TextLimit])
	}
	keep := policy.TextLimit - len(suffix)
	return string([]rune(text)[:keep]) + string(suffix)
}

// WithReservedTail returns a policy whose limit leaves room for tail, so
// that EnforceLimit(text)+tail still fits the original limit.
func (p OutboundPolicy) WithReservedTail(tail string) OutboundPolicy {
	p = NormalizeOutboundPolicy(p)
	reserved := p.TextLimit - utf8.RuneCountInString(tail)
	if reserved < 1 {
		reserved = 1
	}
	p.TextLimit = reserved
	return p
}
