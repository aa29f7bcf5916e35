package channel

import "context"

// Adapter is the minimal contract every platform implementation satisfies.
type Adapter interface {
	Type() Type
	Descriptor() Descriptor
}

// Verifier authenticates a raw inbound event before anything decodes it.
type Verifier interface {
	Verify(ev InboundEvent) error
}

// Parser turns a verified inbound event into a ParseResult.
type Parser interface {
	Parse(ev InboundEvent) (ParseResult, error)
}

// Formatter converts canonical markdown to the platform's dialect.
type Formatter interface {
	Format(text string) string
}

// Messenger performs the only two remote side effects. Both are safe to
// repeat: the last Update observed by the platform wins.
type Messenger interface {
	Post(ctx context.Context, cred Credential, reply ReplyHandle, text string) (MessageHandle, error)
	Update(ctx context.Context, cred Credential, handle MessageHandle, text string) error
}

// Platform is an adapter implementing the full relay capability set.
type Platform interface {
	Adapter
	Verifier
	Parser
	Formatter
	Messenger
}
