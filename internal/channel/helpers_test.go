package channel_test

import (
	"context"

	"github.com/memohai/relay/internal/channel"
)

const testChannelType = channel.Type("test")

type testHandle struct{ id string }

func (testHandle) Platform() channel.Type { return testChannelType }

// testPlatform implements every capability with no remote side effects.
type testPlatform struct{}

func (testPlatform) Type() channel.Type { return testChannelType }

func (testPlatform) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:           testChannelType,
		DisplayName:    "Test",
		OutboundPolicy: channel.OutboundPolicy{TextLimit: 100},
	}
}

func (testPlatform) Verify(channel.InboundEvent) error { return nil }

func (testPlatform) Parse(channel.InboundEvent) (channel.ParseResult, error) {
	return channel.ParseResult{Kind: channel.ParseIgnore}, nil
}

func (testPlatform) Format(text string) string { return text }

func (testPlatform) Post(context.Context, channel.Credential, channel.ReplyHandle, string) (channel.MessageHandle, error) {
	return testHandle{id: "1"}, nil
}

func (testPlatform) Update(context.Context, channel.Credential, channel.MessageHandle, string) error {
	return nil
}

// typeOnlyAdapter implements only the base Adapter contract.
type typeOnlyAdapter struct{ t channel.Type }

func (a typeOnlyAdapter) Type() channel.Type { return a.t }

func (a typeOnlyAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{Type: a.t}
}
