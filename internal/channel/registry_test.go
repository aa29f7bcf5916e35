package channel_test

import (
	"testing"

	"github.com/memohai/relay/internal/channel"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	reg.MustRegister(testPlatform{})

	if _, ok := reg.Get(channel.Type(" TEST ")); !ok {
		t.Fatal("expected lookup to normalize the type")
	}
	p, ok := reg.Platform(testChannelType)
	if !ok || p == nil {
		t.Fatalf("Platform(test) = (%v, %v), want full capability set", p, ok)
	}
	policy, ok := reg.GetOutboundPolicy(testChannelType)
	if !ok || policy.TextLimit != 100 || policy.TruncationSuffix == "" {
		t.Fatalf("unexpected policy: %+v", policy)
	}
}

func TestRegistryRejectsDuplicatesAndNil(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	if err := reg.Register(nil); err == nil {
		t.Fatal("expected error for nil adapter")
	}
	if err := reg.Register(typeOnlyAdapter{t: ""}); err == nil {
		t.Fatal("expected error for empty type")
	}
	reg.MustRegister(testPlatform{})
	if err := reg.Register(testPlatform{}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestRegistryCapabilityLookupsOnPartialAdapter(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	reg.MustRegister(typeOnlyAdapter{t: "partial"})

	if _, ok := reg.Get("partial"); !ok {
		t.Fatal("partial adapter should still be registered")
	}
	if _, ok := reg.Platform("partial"); ok {
		t.Fatal("partial adapter should not satisfy Platform")
	}
	if _, ok := reg.Platform("unknown"); ok {
		t.Fatal("unknown type should not resolve")
	}
}

func TestRegistryParseTypeAndTypes(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	reg.MustRegister(typeOnlyAdapter{t: "zeta"})
	reg.MustRegister(typeOnlyAdapter{t: "alpha"})

	if ct, err := reg.ParseType("ALPHA"); err != nil || ct != "alpha" {
		t.Fatalf("ParseType(ALPHA) = (%q, %v)", ct, err)
	}
	if _, err := reg.ParseType("missing"); err == nil {
		t.Fatal("expected error for unregistered type")
	}
	types := reg.Types()
	if len(types) != 2 || types[0] != "alpha" || types[1] != "zeta" {
		t.Fatalf("Types() = %v", types)
	}
}
