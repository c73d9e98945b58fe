package override_test

import (
	"testing"

	"github.com/aussiebroadwan/tabsession/pkg/override"
	"github.com/stretchr/testify/require"
)

type impl struct {
	Greet    func(name string) string
	Welcome  func(name string) string
	Disabled func() string
}

func TestLayerOrder(t *testing.T) {
	var log []string

	b := override.New(func(self *impl) impl {
		return impl{Greet: func(name string) string {
			log = append(log, "B")
			return "hello " + name
		}}
	})
	layer := func(tag string) override.Layer[impl] {
		return func(original impl) impl {
			next := original
			next.Greet = func(name string) string {
				log = append(log, tag)
				return original.Greet(name)
			}
			return next
		}
	}
	b.Override(layer("O1")).Override(layer("O2"))

	require.Equal(t, "hello bob", b.Build().Greet("bob"))
	require.Equal(t, []string{"O2", "O1", "B"}, log)
}

func TestSelfReachesOutermostLayer(t *testing.T) {
	b := override.New(func(self *impl) impl {
		return impl{
			Greet:   func(name string) string { return "hello " + name },
			Welcome: func(name string) string { return self.Greet(name) + ", welcome" },
		}
	})
	b.Override(func(original impl) impl {
		original.Greet = func(name string) string { return "hi " + name }
		return original
	})

	got := b.Build()
	require.Equal(t, "hi ann, welcome", got.Welcome("ann"))
}

func TestUntouchedFieldsFallThrough(t *testing.T) {
	b := override.New(func(self *impl) impl {
		return impl{
			Greet:   func(string) string { return "base greet" },
			Welcome: func(string) string { return "base welcome" },
		}
	})
	b.Override(func(original impl) impl {
		original.Greet = func(string) string { return "layer greet" }
		return original
	})

	got := b.Build()
	require.Equal(t, "layer greet", got.Greet(""))
	require.Equal(t, "base welcome", got.Welcome(""))
}

func TestNilDisablesAndLayersCanEnable(t *testing.T) {
	base := func(self *impl) impl {
		return impl{Greet: func(string) string { return "x" }}
	}

	plain := override.New(base).Build()
	require.Nil(t, plain.Disabled)

	disableGreet := override.New(base).Override(func(original impl) impl {
		original.Greet = nil
		return original
	}).Build()
	require.Nil(t, disableGreet.Greet)

	enabled := override.New(base).Override(func(original impl) impl {
		original.Disabled = func() string { return "on" }
		return original
	}).Build()
	require.Equal(t, "on", enabled.Disabled())
}

func TestBuildIsIdempotent(t *testing.T) {
	calls := 0
	b := override.New(func(self *impl) impl {
		calls++
		return impl{}
	})
	b.Override(nil)

	first := b.Build()
	second := b.Build()
	require.Same(t, first, second)
	require.Same(t, b.Self(), first)
	require.Equal(t, 1, calls)

	require.Panics(t, func() { b.Override(func(o impl) impl { return o }) })
}
