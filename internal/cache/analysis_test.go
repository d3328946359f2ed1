package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blueprintvision/internal/detection"
)

func TestKey(t *testing.T) {
	a := strings.Repeat("A", 100000)
	b := a[:99999] + "B"
	assert.Equal(t, Key(a, ""), Key(a, ""))
	assert.NotEqual(t, Key(a, ""), Key(b, ""), "tail differs")
	assert.NotEqual(t, Key(a, ""), Key(a, "refine=false"))
	assert.True(t, strings.HasPrefix(Key("abc", ""), "visual:3:"))
}

func TestLRU_GetReturnsCopy(t *testing.T) {
	c := NewLRU(4, time.Minute)
	r := detection.Empty()
	r.Components = append(r.Components, detection.Component{ID: "a", Meta: map[string]any{"k": "v"}})
	c.Put("k", r)

	got, ok := c.Get("k")
	require.True(t, ok)
	got.Components[0].Meta["k"] = "changed"
	got.Components[0].ID = "b"

	again, _ := c.Get("k")
	assert.Equal(t, "a", again.Components[0].ID)
	assert.Equal(t, "v", again.Components[0].Meta["k"])
	assert.Equal(t, 1, c.Len())
}

func TestLRU_Expires(t *testing.T) {
	c := NewLRU(4, 10*time.Millisecond)
	c.Put("k", detection.Empty())
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestLRU_Evicts(t *testing.T) {
	c := NewLRU(2, time.Minute)
	c.Put("a", detection.Empty())
	c.Put("b", detection.Empty())
	c.Put("c", detection.Empty())
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestNop(t *testing.T) {
	var s Store = Nop{}
	s.Put("k", detection.Empty())
	_, ok := s.Get("k")
	assert.False(t, ok)
}

func TestLRU_NestedValuesAreNotShared(t *testing.T) {
	c := NewLRU(4, time.Minute)
	conf := 0.8
	r := detection.Empty()
	r.Components = append(r.Components, detection.Component{
		ID:   "a",
		Meta: map[string]any{"isa": map[string]any{"tag": "PT-101", "functions": []string{"Transmitter"}}},
	})
	r.Connections = append(r.Connections, detection.Connection{ID: "l", FromID: "a", ToID: "a", Confidence: &conf})
	r.Metadata.ControlLoops = []detection.ControlLoop{{Key: "P-101", Components: []string{"a"}}}
	c.Put("k", r)

	got, ok := c.Get("k")
	require.True(t, ok)
	isa := got.Components[0].Meta["isa"].(map[string]any)
	isa["tag"] = "MUTATED"
	isa["functions"].([]string)[0] = "MUTATED"
	*got.Connections[0].Confidence = 0.1
	got.Metadata.ControlLoops[0].Components[0] = "MUTATED"

	again, ok := c.Get("k")
	require.True(t, ok)
	cached := again.Components[0].Meta["isa"].(map[string]any)
	assert.Equal(t, "PT-101", cached["tag"])
	assert.Equal(t, []string{"Transmitter"}, cached["functions"])
	assert.Equal(t, 0.8, *again.Connections[0].Confidence)
	assert.Equal(t, []string{"a"}, again.Metadata.ControlLoops[0].Components)
	assert.Equal(t, "PT-101", r.Components[0].Meta["isa"].(map[string]any)["tag"])
}
