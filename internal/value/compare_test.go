package value

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare_TypeOrder(t *testing.T) {
	// null < boolean < number < timestamp < string < reference < array < map
	ordered := []Value{
		Null{},
		Boolean(true),
		Double(math.Inf(1)),
		NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		String(""),
		Reference("rooms/a"),
		Array{},
		Map{},
	}

	for i := 0; i < len(ordered); i++ {
		for j := 0; j < len(ordered); j++ {
			got := Compare(ordered[i], ordered[j])
			switch {
			case i < j:
				assert.Equal(t, -1, got, "expected %T < %T", ordered[i], ordered[j])
			case i > j:
				assert.Equal(t, 1, got, "expected %T > %T", ordered[i], ordered[j])
			default:
				assert.Equal(t, 0, got, "expected %T == %T", ordered[i], ordered[j])
			}
		}
	}
}

func TestCompare_Numbers(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"int equals double", Integer(42), Double(42.0), 0},
		{"double equals int", Double(42.0), Integer(42), 0},
		{"int less than double", Integer(21), Double(21.5), -1},
		{"nan before everything", Double(math.NaN()), Double(math.Inf(-1)), -1},
		{"nan equals nan", Double(math.NaN()), Double(math.NaN()), 0},
		{"neg infinity before finite", Double(math.Inf(-1)), Integer(math.MinInt64), -1},
		{"infinity after finite", Double(math.Inf(1)), Integer(math.MaxInt64), 1},
		{"large int64 precision", Integer(math.MaxInt64), Integer(math.MaxInt64 - 1), 1},
		{"zero equals negative zero", Double(0), Double(math.Copysign(0, -1)), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestCompare_StringsAndReferences(t *testing.T) {
	assert.Equal(t, -1, Compare(String("a"), String("b")))
	assert.Equal(t, 0, Compare(String("a"), String("a")))
	assert.Equal(t, 1, Compare(String("b"), String("a")))

	// A string never equals a reference with the same bytes.
	assert.Equal(t, -1, Compare(String("rooms/a"), Reference("rooms/a")))
}

func TestCompare_Timestamps(t *testing.T) {
	early := NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	late := NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 1, time.UTC))

	assert.Equal(t, -1, Compare(early, late))
	assert.Equal(t, 1, Compare(late, early))
	assert.Equal(t, 0, Compare(early, early))
}

func TestCompare_Arrays(t *testing.T) {
	tests := []struct {
		name string
		a, b Array
		want int
	}{
		{"equal", Array{Integer(1), Integer(2)}, Array{Integer(1), Integer(2)}, 0},
		{"element order", Array{Integer(1), Integer(3)}, Array{Integer(1), Integer(2)}, 1},
		{"prefix shorter first", Array{Integer(1)}, Array{Integer(1), Integer(2)}, -1},
		{"mixed types by rank", Array{Boolean(true)}, Array{Integer(0)}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestCompare_Maps(t *testing.T) {
	tests := []struct {
		name string
		a, b Map
		want int
	}{
		{"equal", Map{"a": Integer(1)}, Map{"a": Integer(1)}, 0},
		{"key order first", Map{"a": Integer(9)}, Map{"b": Integer(1)}, -1},
		{"value order second", Map{"a": Integer(1)}, Map{"a": Integer(2)}, -1},
		{"subset smaller", Map{"a": Integer(1)}, Map{"a": Integer(1), "b": Integer(2)}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestEqual_NaN(t *testing.T) {
	assert.True(t, Equal(Double(math.NaN()), Double(math.NaN())))
	assert.False(t, Equal(Double(math.NaN()), Double(0)))
	assert.True(t, IsNaN(Double(math.NaN())))
	assert.False(t, IsNaN(Integer(0)))
}

func TestFromGo_Conversions(t *testing.T) {
	got, err := FromGo(map[string]any{
		"name":  "alice",
		"age":   30,
		"score": 99.5,
		"tags":  []any{"a", "b"},
		"gone":  nil,
	})
	require.NoError(t, err)

	m, ok := got.(Map)
	require.True(t, ok)
	assert.Equal(t, String("alice"), m["name"])
	assert.Equal(t, Integer(30), m["age"])
	assert.Equal(t, Double(99.5), m["score"])
	assert.Equal(t, Array{String("a"), String("b")}, m["tags"])
	assert.Equal(t, Null{}, m["gone"])
}

func TestFromGo_Unsupported(t *testing.T) {
	_, err := FromGo(struct{}{})
	require.Error(t, err)
}

func TestClone_DeepCopiesContainers(t *testing.T) {
	orig := Map{"inner": Array{Integer(1)}}
	copied := Clone(orig).(Map)

	copied["inner"].(Array)[0] = Integer(99)
	assert.Equal(t, Integer(1), orig["inner"].(Array)[0])
}
