package registry

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contentChanged struct {
	ContentID string `json:"content_id"`
	Version   int    `json:"version"`
}

type cacheKeys []string

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantErr bool
	}{
		{name: "empty registry", entries: nil},
		{
			name: "distinct entries",
			entries: []Entry{
				Of[contentChanged]("ContentChanged"),
				Of[cacheKeys]("CacheKeys"),
				Of[string]("string"),
			},
		},
		{name: "empty name", entries: []Entry{Of[string]("")}, wantErr: true},
		{name: "nil type", entries: []Entry{{Name: "nothing"}}, wantErr: true},
		{name: "interface type", entries: []Entry{Of[any]("any")}, wantErr: true},
		{
			name:    "duplicate name",
			entries: []Entry{Of[string]("value"), Of[int]("value")},
			wantErr: true,
		},
		{
			name:    "duplicate type",
			entries: []Entry{Of[string]("a"), Of[string]("b")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.entries...)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEntry)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.entries), r.Len())
		})
	}
}

func TestNameOfAndTypeOf(t *testing.T) {
	r := MustNew(
		Of[contentChanged]("ContentChanged"),
		Of[*contentChanged]("ContentChangedRef"),
		Of[cacheKeys]("CacheKeys"),
	)

	name, ok := r.NameOf(contentChanged{ContentID: "42"})
	assert.True(t, ok)
	assert.Equal(t, "ContentChanged", name)

	name, ok = r.NameOf(&contentChanged{})
	assert.True(t, ok)
	assert.Equal(t, "ContentChangedRef", name)

	typ, ok := r.TypeOf("CacheKeys")
	assert.True(t, ok)
	assert.Equal(t, reflect.TypeOf(cacheKeys{}), typ)

	// Underlying type is not the registered named type.
	_, ok = r.NameOf([]string{"a"})
	assert.False(t, ok)

	_, ok = r.NameOf(nil)
	assert.False(t, ok)

	_, ok = r.TypeOf("registry.contentChanged")
	assert.False(t, ok)
}

func TestNamesSorted(t *testing.T) {
	r := MustNew(Of[int]("int"), Of[string]("string"), Of[bool]("bool"))
	assert.Equal(t, []string{"bool", "int", "string"}, r.Names())
}

func TestMustNewPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustNew(Of[string]("x"), Of[int]("x"))
	})
}
