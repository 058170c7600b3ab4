package garden

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsVisible(t *testing.T) {
	t.Parallel()

	member := func(want Privacy) CircleLookup {
		return func(scope Privacy) (bool, error) { return scope == want, nil }
	}

	tests := []struct {
		name    string
		privacy Privacy
		viewer  string
		lookup  CircleLookup
		want    bool
	}{
		{"public to anyone", Public, "bob", nil, true},
		{"public to anonymous", Public, "", nil, true},
		{"private to author", Private, "alice", nil, true},
		{"private to other", Private, "bob", member(Private), false},
		{"connections with membership", Connections, "bob", member(Connections), true},
		{"inner circle needs exact scope", InnerCircle, "bob", member(Connections), false},
		{"community with membership", Community, "bob", member(Community), true},
		{"scoped to anonymous", Community, "", member(Community), false},
		{"scoped to author", InnerCircle, "alice", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := Unit{AuthorID: "alice", Privacy: tt.privacy}
			got, err := IsVisible(u, tt.viewer, tt.lookup)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsVisible_LookupError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, err := IsVisible(Unit{AuthorID: "alice", Privacy: Connections}, "bob",
		func(Privacy) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}
