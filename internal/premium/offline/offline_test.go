package offline

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestUUID(t *testing.T) {
	tests := []struct {
		username string
		want     string
	}{
		{"Notch", "b50ad385-829d-3141-a216-7e7d7539ba7f"},
		{"notch", "42653081-a90e-3475-b3d6-3550cdb43f8e"},
		{"jeb_", "a762f560-4fce-3236-812a-b80efff0b62b"},
		{"", "fc5bc365-aedf-30a8-8b89-04e462e29bde"},
		{"Ünïcode", "941d2424-a912-39a3-b1f4-93a200dd8cb0"},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			got := UUID(tt.username)
			assert.Equal(t, uuid.MustParse(tt.want), got)
			assert.Equal(t, uuid.Version(3), got.Version())
			assert.Equal(t, uuid.RFC4122, got.Variant())
		})
	}
}

func TestUUID_Deterministic(t *testing.T) {
	for _, name := range []string{"Steve", "Alex", "x", "a_very_long_name"} {
		assert.Equal(t, UUID(name), UUID(name))
	}
}

func TestUUID_DistinctInputs(t *testing.T) {
	seen := make(map[uuid.UUID]string)
	names := []string{"Steve", "steve", "STEVE", "Steve ", " Steve", "Alex", "alex", "Notch", "Dinnerbone"}
	for _, name := range names {
		id := UUID(name)
		if prev, ok := seen[id]; ok {
			t.Fatalf("collision between %q and %q", prev, name)
		}
		seen[id] = name
	}
}

func TestIsOffline(t *testing.T) {
	assert.True(t, IsOffline("Notch", uuid.MustParse("b50ad385-829d-3141-a216-7e7d7539ba7f")))
	// Notch's real account id, issued by the authority.
	assert.False(t, IsOffline("Notch", uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")))
	assert.False(t, IsOffline("notch", UUID("Notch")), "case matters")
}
