package rebuild

import (
	"testing"
	"time"

	"github.com/restitch/restitch/internal"
	"github.com/stretchr/testify/assert"
)

func TestMemSessionStoreRoundTrip(t *testing.T) {
	store := NewMemSessionStore()
	meta := &SessionMeta{ID: "s1", ReferenceBytes: 8192, StartSector: 64, CreatedAt: time.Now()}
	assert.NoError(t, store.Create(meta))

	got, err := store.LoadMeta("s1")
	assert.NoError(t, err)
	assert.Equal(t, meta.ReferenceBytes, got.ReferenceBytes)
	assert.Equal(t, meta.StartSector, got.StartSector)

	assert.NoError(t, store.SaveEntries("s1", []Placement{
		{Index: 4, Addr: 104, Conf: 2},
		{Index: 1, Addr: 101, Conf: 2},
	}))
	// a later checkpoint upserts by index
	assert.NoError(t, store.SaveEntries("s1", []Placement{
		{Index: 4, Addr: 204, Conf: 5},
	}))

	entries, err := store.LoadEntries("s1")
	assert.NoError(t, err)
	assert.Equal(t, []Placement{
		{Index: 1, Addr: 101, Conf: 2},
		{Index: 4, Addr: 204, Conf: 5},
	}, entries)
}

func TestMemSessionStoreUnknownSession(t *testing.T) {
	store := NewMemSessionStore()
	_, err := store.LoadMeta("nope")
	assert.ErrorIs(t, err, internal.ErrNoSession)
	_, err = store.LoadEntries("nope")
	assert.ErrorIs(t, err, internal.ErrNoSession)
	assert.ErrorIs(t, store.SaveEntries("nope", nil), internal.ErrNoSession)
}

func TestMemSessionStoreDrop(t *testing.T) {
	store := NewMemSessionStore()
	assert.NoError(t, store.Create(&SessionMeta{ID: "s2"}))
	assert.NoError(t, store.Drop("s2"))
	_, err := store.LoadMeta("s2")
	assert.ErrorIs(t, err, internal.ErrNoSession)
}

func TestParsePlacement(t *testing.T) {
	testCases := []struct {
		name      string
		field     string
		val       string
		expected  Placement
		expectErr bool
	}{
		{"Valid", "12", "3400/7", Placement{Index: 12, Addr: 3400, Conf: 7}, false},
		{"Missing Separator", "12", "3400", Placement{}, true},
		{"Bad Index", "x", "3400/7", Placement{}, true},
		{"Bad Addr", "12", "x/7", Placement{}, true},
		{"Bad Conf", "12", "3400/x", Placement{}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := parsePlacement(tc.field, tc.val)
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expected, p)
			}
		})
	}
}
