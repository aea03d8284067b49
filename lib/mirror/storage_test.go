package mirror

import (
	"testing"

	"github.com/ValentinKolb/dMirror/lib/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertThenGet(t *testing.T) {
	users := with(t, newShop(t), "users")

	in := record.New("id", 1, "name", "ada", "email", "ada@example.com")
	out, err := users.Insert(in)
	require.NoError(t, err)
	assert.True(t, out.Equal(in))

	got, ok := users.Get(1)
	require.True(t, ok)
	assert.True(t, got.Equal(in), "expected %v, got %v", in, got)

	// numbers compare by value
	_, ok = users.Get(1.0)
	assert.True(t, ok)

	_, ok = users.Get(2)
	assert.False(t, ok)

	i, ok := users.GetIndex(1)
	require.True(t, ok)
	assert.Equal(t, 0, i)
}

func TestInsertCopiesRecord(t *testing.T) {
	users := with(t, newShop(t), "users")

	in := record.New("id", 1, "name", "ada")
	_, err := users.Insert(in)
	require.NoError(t, err)

	in.Set("name", "changed")
	got, _ := users.Get(1)
	name, _ := got.Get("name")
	assert.Equal(t, "ada", name)

	got.Set("name", "also changed")
	again, _ := users.Get(1)
	name, _ = again.Get("name")
	assert.Equal(t, "ada", name)
}

func TestInsertValidation(t *testing.T) {
	m := newShop(t)
	users := with(t, m, "users")

	_, err := users.Insert(record.New("name", "nokey"))
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = users.Insert(record.New("id", true))
	assert.ErrorIs(t, err, ErrInvalidKey)

	insertAll(t, users, record.New("id", 1, "email", "a@example.com"))

	_, err = users.Insert(record.New("id", 1.0, "email", "b@example.com"))
	assert.ErrorIs(t, err, ErrDuplicateKey)

	_, err = users.Insert(record.New("id", 2, "email", "a@example.com"))
	assert.ErrorIs(t, err, ErrConstraint)

	assert.Equal(t, 1, users.Count())
}

func TestInsertAutoIncrement(t *testing.T) {
	orders := with(t, newShop(t), "orders")

	first, err := orders.Insert(record.New("item", "book"))
	require.NoError(t, err)
	no, _ := first.Get("no")
	assert.Equal(t, int64(1), no)

	insertAll(t, orders, record.New("no", 10, "item", "lamp"))

	next, err := orders.Insert(record.New("item", "desk"))
	require.NoError(t, err)
	no, _ = next.Get("no")
	assert.Equal(t, int64(11), no)

	// the generated key is the first field appended after the given ones
	assert.Equal(t, []string{"item", "no"}, next.Names())
}

func TestDelete(t *testing.T) {
	users := with(t, newShop(t), "users")
	insertAll(t, users, record.New("id", 1), record.New("id", 2), record.New("id", 3))

	removed, ok := users.Delete(2)
	require.True(t, ok)
	id, _ := removed.Get("id")
	assert.Equal(t, int64(2), id)

	_, ok = users.Get(2)
	assert.False(t, ok)
	assert.Equal(t, 2, users.Count())
	for _, r := range users.FetchAll() {
		id, _ := r.Get("id")
		assert.NotEqual(t, int64(2), id)
	}

	_, ok = users.Delete(2)
	assert.False(t, ok, "deleting a missing key reports not found")
}

func TestUpdate(t *testing.T) {
	users := with(t, newShop(t), "users")
	insertAll(t, users,
		record.New("id", 1, "name", "ada", "city", "london"),
		record.New("id", 2, "name", "grace", "city", "new york"),
	)

	updated, err := users.Update(1, Change{"name", "ada lovelace"}, Change{"age", 36}, Change{"name", "countess"})
	require.NoError(t, err)

	expected := record.New("id", 1, "name", "countess", "city", "london", "age", 36)
	assert.True(t, updated.Equal(expected), "expected %v, got %v", expected, updated)
	assert.Equal(t, []string{"id", "name", "city", "age"}, updated.Names())

	// position is kept
	i, ok := users.GetIndex(1)
	require.True(t, ok)
	assert.Equal(t, 0, i)

	// other records untouched
	other, _ := users.Get(2)
	assert.True(t, other.Equal(record.New("id", 2, "name", "grace", "city", "new york")))
}

func TestUpdateMissingKey(t *testing.T) {
	users := with(t, newShop(t), "users")
	_, err := users.Update(42, Change{"name", "nobody"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, users.Count())
}

func TestUpdateKeyField(t *testing.T) {
	users := with(t, newShop(t), "users")
	insertAll(t, users,
		record.New("id", 1, "email", "a@example.com"),
		record.New("id", 2, "email", "b@example.com"),
	)

	_, err := users.Update(1, Change{"id", 2})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	_, err = users.Update(1, Change{"id", nil})
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = users.Update(1, Change{"email", "b@example.com"})
	assert.ErrorIs(t, err, ErrConstraint)

	_, err = users.Update(1, Change{"id", 7})
	require.NoError(t, err)
	_, ok := users.Get(1)
	assert.False(t, ok)
	_, ok = users.Get(7)
	assert.True(t, ok)
}

func TestTruncate(t *testing.T) {
	users := with(t, newShop(t), "users")
	insertAll(t, users, record.New("id", 1), record.New("id", 2))

	require.NoError(t, users.Truncate())
	assert.Equal(t, 0, users.Count())
	assert.Empty(t, users.FetchAll())

	// truncating an empty collection is fine
	require.NoError(t, users.Truncate())
}

func TestFetchAllIsSnapshot(t *testing.T) {
	users := with(t, newShop(t), "users")
	insertAll(t, users, record.New("id", 1))

	all := users.FetchAll()
	insertAll(t, users, record.New("id", 2))
	assert.Len(t, all, 1)
	assert.Len(t, users.FetchAll(), 2)
}
