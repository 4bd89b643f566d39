package docstore_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chirino/cryptochat-server/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Counter int               `json:"counter"`
	Rows    map[string]string `json:"rows,omitempty"`
}

func testPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "db.json")
}

func TestOpenMissingFile(t *testing.T) {
	s, err := docstore.Open[testDoc](testPath(t))
	require.NoError(t, err)

	err = s.View(func(doc *testDoc) error {
		assert.Zero(t, doc.Counter)
		assert.Empty(t, doc.Rows)
		return nil
	})
	require.NoError(t, err)
}

func TestOpenMalformedDocumentFails(t *testing.T) {
	path := testPath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := docstore.Open[testDoc](path)
	require.Error(t, err)
	var ioErr *docstore.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "decode", ioErr.Op)
}

func TestUpdatePersistsAcrossReopen(t *testing.T) {
	path := testPath(t)
	s, err := docstore.Open[testDoc](path)
	require.NoError(t, err)

	err = s.Update(func(doc *testDoc) error {
		doc.Counter = 7
		doc.Rows = map[string]string{"a": "b"}
		return nil
	})
	require.NoError(t, err)

	reopened, err := docstore.Open[testDoc](path)
	require.NoError(t, err)
	err = reopened.View(func(doc *testDoc) error {
		assert.Equal(t, 7, doc.Counter)
		assert.Equal(t, "b", doc.Rows["a"])
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateAbortsOnError(t *testing.T) {
	path := testPath(t)
	s, err := docstore.Open[testDoc](path)
	require.NoError(t, err)

	require.NoError(t, s.Update(func(doc *testDoc) error {
		doc.Counter = 1
		return nil
	}))

	boom := errors.New("boom")
	err = s.Update(func(doc *testDoc) error {
		doc.Counter = 99
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(func(doc *testDoc) error {
		assert.Equal(t, 1, doc.Counter, "failed update must not be written")
		return nil
	})
	require.NoError(t, err)
}

func TestViewMutationsDiscarded(t *testing.T) {
	s, err := docstore.Open[testDoc](testPath(t))
	require.NoError(t, err)

	require.NoError(t, s.View(func(doc *testDoc) error {
		doc.Counter = 42
		return nil
	}))
	require.NoError(t, s.View(func(doc *testDoc) error {
		assert.Zero(t, doc.Counter)
		return nil
	}))
}
