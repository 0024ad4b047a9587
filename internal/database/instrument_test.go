package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/testutil/mocks"
)

type note struct {
	ID   uint `gorm:"primaryKey"`
	Body string
}

func TestInstrument(t *testing.T) {
	pm, err := Open(OpenConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "instrument.db"),
		Pool:   PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1},
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })

	rec := mocks.NewRecorder()
	require.NoError(t, Instrument(pm.DB(), "sqlite", rec))

	db := pm.DB()
	require.NoError(t, db.Exec("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)").Error)
	require.NoError(t, db.Create(&note{Body: "hello"}).Error)

	var got []note
	require.NoError(t, db.Find(&got).Error)
	require.Len(t, got, 1)

	assert.Equal(t, 1, rec.Count("db_query:sqlite:raw"))
	assert.Equal(t, 1, rec.Count("db_query:sqlite:create"))
	assert.Equal(t, 1, rec.Count("db_query:sqlite:query"))
}

func TestInstrument_NilObserver(t *testing.T) {
	_, gormDB := mockGorm(t)
	assert.NoError(t, Instrument(gormDB, "postgres", nil))
}
