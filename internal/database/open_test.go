package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/imageflow/config"
)

func TestDialector(t *testing.T) {
	tests := []struct {
		driver  string
		name    string
		want    string
		wantErr bool
	}{
		{driver: "sqlite", name: "imageflow.db", want: "sqlite"},
		{driver: "SQLite", name: "imageflow.db", want: "sqlite"},
		{driver: "postgres", name: "imageflow", want: "postgres"},
		{driver: "mysql", name: "imageflow", want: "mysql"},
		{driver: "sqlite", name: "", wantErr: true},
		{driver: "oracle", name: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver+"/"+tt.name, func(t *testing.T) {
			d, err := Dialector(config.DatabaseConfig{Driver: tt.driver, Name: tt.name, Host: "localhost", Port: 5432})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

type uniqueRow struct {
	ID  uint   `gorm:"primaryKey"`
	Key string `gorm:"uniqueIndex"`
}

func TestOpen_SQLiteTranslatesDuplicateKey(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "sqlite", Name: filepath.Join(t.TempDir(), "imageflow.db")}

	db, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)

	pm, err := NewPoolManager("primary", db, PoolConfigFrom(cfg), nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })

	require.NoError(t, pm.Ping(context.Background()))
	require.NoError(t, db.AutoMigrate(&uniqueRow{}))

	require.NoError(t, db.Create(&uniqueRow{Key: "a"}).Error)
	err = db.Create(&uniqueRow{Key: "a"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}
