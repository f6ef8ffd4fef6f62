package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupMockDB opens gorm over a sqlmock connection, the way the
// postgres path connects in production.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	mock.ExpectQuery(`SELECT version\(\)`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("PostgreSQL 16.2"))

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	return db, mock
}

func TestCountQueryShape(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "media_items"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	var count int64
	require.NoError(t, db.Model(&MediaItem{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAndSetDB(t *testing.T) {
	original := GetDB()
	t.Cleanup(func() { SetDB(original) })

	db, _ := setupMockDB(t)
	SetDB(db)
	assert.Equal(t, db, GetDB())
}
