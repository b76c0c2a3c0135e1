package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/aldoetobex/falacomigo-backend/pkg/database"
	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := database.Open("mysql", "", zap.NewNop())
	assert.Error(t, err)
}

func TestSQLite_MigrateAndTranslateErrors(t *testing.T) {
	db, err := database.Open("sqlite", ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db))

	p := models.Payment{TransactionID: "VM1", PhoneNumber: "258841234567", Status: models.PayPending}
	require.NoError(t, db.Create(&p).Error)
	assert.NotEqual(t, p.ID.String(), "00000000-0000-0000-0000-000000000000")

	dup := models.Payment{TransactionID: "VM1", PhoneNumber: "258841234567", Status: models.PayPending}
	assert.ErrorIs(t, db.Create(&dup).Error, gorm.ErrDuplicatedKey)

	var got models.Payment
	require.NoError(t, database.ForUpdate(db).First(&got, "transaction_id = ?", "VM1").Error)
	assert.Equal(t, p.ID, got.ID)
}

func TestGormLogger_SkipsRecordNotFound(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	db, err := database.Open("sqlite", ":memory:", zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db))
	before := logs.FilterLoggerName("gorm").Len()

	var p models.Payment
	err = db.First(&p, "transaction_id = ?", "VM-missing").Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Equal(t, before, logs.FilterLoggerName("gorm").Len())

	err = db.Table("no_such_table").Count(new(int64)).Error
	require.Error(t, err)
	assert.Equal(t, 1, logs.FilterLoggerName("gorm").FilterMessageSnippet("no_such_table").Len())
}
