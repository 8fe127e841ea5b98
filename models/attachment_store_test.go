package models

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&Site{}, &Attachment{}))
	return db
}

func TestAttachmentStoreListBySiteOrdersByID(t *testing.T) {
	db := openTestDB(t)
	store := NewAttachmentStore(db)
	ctx := context.Background()

	for _, a := range []*Attachment{
		{SiteID: "s1", ShowName: "a"},
		{SiteID: "s2", ShowName: "other"},
		{SiteID: "s1", ShowName: "b"},
	} {
		require.NoError(t, store.Save(ctx, a))
	}

	items, err := store.ListBySite(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "a", items[0].ShowName)
	require.Equal(t, "b", items[1].ShowName)

	got, err := store.Get(ctx, items[1].ID)
	require.NoError(t, err)
	require.Equal(t, "b", got.ShowName)
}

func TestMarkDetection(t *testing.T) {
	a := &Attachment{VerificationNotes: "old"}
	a.MarkDetection(false, false)
	require.False(t, a.ManualVerifiedSensitive)
	require.Equal(t, "old", a.VerificationNotes)

	a.MarkDetection(true, false)
	require.True(t, a.ManualVerifiedSensitive)
	require.True(t, a.Sensitive())
	require.Equal(t, "Auto-detected: ID card=true, Phone=false", a.VerificationNotes)
}
