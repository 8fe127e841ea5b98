package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/attachguard/models"
)

type fakeSource struct {
	sites       []SiteRow
	attachments []AttachmentRow
	owners      []string
	err         error
}

func (f *fakeSource) Sites(ctx context.Context) ([]SiteRow, error) { return f.sites, f.err }

func (f *fakeSource) Attachments(ctx context.Context, owner string) ([]AttachmentRow, error) {
	f.owners = append(f.owners, owner)
	return f.attachments, f.err
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Site{}, &models.Attachment{}))
	return db
}

func strp(s string) *string { return &s }

func TestSyncSitesUpsertsByOwner(t *testing.T) {
	db := openDB(t)
	state := 1
	src := &fakeSource{sites: []SiteRow{
		{Owner: "100", Account: strp("acc"), Name: strp("Physics"), Domain: strp("phy.example.edu.cn"), State: &state},
		{Owner: "200", Name: strp("No host")},
	}}
	s := NewSyncer(src, db, "", nil)

	n, err := s.SyncSites(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	src.sites[0].Name = strp("Physics Dept")
	_, err = s.SyncSites(context.Background())
	require.NoError(t, err)

	var sites []models.Site
	require.NoError(t, db.Order("owner").Find(&sites).Error)
	require.Len(t, sites, 2)
	require.Equal(t, "Physics Dept", sites[0].Name)
	require.Equal(t, 1, sites[0].State)
	require.Equal(t, "", sites[1].Domain)
	require.Equal(t, 0, sites[1].State)
}

func TestSyncAttachmentsPrefixesAndOnlyUpdatesNewer(t *testing.T) {
	db := openDB(t)
	old := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := old.Add(24 * time.Hour)
	src := &fakeSource{attachments: []AttachmentRow{
		{Owner: "100", ShowName: strp("名单.xlsx"), FilePath: "/_upload/a.xlsx?x=1", URLPath: "/_upload/a.xlsx", FileExt: strp("xlsx"), CreateDate: &old},
		{Owner: "100", ShowName: strp("remote.pdf"), FilePath: "/b.pdf", URLPath: "https://cdn.example/b.pdf", CreateDate: &old},
	}}
	s := NewSyncer(src, db, "http://www.example.edu.cn/", nil)

	_, err := s.SyncAttachments(context.Background(), "100")
	require.NoError(t, err)
	require.Equal(t, []string{"100"}, src.owners)

	var items []models.Attachment
	require.NoError(t, db.Order("id").Find(&items).Error)
	require.Len(t, items, 2)
	require.Equal(t, "http://www.example.edu.cn/_upload/a.xlsx", items[0].URLPath)
	require.Equal(t, "100", items[0].SiteID)
	require.Equal(t, "https://cdn.example/b.pdf", items[1].URLPath)

	// same date: matched through the prefixed url, left alone
	src.attachments[0].ShowName = strp("renamed.xlsx")
	_, err = s.SyncAttachments(context.Background(), "")
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&models.Attachment{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
	var first models.Attachment
	require.NoError(t, db.First(&first, items[0].ID).Error)
	require.Equal(t, "名单.xlsx", first.ShowName)

	// newer date: updated
	src.attachments[0].CreateDate = &newer
	_, err = s.SyncAttachments(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, db.First(&first, items[0].ID).Error)
	require.Equal(t, "renamed.xlsx", first.ShowName)
}

func TestSyncPropagatesSourceErrors(t *testing.T) {
	s := NewSyncer(&fakeSource{err: errors.New("connection refused")}, openDB(t), "", nil)
	_, err := s.SyncSites(context.Background())
	require.Error(t, err)
	_, err = s.SyncAttachments(context.Background(), "")
	require.Error(t, err)
}
