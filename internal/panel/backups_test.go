package panel

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/hearth/internal/store"
)

type backupRow struct {
	file string
	size int64
}

// seedBackups inserts backup rows with increasing created_at values.
func seedBackups(t *testing.T, f *fixture, c *store.Customer, rows ...backupRow) {
	t.Helper()
	for _, r := range rows {
		_, err := f.db.SQL().ExecContext(context.Background(), `
			INSERT INTO panel_backups (adminid, customerid, loginname, size, filename, created_at)
			VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(created_at), 1000) + 1 FROM panel_backups))`,
			c.AdminID, c.CustomerID, c.LoginName, r.size, r.file)
		require.NoError(t, err)
	}
}

func TestBackupsListing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	web1 := f.addCustomer(t, f.admin, "web1")
	web2 := f.addCustomer(t, f.admin, "web2")
	seedBackups(t, f, web1, backupRow{"web1-a.tar.gz", 2048}, backupRow{"web1-b.tar.gz", 10})
	seedBackups(t, f, web2, backupRow{"web2-a.tar.gz", 4096})

	out, err := f.svc.BackupsListing(ctx, f.admin, BackupListParams{})
	require.NoError(t, err)
	list := out.(Listing[Backup])
	require.Equal(t, 3, list.Count)
	assert.Equal(t, "web2-a.tar.gz", list.List[0].Filename, "newest first")
	require.NotNil(t, list.List[0].AdminName)
	assert.Equal(t, "admin", *list.List[0].AdminName)

	out, err = f.svc.BackupsListing(ctx, &Caller{Customer: web1}, BackupListParams{CustomerID: Number(web2.CustomerID)})
	require.NoError(t, err)
	list = out.(Listing[Backup])
	require.Equal(t, 2, list.Count)
	for _, b := range list.List {
		assert.Equal(t, web1.CustomerID, b.CustomerID)
	}

	out, err = f.svc.BackupsListing(ctx, f.admin, BackupListParams{LoginName: "web1", OrderBy: map[string]string{"size": "asc"}})
	require.NoError(t, err)
	list = out.(Listing[Backup])
	require.Equal(t, 2, list.Count)
	assert.Equal(t, "web1-b.tar.gz", list.List[0].Filename)
	assert.Equal(t, "2.00 KiB", list.List[1].SizeHuman)
}

func TestBackupsListing_SearchAndPaging(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	web1 := f.addCustomer(t, f.admin, "web1")
	seedBackups(t, f, web1, backupRow{"daily-1.tar.gz", 100}, backupRow{"daily-2.tar.gz", 200}, backupRow{"weekly.tar.gz", 300})

	out, err := f.svc.BackupsListing(ctx, f.admin, BackupListParams{
		Search: map[string]SearchTerm{"filename": {Value: "daily"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.(Listing[Backup]).Count)

	out, err = f.svc.BackupsListing(ctx, f.admin, BackupListParams{
		Search: map[string]SearchTerm{"size": {Op: ">", Value: "150"}},
		Limit:  1,
		Offset: 1,
	})
	require.NoError(t, err)
	list := out.(Listing[Backup])
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "daily-2.tar.gz", list.List[0].Filename)

	_, err = f.svc.BackupsListing(ctx, f.admin, BackupListParams{Search: map[string]SearchTerm{"password": {Value: "x"}}})
	assertKey(t, err, http.StatusBadRequest, "stringiswrong")
	_, err = f.svc.BackupsListing(ctx, f.admin, BackupListParams{Search: map[string]SearchTerm{"size": {Op: "!=", Value: "1"}}})
	assertKey(t, err, http.StatusBadRequest, "stringiswrong")
	_, err = f.svc.BackupsListing(ctx, f.admin, BackupListParams{OrderBy: map[string]string{"size": "sideways"}})
	assertKey(t, err, http.StatusBadRequest, "stringiswrong")

	n, err := f.svc.BackupsListingCount(ctx, f.admin, BackupListParams{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestBackups_NoCustomers(t *testing.T) {
	f := newFixture(t, nil)
	reseller := f.newAdmin(t, &store.Admin{LoginName: "reseller", Email: "r@example.com", IP: -1})
	_, err := f.svc.BackupsListing(context.Background(), reseller, BackupListParams{})
	assertKey(t, err, http.StatusMethodNotAllowed, "resourceunsatisfied")
}

func TestBackups_Unsupported(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.BackupsAdd(ctx, f.admin, BackupIDParams{})
	assertKey(t, err, http.StatusSeeOther, "backupnoadd")
	_, err = f.svc.BackupsUpdate(ctx, f.admin, BackupIDParams{ID: 1})
	assertKey(t, err, http.StatusSeeOther, "backupnoupdate")
	_, err = f.svc.BackupsGet(ctx, f.admin, BackupIDParams{ID: 1})
	assertKey(t, err, http.StatusSeeOther, "notimplemented")
	_, err = f.svc.BackupsDelete(ctx, f.admin, BackupIDParams{ID: 1})
	assertKey(t, err, http.StatusSeeOther, "notimplemented")
}
