package panel

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/hearth/internal/store"
	"grimm.is/hearth/internal/tasks"
)

func TestPhpSettingsList(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cust := f.addCustomer(t, f.admin, "web1")
	f.addDomain(t, f.admin, "example.com", cust.CustomerID)

	out, err := f.svc.PhpSettingsList(ctx, f.admin, PHPConfigListParams{})
	require.NoError(t, err)
	list := out.(Listing[PHPConfigListEntry])
	require.Equal(t, 1, list.Count)
	entry := list.List[0]
	assert.Equal(t, "Default Config", entry.Description)
	assert.Equal(t, []string{"example.com", "localhost"}, entry.Domains)
	require.NotNil(t, entry.FPMDesc)
	assert.Equal(t, "System default", *entry.FPMDesc)

	_, err = f.svc.PhpSettingsList(ctx, &Caller{Customer: cust}, PHPConfigListParams{})
	assertKey(t, err, http.StatusForbidden, "notallowed")
}

func TestPhpSettingsAdd_Fcgid(t *testing.T) {
	f := newFixture(t, map[string]string{"system.mod_fcgid": "1"})
	ctx := context.Background()

	_, err := f.svc.PhpSettingsAdd(ctx, f.admin, PHPConfigParams{Description: ptr("fcgid"), PHPSettings: ptr("memory_limit = 128M")})
	assertKey(t, err, http.StatusBadRequest, "mandatoryfield")

	out, err := f.svc.PhpSettingsAdd(ctx, f.admin, PHPConfigParams{
		Description:     ptr("fcgid"),
		PHPSettings:     ptr("memory_limit = 128M"),
		Binary:          ptr("usr/bin/php-cgi8"),
		ModFcgidStarter: ptr("4"),
		FileExtensions:  ptr("php php8"),
	})
	require.NoError(t, err)
	cfg := out.(*PHPConfig)
	assert.Equal(t, "/usr/bin/php-cgi8", cfg.Binary)
	assert.EqualValues(t, 4, cfg.ModFcgidStarter)
	assert.EqualValues(t, -1, cfg.ModFcgidMaxRequests)
	assert.Equal(t, "0", cfg.FPMReqTerm)
	assert.Contains(t, f.pendingTypes(t), tasks.RebuildVhost)

	bad := []PHPConfigParams{
		{Description: ptr(strings.Repeat("x", 51)), PHPSettings: ptr(""), Binary: ptr("/bin/php")},
		{Description: ptr(" "), PHPSettings: ptr(""), Binary: ptr("/bin/php")},
	}
	for _, p := range bad {
		_, err = f.svc.PhpSettingsAdd(ctx, f.admin, p)
		assertKey(t, err, http.StatusBadRequest, "descriptioninvalid")
	}

	_, err = f.svc.PhpSettingsAdd(ctx, f.admin, PHPConfigParams{
		Description: ptr("x"), PHPSettings: ptr(""), Binary: ptr("/bin/php"), FileExtensions: ptr("php;rm"),
	})
	assertKey(t, err, http.StatusBadRequest, "stringiswrong")

	_, err = f.svc.PhpSettingsAdd(ctx, f.admin, PHPConfigParams{
		Description: ptr("x"), PHPSettings: ptr(""), Binary: ptr("/bin/php"), ModFcgidStarter: ptr("-3"),
	})
	assertKey(t, err, http.StatusBadRequest, "stringiswrong")
}

func TestPhpSettingsAdd_FPM(t *testing.T) {
	f := newFixture(t, map[string]string{"phpfpm.enabled": "1"})
	ctx := context.Background()

	_, err := f.svc.PhpSettingsAdd(ctx, f.admin, PHPConfigParams{Description: ptr("fpm"), PHPSettings: ptr("")})
	assertKey(t, err, http.StatusBadRequest, "mandatoryfield")

	out, err := f.svc.PhpSettingsAdd(ctx, f.admin, PHPConfigParams{
		Description:       ptr("fpm"),
		PHPSettings:       ptr(""),
		FPMConfig:         ptr(Number(1)),
		FPMReqTermTimeout: ptr("2m"),
		FPMEnableSlowlog:  ptr(Flag(true)),
	})
	require.NoError(t, err)
	cfg := out.(*PHPConfig)
	assert.Equal(t, "2m", cfg.FPMReqTerm)
	assert.Equal(t, "5s", cfg.FPMReqSlow)
	assert.True(t, cfg.FPMSlowlog)
	assert.EqualValues(t, 0, cfg.ModFcgidStarter)

	_, err = f.svc.PhpSettingsAdd(ctx, f.admin, PHPConfigParams{
		Description: ptr("fpm2"), PHPSettings: ptr(""), FPMConfig: ptr(Number(1)), FPMReqSlowTimeout: ptr("soon"),
	})
	assertKey(t, err, http.StatusBadRequest, "stringiswrong")
}

func TestPhpSettingsUpdate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, err := f.svc.PhpSettingsUpdate(ctx, f.admin, PHPConfigParams{ID: 1, Description: ptr("Renamed")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", out.(*PHPConfig).Description)

	got, err := f.svc.PhpSettingsGet(ctx, f.admin, PHPConfigGetParams{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.(*PHPConfig).Description)

	_, err = f.svc.PhpSettingsUpdate(ctx, f.admin, PHPConfigParams{ID: 42, Description: ptr("x")})
	assertKey(t, err, http.StatusNotFound, "phpconfnotfound")

	reseller := f.newAdmin(t, &store.Admin{LoginName: "reseller", Email: "r@example.com", CanEditPHPSettings: true, IP: -1})
	_, err = f.svc.PhpSettingsUpdate(ctx, reseller, PHPConfigParams{ID: 1, Description: ptr("x")})
	assertKey(t, err, http.StatusForbidden, "notallowed")
}

func TestPhpSettingsDelete(t *testing.T) {
	f := newFixture(t, map[string]string{"system.mod_fcgid": "1", "system.mod_fcgid_defaultini_ownvhost": "1"})
	ctx := context.Background()

	_, err := f.svc.PhpSettingsDelete(ctx, f.admin, PHPConfigGetParams{ID: 1})
	assertKey(t, err, http.StatusBadRequest, "cannotdeletehostnamephpconfig")

	out, err := f.svc.PhpSettingsAdd(ctx, f.admin, PHPConfigParams{Description: ptr("other"), PHPSettings: ptr(""), Binary: ptr("/bin/php")})
	require.NoError(t, err)
	id := out.(*PHPConfig).ID

	cust := f.addCustomer(t, f.admin, "web1")
	dout, err := f.svc.DomainsAdd(ctx, f.admin, DomainAddParams{
		Domain: "example.com", CustomerID: Number(cust.CustomerID), PHPSettingID: ptr(Number(id)),
	})
	require.NoError(t, err)
	assert.Equal(t, id, dout.(*Domain).PHPSettingID)

	_, err = f.svc.PhpSettingsDelete(ctx, f.admin, PHPConfigGetParams{ID: Number(id)})
	require.NoError(t, err)

	got, err := f.svc.DomainsGet(ctx, f.admin, DomainGetParams{ID: Number(dout.(*Domain).ID)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.(*Domain).PHPSettingID)

	_, err = f.svc.PhpSettingsGet(ctx, f.admin, PHPConfigGetParams{ID: Number(id)})
	assertKey(t, err, http.StatusNotFound, "phpconfnotfound")
}

func TestPhpSettingsDelete_Default(t *testing.T) {
	f := newFixture(t, map[string]string{"phpfpm.enabled": "1", "phpfpm.vhost_defaultini": "9", "phpfpm.defaultini": "1"})
	_, err := f.svc.PhpSettingsDelete(context.Background(), f.admin, PHPConfigGetParams{ID: 1})
	assertKey(t, err, http.StatusBadRequest, "cannotdeletedefaultphpconfig")
}
