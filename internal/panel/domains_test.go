package panel

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/hearth/internal/store"
	"grimm.is/hearth/internal/tasks"
)

func TestDomainsAdd(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cust := f.addCustomer(t, f.admin, "web1")
	f.clearTasks(t)

	d := f.addDomain(t, f.admin, "Example.COM", cust.CustomerID)
	assert.Equal(t, "example.com", d.Domain)
	assert.Equal(t, "/var/customers/webs/web1/", d.DocumentRoot)
	assert.Equal(t, f.admin.Admin.AdminID, d.AdminID)
	assert.True(t, d.IsWildcardDomain)
	assert.False(t, d.WWWServerAlias)
	assert.Equal(t, "0", d.HSTS)

	plain, ssl, err := domainIPs(ctx, f.db.SQL(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, plain)
	assert.Empty(t, ssl)

	assert.ElementsMatch(t, []tasks.Type{tasks.RebuildVhost, tasks.RebuildDNS}, f.pendingTypes(t))

	admin := f.refresh(t, f.admin)
	assert.EqualValues(t, 1, admin.Admin.DomainsUsed)

	_, err = f.svc.DomainsAdd(ctx, f.admin, DomainAddParams{Domain: "example.com", CustomerID: Number(cust.CustomerID)})
	assertKey(t, err, http.StatusBadRequest, "domainalreadyexists")
}

func TestDomainsAdd_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cust := f.addCustomer(t, f.admin, "web1")
	cid := Number(cust.CustomerID)

	tests := []struct {
		name   string
		params DomainAddParams
		status int
		key    string
	}{
		{"hostname", DomainAddParams{Domain: "localhost", CustomerID: cid}, http.StatusBadRequest, "admin_domain_emailsystemhostname"},
		{"punycode", DomainAddParams{Domain: "xn--mnchen-3ya.de", CustomerID: cid}, http.StatusBadRequest, "domain_nopunycode"},
		{"empty", DomainAddParams{Domain: "  ", CustomerID: cid}, http.StatusBadRequest, "stringisempty"},
		{"bad syntax", DomainAddParams{Domain: "exa mple.com", CustomerID: cid}, http.StatusBadRequest, "stringiswrong"},
		{"no customer", DomainAddParams{Domain: "example.org"}, http.StatusBadRequest, "adduserfirst"},
		{"unknown customer", DomainAddParams{Domain: "example.org", CustomerID: 999}, http.StatusBadRequest, "customerdoesntexist"},
		{"unknown ip", DomainAddParams{Domain: "example.org", CustomerID: cid, IPAndPort: ptr(IDList{42})}, http.StatusBadRequest, "ipportdoesntexist"},
		{"no ip", DomainAddParams{Domain: "example.org", CustomerID: cid, IPAndPort: ptr(IDList{})}, http.StatusNotAcceptable, "noipsgiven"},
		{"bad date", DomainAddParams{Domain: "example.org", CustomerID: cid, RegistrationDate: ptr("01.02.2024")}, http.StatusBadRequest, "stringiswrong"},
		{"colon in docroot", DomainAddParams{Domain: "example.org", CustomerID: cid, DocumentRoot: ptr("/var/www:x")}, http.StatusBadRequest, "pathmaynotcontaincolon"},
		{"alias target missing", DomainAddParams{Domain: "example.org", CustomerID: cid, Alias: ptr(Number(77))}, http.StatusBadRequest, "domainisaliasorothercustomer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.DomainsAdd(ctx, f.admin, tt.params)
			assertKey(t, err, tt.status, tt.key)
		})
	}
}

func TestDomainsAdd_Permissions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cust := f.addCustomer(t, f.admin, "web1")

	reseller := f.newAdmin(t, &store.Admin{LoginName: "reseller", Email: "r@example.com", Domains: 5, IP: -1})
	_, err := f.svc.DomainsAdd(ctx, reseller, DomainAddParams{Domain: "example.org", CustomerID: Number(cust.CustomerID)})
	assertKey(t, err, http.StatusForbidden, "notallowed")

	full := f.newAdmin(t, &store.Admin{LoginName: "full", Email: "f@example.com", ChangeServerSettings: true, Domains: 0, IP: -1})
	_, err = f.svc.DomainsAdd(ctx, full, DomainAddParams{Domain: "example.org", CustomerID: Number(cust.CustomerID)})
	assertKey(t, err, http.StatusNotAcceptable, "noresources")

	_, err = f.svc.DomainsAdd(ctx, &Caller{Customer: cust}, DomainAddParams{Domain: "example.org", CustomerID: Number(cust.CustomerID)})
	assertKey(t, err, http.StatusForbidden, "notallowed")

	// customers of another admin are invisible without customers_see_all
	other := f.newAdmin(t, &store.Admin{LoginName: "other", Email: "o@example.com", ChangeServerSettings: true, Domains: -1, IP: -1})
	_, err = f.svc.DomainsAdd(ctx, other, DomainAddParams{Domain: "example.org", CustomerID: Number(cust.CustomerID)})
	assertKey(t, err, http.StatusBadRequest, "customerdoesntexist")
}

func TestDomainsAdd_DocumentRoot(t *testing.T) {
	f := newFixture(t, map[string]string{"system.documentroot_use_default_value": "1"})
	ctx := context.Background()
	cust := f.addCustomer(t, f.admin, "web1")

	d := f.addDomain(t, f.admin, "example.com", cust.CustomerID)
	assert.Equal(t, "/var/customers/webs/web1/example.com/", d.DocumentRoot)

	out, err := f.svc.DomainsAdd(ctx, f.admin, DomainAddParams{
		Domain: "example.org", CustomerID: Number(cust.CustomerID), DocumentRoot: ptr("htdocs/org"),
	})
	require.NoError(t, err)
	assert.Equal(t, "/var/customers/webs/web1/htdocs/org/", out.(*Domain).DocumentRoot)

	out, err = f.svc.DomainsAdd(ctx, f.admin, DomainAddParams{
		Domain: "example.net", CustomerID: Number(cust.CustomerID), DocumentRoot: ptr("https://example.com/"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", out.(*Domain).DocumentRoot)
}

func TestDomainsAdd_Alias(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cust := f.addCustomer(t, f.admin, "web1")
	main := f.addDomain(t, f.admin, "example.com", cust.CustomerID)

	out, err := f.svc.DomainsAdd(ctx, f.admin, DomainAddParams{
		Domain: "example.org", CustomerID: Number(cust.CustomerID), Alias: ptr(Number(main.ID)),
		SelectServerAlias: ptr(Number(1)), EmailOnly: ptr(Flag(true)),
	})
	require.NoError(t, err)
	alias := out.(*Domain)
	require.NotNil(t, alias.AliasDomain)
	assert.Equal(t, main.ID, *alias.AliasDomain)
	assert.True(t, alias.WWWServerAlias)
	assert.False(t, alias.IsWildcardDomain)
	assert.True(t, alias.IsEmailDomain, "email_only implies isemaildomain")

	// an alias cannot be the target of another alias
	_, err = f.svc.DomainsAdd(ctx, f.admin, DomainAddParams{
		Domain: "example.net", CustomerID: Number(cust.CustomerID), Alias: ptr(Number(alias.ID)),
	})
	assertKey(t, err, http.StatusBadRequest, "domainisaliasorothercustomer")
}

func TestDomainsAdd_WildcardLetsEncrypt(t *testing.T) {
	f := newFixture(t, map[string]string{"system.use_ssl": "1"})
	ctx := context.Background()
	_, err := f.db.SQL().ExecContext(ctx, "INSERT INTO panel_ipsandports (id, ip, port, ssl) VALUES (2, '127.0.0.1', 443, 1)")
	require.NoError(t, err)
	cust := f.addCustomer(t, f.admin, "web1")

	_, err = f.svc.DomainsAdd(ctx, f.admin, DomainAddParams{
		Domain: "example.com", CustomerID: Number(cust.CustomerID),
		SSLIPAndPort: ptr(IDList{2}), LetsEncrypt: ptr(Flag(true)),
	})
	assertKey(t, err, http.StatusBadRequest, "nowildcardwithletsencryptv2")

	out, err := f.svc.DomainsAdd(ctx, f.admin, DomainAddParams{
		Domain: "example.com", CustomerID: Number(cust.CustomerID),
		SSLIPAndPort: ptr(IDList{2}), SSLRedirect: ptr(Flag(true)), HTTP2: ptr(Flag(true)),
		HSTSMaxAge: ptr(Number(3600)), SelectServerAlias: ptr(Number(1)),
	})
	require.NoError(t, err)
	d := out.(*Domain)
	assert.EqualValues(t, 1, d.SSLRedirect)
	assert.True(t, d.HTTP2)
	assert.Equal(t, "3600", d.HSTS)

	plain, ssl, err := domainIPs(ctx, f.db.SQL(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, plain)
	assert.Equal(t, []int64{2}, ssl)
}

func TestCheckWildcardLetsEncrypt(t *testing.T) {
	assert.NoError(t, checkWildcardLetsEncrypt(1, true, "2"), "www alias")
	assert.NoError(t, checkWildcardLetsEncrypt(0, false, "2"), "no certificate")
	assertKey(t, checkWildcardLetsEncrypt(0, true, "1"), http.StatusBadRequest, "nowildcardwithletsencrypt")
	assertKey(t, checkWildcardLetsEncrypt(0, true, "2"), http.StatusBadRequest, "nowildcardwithletsencryptv2")
	assert.NoError(t, checkWildcardLetsEncrypt(0, true, "3"), "unknown api versions are left to the client")
	assert.NoError(t, checkWildcardLetsEncrypt(0, true, ""))
}

func TestDomainsAdd_NoSSLResetsSSLFlags(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cust := f.addCustomer(t, f.admin, "web1")

	out, err := f.svc.DomainsAdd(ctx, f.admin, DomainAddParams{
		Domain: "example.com", CustomerID: Number(cust.CustomerID),
		SSLRedirect: ptr(Flag(true)), HTTP2: ptr(Flag(true)), HSTSMaxAge: ptr(Number(3600)),
	})
	require.NoError(t, err)
	d := out.(*Domain)
	assert.Zero(t, d.SSLRedirect)
	assert.False(t, d.HTTP2)
	assert.Equal(t, "0", d.HSTS)
}

func TestDomainsListAndGet(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cust := f.addCustomer(t, f.admin, "web1")
	b := f.addDomain(t, f.admin, "b-example.com", cust.CustomerID)
	f.addDomain(t, f.admin, "a-example.com", cust.CustomerID)

	out, err := f.svc.DomainsList(ctx, f.admin, DomainListParams{})
	require.NoError(t, err)
	list := out.(Listing[DomainListEntry])
	require.Equal(t, 2, list.Count)
	assert.Equal(t, "a-example.com", list.List[0].Domain.Domain)
	require.NotNil(t, list.List[0].LoginName)
	assert.Equal(t, "web1", *list.List[0].LoginName)

	got, err := f.svc.DomainsGet(ctx, f.admin, DomainGetParams{ID: Number(b.ID)})
	require.NoError(t, err)
	assert.Equal(t, "b-example.com", got.(*Domain).Domain)

	_, err = f.svc.DomainsGet(ctx, f.admin, DomainGetParams{ID: 999})
	assertKey(t, err, http.StatusNotFound, "domainnotfound")

	// a reseller only sees its own domains
	reseller := f.newAdmin(t, &store.Admin{LoginName: "reseller", Email: "r@example.com", IP: -1})
	out, err = f.svc.DomainsList(ctx, reseller, DomainListParams{})
	require.NoError(t, err)
	assert.Zero(t, out.(Listing[DomainListEntry]).Count)
	_, err = f.svc.DomainsGet(ctx, reseller, DomainGetParams{ID: Number(b.ID)})
	assertKey(t, err, http.StatusNotFound, "domainnotfound")

	_, err = f.svc.DomainsList(ctx, &Caller{Customer: cust}, DomainListParams{})
	assertKey(t, err, http.StatusForbidden, "notallowed")
}

func TestDomainsList_NaturalSorting(t *testing.T) {
	for natsorting, want := range map[string][]string{
		"1": {"web1.example.com", "web2.example.com", "web10.example.com"},
		"0": {"web1.example.com", "web10.example.com", "web2.example.com"},
	} {
		t.Run("natsorting="+natsorting, func(t *testing.T) {
			f := newFixture(t, map[string]string{"panel.natsorting": natsorting})
			cust := f.addCustomer(t, f.admin, "web1")
			for _, name := range []string{"web10.example.com", "web2.example.com", "web1.example.com"} {
				f.addDomain(t, f.admin, name, cust.CustomerID)
			}

			out, err := f.svc.DomainsList(context.Background(), f.admin, DomainListParams{})
			require.NoError(t, err)
			var got []string
			for _, e := range out.(Listing[DomainListEntry]).List {
				got = append(got, e.Domain.Domain)
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestDomainsUpdate(t *testing.T) {
	f := newFixture(t, map[string]string{"system.mod_fcgid": "1"})
	ctx := context.Background()
	cust := f.addCustomer(t, f.admin, "web1")
	d := f.addDomain(t, f.admin, "example.com", cust.CustomerID)
	f.clearTasks(t)

	out, err := f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{
		ID:                  Number(d.ID),
		DocumentRoot:        ptr("/var/customers/webs/web1/new"),
		ModFcgidStarter:     ptr(Number(4)),
		SelectServerAlias:   ptr(Number(2)),
		CanEditDomain:       ptr(Flag(true)),
		SpecialLogfile:      ptr(Flag(true)),
		SpecialLogVerified:  ptr(Flag(true)),
		ModFcgidMaxRequests: ptr(Number(-1)),
	})
	require.NoError(t, err)
	updated := out.(*Domain)
	assert.Equal(t, "/var/customers/webs/web1/new/", updated.DocumentRoot)
	assert.EqualValues(t, 4, updated.ModFcgidStarter)
	assert.False(t, updated.WWWServerAlias)
	assert.False(t, updated.IsWildcardDomain)
	assert.True(t, updated.CanEditDomain)
	assert.True(t, updated.SpecialLogfile)
	assert.Contains(t, f.pendingTypes(t), tasks.RebuildVhost)

	got, err := f.svc.DomainsGet(ctx, f.admin, DomainGetParams{ID: Number(d.ID)})
	require.NoError(t, err)
	assert.Equal(t, "/var/customers/webs/web1/new/", got.(*Domain).DocumentRoot)

	_, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), ModFcgidStarter: ptr(Number(-5))})
	assertKey(t, err, http.StatusBadRequest, "stringiswrong")

	_, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), PHPSettingID: ptr(Number(42))})
	assertKey(t, err, http.StatusBadRequest, "phpsettingidwrong")

	_, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: 999})
	assertKey(t, err, http.StatusNotFound, "domainnotfound")
}

func TestDomainsUpdate_KeepsIPsWhenOmitted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.db.SQL().ExecContext(ctx, "INSERT INTO panel_ipsandports (id, ip, port) VALUES (3, '10.0.0.3', 80)")
	require.NoError(t, err)
	cust := f.addCustomer(t, f.admin, "web1")

	out, err := f.svc.DomainsAdd(ctx, f.admin, DomainAddParams{
		Domain: "example.com", CustomerID: Number(cust.CustomerID), IPAndPort: ptr(IDList{3}),
	})
	require.NoError(t, err)
	d := out.(*Domain)

	_, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), NoTryFiles: ptr(Flag(true))})
	require.NoError(t, err)

	plain, _, err := domainIPs(ctx, f.db.SQL(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, plain)
}

func TestDomainsUpdate_DisablingEmailDomainCleansMail(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cust := f.addCustomer(t, f.admin, "web1")
	out, err := f.svc.DomainsAdd(ctx, f.admin, DomainAddParams{
		Domain: "example.com", CustomerID: Number(cust.CustomerID), IsEmailDomain: ptr(Flag(true)),
	})
	require.NoError(t, err)
	d := out.(*Domain)

	_, err = f.db.SQL().ExecContext(ctx, "INSERT INTO mail_virtual (email, domainid, customerid) VALUES ('info@example.com', ?, ?)", d.ID, cust.CustomerID)
	require.NoError(t, err)

	_, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), IsEmailDomain: ptr(Flag(false))})
	require.NoError(t, err)

	n, err := store.Count(ctx, f.db.SQL(), "SELECT COUNT(*) FROM mail_virtual WHERE domainid = ?", d.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// addSubdomain inserts a subdomain row of parent directly.
func (f *fixture) addSubdomain(t *testing.T, parent *Domain, name string) int64 {
	t.Helper()
	res, err := f.db.SQL().ExecContext(context.Background(),
		"INSERT INTO panel_domains (domain, adminid, customerid, parentdomainid) VALUES (?, ?, ?, ?)",
		name, parent.AdminID, parent.CustomerID, parent.ID)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func (f *fixture) domainColumn(t *testing.T, id int64, column string) any {
	t.Helper()
	var v any
	require.NoError(t, f.db.SQL().QueryRowContext(context.Background(),
		"SELECT "+column+" FROM panel_domains WHERE id = ?", id).Scan(&v))
	return v
}

func TestDomainsUpdate_MoveToCustomer(t *testing.T) {
	f := newFixture(t, map[string]string{"panel.allow_domain_change_customer": "1"})
	ctx := context.Background()
	web1 := f.addCustomer(t, f.admin, "web1")
	out, err := f.svc.CustomersAdd(ctx, f.admin, CustomerAddParams{
		LoginName: "web2", Email: "web2@example.com", Name: "Customer web2",
		Subdomains: ptr(Number(-1)), Emails: ptr(Number(-1)),
		EmailAccounts: ptr(Number(-1)), EmailForwarders: ptr(Number(-1)),
	})
	require.NoError(t, err)
	web2 := out.(*CreatedCustomer).Customer
	web3 := f.addCustomer(t, f.admin, "web3")

	d := f.addDomain(t, f.admin, "example.com", web1.CustomerID)
	sub := f.addSubdomain(t, d, "shop.example.com")
	for _, stmt := range []string{
		"INSERT INTO mail_virtual (email, destination, domainid, customerid, popaccountid) VALUES ('info@example.com', 'info@example.com', ?, ?, 1)",
		"INSERT INTO mail_virtual (email, destination, domainid, customerid, popaccountid) VALUES ('sales@example.com', 'sales@other.example', ?, ?, 0)",
		"INSERT INTO mail_users (email, domainid, customerid) VALUES ('info@example.com', ?, ?)",
	} {
		_, err := f.db.SQL().ExecContext(ctx, stmt, d.ID, web1.CustomerID)
		require.NoError(t, err)
	}
	_, err = f.db.SQL().ExecContext(ctx, `UPDATE panel_customers SET subdomains_used = 1, emails_used = 2,
		email_accounts_used = 1, email_forwarders_used = 1 WHERE customerid = ?`, web1.CustomerID)
	require.NoError(t, err)

	usage := func(id int64) [4]int64 {
		c, err := store.GetCustomer(ctx, f.db.SQL(), id)
		require.NoError(t, err)
		return [4]int64{c.SubdomainsUsed, c.EmailsUsed, c.EmailAccountsUsed, c.EmailForwardersUsed}
	}

	// web3 has no quota for the subdomain and the addresses
	_, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), CustomerID: ptr(Number(web3.CustomerID))})
	assertKey(t, err, http.StatusBadRequest, "customerdoesntexist")
	assert.Equal(t, [4]int64{1, 2, 1, 1}, usage(web1.CustomerID))

	out, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), CustomerID: ptr(Number(web2.CustomerID))})
	require.NoError(t, err)
	assert.Equal(t, web2.CustomerID, out.(*Domain).CustomerID)

	assert.Equal(t, [4]int64{0, 0, 0, 0}, usage(web1.CustomerID))
	assert.Equal(t, [4]int64{1, 2, 1, 1}, usage(web2.CustomerID))
	assert.EqualValues(t, web2.CustomerID, f.domainColumn(t, sub, "customerid"))
	for _, table := range []string{"mail_virtual", "mail_users"} {
		n, err := store.Count(ctx, f.db.SQL(), "SELECT COUNT(*) FROM "+table+" WHERE customerid = ?", web2.CustomerID)
		require.NoError(t, err)
		assert.NotZero(t, n, table)
		n, err = store.Count(ctx, f.db.SQL(), "SELECT COUNT(*) FROM "+table+" WHERE customerid = ?", web1.CustomerID)
		require.NoError(t, err)
		assert.Zero(t, n, table)
	}
}

func TestDomainsUpdate_MoveToCustomerNeedsSetting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	web1 := f.addCustomer(t, f.admin, "web1")
	web2 := f.addCustomer(t, f.admin, "web2")
	d := f.addDomain(t, f.admin, "example.com", web1.CustomerID)

	out, err := f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), CustomerID: ptr(Number(web2.CustomerID))})
	require.NoError(t, err)
	assert.Equal(t, web1.CustomerID, out.(*Domain).CustomerID)
}

func TestDomainsUpdate_MoveToAdmin(t *testing.T) {
	f := newFixture(t, map[string]string{"panel.allow_domain_change_admin": "1"})
	ctx := context.Background()
	cust := f.addCustomer(t, f.admin, "web1")
	d := f.addDomain(t, f.admin, "example.com", cust.CustomerID)
	sub := f.addSubdomain(t, d, "shop.example.com")
	reseller := f.newAdmin(t, &store.Admin{LoginName: "reseller", Email: "r@example.com", Domains: 1, IP: -1})
	full := f.newAdmin(t, &store.Admin{LoginName: "full", Email: "full@example.com", Domains: 0, IP: -1})
	require.EqualValues(t, 1, f.refresh(t, f.admin).Admin.DomainsUsed)

	_, err := f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), AdminID: ptr(Number(full.Admin.AdminID))})
	assertKey(t, err, http.StatusBadRequest, "admindoesntexist")

	out, err := f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), AdminID: ptr(Number(reseller.Admin.AdminID))})
	require.NoError(t, err)
	assert.Equal(t, reseller.Admin.AdminID, out.(*Domain).AdminID)
	assert.EqualValues(t, reseller.Admin.AdminID, f.domainColumn(t, sub, "adminid"))
	assert.EqualValues(t, 1, f.refresh(t, reseller).Admin.DomainsUsed)
	assert.Zero(t, f.refresh(t, f.admin).Admin.DomainsUsed)

	// the reseller is now full
	other := f.newAdmin(t, &store.Admin{LoginName: "other", Email: "o@example.com", Domains: -1, IP: -1})
	_, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), AdminID: ptr(Number(other.Admin.AdminID))})
	require.NoError(t, err)
	_, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), AdminID: ptr(Number(reseller.Admin.AdminID))})
	require.NoError(t, err, "domains_used went back to 0 on the move away")
}

func TestDomainsUpdate_SpecialSettingsForSubdomains(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cust := f.addCustomer(t, f.admin, "web1")
	d := f.addDomain(t, f.admin, "example.com", cust.CustomerID)
	sub := f.addSubdomain(t, d, "shop.example.com")

	_, err := f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{
		ID: Number(d.ID), SpecialSettings: ptr("Header set X-Panel 1"), SpecialSettingsForSubdomains: ptr(Flag(true)),
	})
	require.NoError(t, err)
	assert.Equal(t, "Header set X-Panel 1", f.domainColumn(t, sub, "specialsettings"))

	// without the flag subdomains lose their special settings
	_, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID)})
	require.NoError(t, err)
	assert.Equal(t, "", f.domainColumn(t, sub, "specialsettings"))
	assert.Equal(t, "Header set X-Panel 1", f.domainColumn(t, d.ID, "specialsettings"))
}

func TestDomainsUpdate_PHPSettingsForSubdomains(t *testing.T) {
	f := newFixture(t, map[string]string{"system.mod_fcgid": "1"})
	ctx := context.Background()
	_, err := f.db.SQL().ExecContext(ctx, "INSERT INTO panel_phpconfigs (id, description) VALUES (2, 'Hardened')")
	require.NoError(t, err)
	cust := f.addCustomer(t, f.admin, "web1")
	d := f.addDomain(t, f.admin, "example.com", cust.CustomerID)
	sub := f.addSubdomain(t, d, "shop.example.com")

	_, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{
		ID: Number(d.ID), PHPSettingID: ptr(Number(2)), ModFcgidStarter: ptr(Number(3)),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.domainColumn(t, d.ID, "phpsettingid"))
	assert.EqualValues(t, 1, f.domainColumn(t, sub, "phpsettingid"), "kept without phpsettingsforsubdomains")
	assert.EqualValues(t, 3, f.domainColumn(t, sub, "mod_fcgid_starter"))

	_, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{
		ID: Number(d.ID), PHPSettingsForSubdomains: ptr(Flag(true)),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.domainColumn(t, sub, "phpsettingid"))
}

func TestDomainsUpdate_SubCanEmailDomain(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cust := f.addCustomer(t, f.admin, "web1")
	d := f.addDomain(t, f.admin, "example.com", cust.CustomerID)
	sub := f.addSubdomain(t, d, "shop.example.com")

	_, err := f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), SubCanEmailDomain: ptr(Number(3))})
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.domainColumn(t, sub, "isemaildomain"), "3 turns subdomains into email domains")

	_, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), SubCanEmailDomain: ptr(Number(1))})
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.domainColumn(t, sub, "isemaildomain"), "1 leaves subdomains alone")

	_, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), SubCanEmailDomain: ptr(Number(0))})
	require.NoError(t, err)
	assert.EqualValues(t, 0, f.domainColumn(t, sub, "isemaildomain"))
}

func TestDomainsUpdate_RemovingSSLResetsSubdomains(t *testing.T) {
	f := newFixture(t, map[string]string{"system.use_ssl": "1"})
	ctx := context.Background()
	_, err := f.db.SQL().ExecContext(ctx, "INSERT INTO panel_ipsandports (id, ip, port, ssl) VALUES (2, '127.0.0.1', 443, 1)")
	require.NoError(t, err)
	cust := f.addCustomer(t, f.admin, "web1")
	out, err := f.svc.DomainsAdd(ctx, f.admin, DomainAddParams{
		Domain: "example.com", CustomerID: Number(cust.CustomerID),
		SSLIPAndPort: ptr(IDList{2}), SSLRedirect: ptr(Flag(true)),
	})
	require.NoError(t, err)
	d := out.(*Domain)
	sub := f.addSubdomain(t, d, "shop.example.com")
	_, err = f.db.SQL().ExecContext(ctx, "UPDATE panel_domains SET ssl_redirect = 1, letsencrypt = 1 WHERE id = ?", sub)
	require.NoError(t, err)

	_, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), NoTryFiles: ptr(Flag(true))})
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.domainColumn(t, sub, "ssl_redirect"), "kept while the domain has ssl ips")
	assert.EqualValues(t, 1, f.domainColumn(t, sub, "letsencrypt"))

	out, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), SSLIPAndPort: ptr(IDList{0})})
	require.NoError(t, err)
	assert.Zero(t, out.(*Domain).SSLRedirect)
	assert.EqualValues(t, 0, f.domainColumn(t, sub, "ssl_redirect"))
	assert.EqualValues(t, 0, f.domainColumn(t, sub, "letsencrypt"))
	_, ssl, err := domainIPs(ctx, f.db.SQL(), sub)
	require.NoError(t, err)
	assert.Empty(t, ssl)
}

func TestDomainsUpdate_RestrictedAdminIPs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, stmt := range []string{
		"INSERT INTO panel_ipsandports (id, ip, port) VALUES (3, '10.0.0.3', 80)",
		"INSERT INTO panel_ipsandports (id, ip, port) VALUES (4, '127.0.0.1', 8080)",
	} {
		_, err := f.db.SQL().ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	reseller := f.newAdmin(t, &store.Admin{
		LoginName: "reseller", Email: "r@example.com", ChangeServerSettings: true,
		Customers: -1, Domains: -1, IP: 1,
	})
	cust := f.addCustomer(t, reseller, "web1")
	d := f.addDomain(t, reseller, "example.com", cust.CustomerID)

	_, err := f.svc.DomainsUpdate(ctx, reseller, DomainUpdateParams{ID: Number(d.ID), IPAndPort: ptr(IDList{3})})
	assertKey(t, err, http.StatusBadRequest, "ipportdoesntexist")
	_, err = f.svc.DomainsUpdate(ctx, reseller, DomainUpdateParams{ID: Number(d.ID), IPAndPort: ptr(IDList{99})})
	assertKey(t, err, http.StatusBadRequest, "ipportdoesntexist")

	_, err = f.svc.DomainsUpdate(ctx, reseller, DomainUpdateParams{ID: Number(d.ID), IPAndPort: ptr(IDList{1, 4})})
	require.NoError(t, err)
	plain, _, err := domainIPs(ctx, f.db.SQL(), d.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 4}, plain)

	// an unrestricted admin may use any ip
	_, err = f.svc.DomainsUpdate(ctx, f.admin, DomainUpdateParams{ID: Number(d.ID), IPAndPort: ptr(IDList{3})})
	require.NoError(t, err)
}

func TestDomainsDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cust := f.addCustomer(t, f.admin, "web1")
	d := f.addDomain(t, f.admin, "example.com", cust.CustomerID)

	_, err := f.db.SQL().ExecContext(ctx,
		"INSERT INTO panel_domains (domain, adminid, customerid, parentdomainid) VALUES ('sub.example.com', ?, ?, ?)",
		f.admin.Admin.AdminID, cust.CustomerID, d.ID)
	require.NoError(t, err)
	_, err = f.db.SQL().ExecContext(ctx,
		"UPDATE panel_customers SET subdomains_used = 1 WHERE customerid = ?", cust.CustomerID)
	require.NoError(t, err)
	f.clearTasks(t)

	out, err := f.svc.DomainsDelete(ctx, f.admin, DomainDeleteParams{ID: Number(d.ID)})
	require.NoError(t, err)
	assert.Equal(t, "example.com", out.(*Domain).Domain)

	n, err := store.Count(ctx, f.db.SQL(), "SELECT COUNT(*) FROM panel_domains")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = store.Count(ctx, f.db.SQL(), "SELECT COUNT(*) FROM panel_domaintoip")
	require.NoError(t, err)
	assert.Zero(t, n)

	c, err := store.GetCustomer(ctx, f.db.SQL(), cust.CustomerID)
	require.NoError(t, err)
	assert.Zero(t, c.SubdomainsUsed)
	assert.Zero(t, f.refresh(t, f.admin).Admin.DomainsUsed)
	assert.ElementsMatch(t, []tasks.Type{tasks.RebuildVhost, tasks.RebuildDNS}, f.pendingTypes(t))

	_, err = f.svc.DomainsDelete(ctx, f.admin, DomainDeleteParams{ID: Number(d.ID)})
	assertKey(t, err, http.StatusNotFound, "domainnotfound")
}

func TestDomainsDelete_MainButSubTo(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cust := f.addCustomer(t, f.admin, "web1")
	parent := f.addDomain(t, f.admin, "example.com", cust.CustomerID)
	out, err := f.svc.DomainsAdd(ctx, f.admin, DomainAddParams{
		Domain: "example.org", CustomerID: Number(cust.CustomerID), IsSubOf: ptr(Number(parent.ID)),
	})
	require.NoError(t, err)
	child := out.(*Domain)

	_, err = f.svc.DomainsDelete(ctx, f.admin, DomainDeleteParams{ID: Number(parent.ID)})
	require.NoError(t, err)

	got, err := f.svc.DomainsGet(ctx, f.admin, DomainGetParams{ID: Number(child.ID)})
	require.NoError(t, err)
	assert.Zero(t, got.(*Domain).IsMainButSubTo)
}

func TestDomainDiff(t *testing.T) {
	a := &Domain{Domain: "example.com", DocumentRoot: "/a/"}
	b := *a
	assert.Empty(t, domainDiff(a, &b))
	b.DocumentRoot = "/b/"
	diff := domainDiff(a, &b)
	assert.Contains(t, diff, "/a/")
	assert.Contains(t, diff, "/b/")
}
