package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/hearth/internal/auth"
	"grimm.is/hearth/internal/settings"
	"grimm.is/hearth/internal/store"
	"grimm.is/hearth/internal/tasks"
)

type fixture struct {
	svc   *Service
	db    *store.DB
	st    *settings.Store
	admin *Caller
}

// newFixture opens a migrated in-memory database with the default
// settings, one ip/port (id 1) and a superadmin.
func newFixture(t *testing.T, overrides map[string]string) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := store.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, settings.Seed(ctx, db.SQL(), overrides, true))
	st := settings.New()
	require.NoError(t, st.Load(ctx, db.SQL()))

	_, err = db.SQL().ExecContext(ctx, "INSERT INTO panel_ipsandports (id, ip, port) VALUES (1, '127.0.0.1', 80)")
	require.NoError(t, err)

	f := &fixture{
		db:  db,
		st:  st,
		svc: New(Options{DB: db, Settings: st, Version: "2.0.0"}),
	}
	f.admin = f.newAdmin(t, &store.Admin{
		LoginName:            "admin",
		Name:                 "Super Admin",
		Email:                "admin@example.com",
		ChangeServerSettings: true,
		CustomersSeeAll:      true,
		DomainsSeeAll:        true,
		Customers:            -1,
		Domains:              -1,
		IP:                   -1,
	})
	return f
}

func (f *fixture) newAdmin(t *testing.T, a *store.Admin) *Caller {
	t.Helper()
	ctx := context.Background()
	id, err := store.InsertAdmin(ctx, f.db.SQL(), a)
	require.NoError(t, err)
	loaded, err := store.GetAdmin(ctx, f.db.SQL(), id)
	require.NoError(t, err)
	return &Caller{Admin: loaded, IP: "127.0.0.1"}
}

// refresh reloads the caller's account so quota counters are current.
func (f *fixture) refresh(t *testing.T, c *Caller) *Caller {
	t.Helper()
	a, err := store.GetAdmin(context.Background(), f.db.SQL(), c.Admin.AdminID)
	require.NoError(t, err)
	return &Caller{Admin: a, IP: c.IP}
}

func (f *fixture) addCustomer(t *testing.T, c *Caller, login string) *store.Customer {
	t.Helper()
	out, err := f.svc.CustomersAdd(context.Background(), c, CustomerAddParams{
		LoginName: login,
		Email:     login + "@example.com",
		Name:      "Customer " + login,
	})
	require.NoError(t, err)
	return out.(*CreatedCustomer).Customer
}

func (f *fixture) addDomain(t *testing.T, c *Caller, name string, customerID int64) *Domain {
	t.Helper()
	out, err := f.svc.DomainsAdd(context.Background(), c, DomainAddParams{
		Domain:     name,
		CustomerID: Number(customerID),
	})
	require.NoError(t, err)
	return out.(*Domain)
}

func (f *fixture) pendingTypes(t *testing.T) []tasks.Type {
	t.Helper()
	list, err := tasks.Pending(context.Background(), f.db.SQL())
	require.NoError(t, err)
	var out []tasks.Type
	for _, task := range list {
		out = append(out, task.Type)
	}
	return out
}

func (f *fixture) clearTasks(t *testing.T) {
	t.Helper()
	_, err := tasks.Clear(context.Background(), f.db.SQL())
	require.NoError(t, err)
}

func assertKey(t *testing.T, err error, status int, key string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, status, StatusOf(err), "status of %v", err)
	assert.Equal(t, key, KeyOf(err))
}

func ptr[T any](v T) *T { return &v }

func TestExecute_UnknownCommand(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Execute(context.Background(), f.admin, "Domains.frobnicate", nil)
	assertKey(t, err, http.StatusNotFound, "unknowncommand")
}

func TestExecute_DecodesParams(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, err := f.svc.Execute(ctx, f.admin, "ipsandports.get", []byte(`{"id":"1"}`))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", out.(*IPPort).IP)

	_, err = f.svc.Execute(ctx, f.admin, "IpsAndPorts.get", []byte(`{"id":`))
	assertKey(t, err, http.StatusBadRequest, "invalidbody")
}

func TestRegistry_ListAndDocs(t *testing.T) {
	f := newFixture(t, nil)
	reg := f.svc.Registry()

	for _, module := range []string{"Domains", "IpsAndPorts", "PhpSettings", "Backups", "Customers", "Admins", "System"} {
		assert.True(t, reg.HasModule(module), module)
	}
	assert.False(t, reg.HasModule("Ftps"))

	cmds := reg.List("IpsAndPorts")
	require.Len(t, cmds, 5)
	assert.Equal(t, "add", cmds[0].Function)

	cmd, ok := reg.Lookup("domains.add")
	require.True(t, ok)
	var domain *ParamDoc
	for i := range cmd.Params {
		if cmd.Params[i].Parameter == "domain" {
			domain = &cmd.Params[i]
		}
	}
	require.NotNil(t, domain)
	assert.False(t, domain.Optional)
	assert.NotEmpty(t, domain.Desc)
}

func TestParams_Unmarshal(t *testing.T) {
	var p struct {
		A Flag   `json:"a"`
		B Flag   `json:"b"`
		N Number `json:"n"`
		L IDList `json:"l"`
		S IDList `json:"s"`
		O IDList `json:"o"`
		T Text   `json:"t"`
		U Text   `json:"u"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1","b":false,"n":"42","l":[1,"2"],"s":"3, 4","o":5,"t":8080,"u":" 80a "}`), &p))
	assert.True(t, bool(p.A))
	assert.False(t, bool(p.B))
	assert.Equal(t, Number(42), p.N)
	assert.Equal(t, IDList{1, 2}, p.L)
	assert.Equal(t, IDList{3, 4}, p.S)
	assert.Equal(t, IDList{5}, p.O)
	assert.Equal(t, Text("8080"), p.T)
	assert.Equal(t, Text("80a"), p.U)

	var bad struct {
		A Flag `json:"a"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"a":"maybe"}`), &bad))
}

func TestCallerFor(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.CallerFor(ctx, nil, "")
	assertKey(t, err, http.StatusUnauthorized, "unauthorized")

	c, err := f.svc.CallerFor(ctx, &auth.Identity{UserID: f.admin.Admin.AdminID, Admin: true}, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, c.IsAdmin())
	assert.Equal(t, "admin", c.LoginName())
	assert.Equal(t, "10.0.0.1", c.IP)

	cust := f.addCustomer(t, f.admin, "web1")
	c, err = f.svc.CallerFor(ctx, &auth.Identity{UserID: cust.CustomerID}, "")
	require.NoError(t, err)
	assert.False(t, c.IsAdmin())
	assert.Equal(t, "web1", c.LoginName())
}

func TestError_Message(t *testing.T) {
	err := invalid("loginnameexists", "web1")
	assert.Contains(t, err.Error(), "web1")
	assert.Equal(t, http.StatusInternalServerError, StatusOf(assert.AnError))
	assert.Equal(t, "internalerror", KeyOf(assert.AnError))
}
