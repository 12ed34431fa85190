// Package ui declares the panel's navigation, forms and listings. A front
// end renders these declarations; the panel itself ships only JSON.
package ui

// MenuID uniquely identifies a menu entry.
type MenuID string

const (
	MenuDashboard MenuID = "index"

	MenuGroupResources MenuID = "group.resources"
	MenuCustomers      MenuID = "customers"
	MenuAdmins         MenuID = "admins"
	MenuDomains        MenuID = "domains"
	MenuBackups        MenuID = "backups"

	MenuGroupServer MenuID = "group.server"
	MenuIPsAndPorts MenuID = "ipsandports"
	MenuPHPSettings MenuID = "phpsettings"
	MenuSettings    MenuID = "settings"
	MenuTasks       MenuID = "tasks"
	MenuUpdates     MenuID = "updates"

	MenuGroupAccount MenuID = "group.account"
	MenuAPIKeys      MenuID = "apikeys"
	MenuLogout       MenuID = "logout"
)

// User is the subset of the logged-in account that decides what is shown.
type User struct {
	ID                   int64 `json:"id"`
	Admin                bool  `json:"admin"`
	ChangeServerSettings bool  `json:"change_serversettings"`
	CustomersSeeAll      bool  `json:"customers_see_all"`
	CanEditPHPSettings   bool  `json:"caneditphpsettings"`
	APIAllowed           bool  `json:"api_allowed"`
}

// MenuItem represents a single item in the navigation menu.
type MenuItem struct {
	ID       MenuID     `json:"id"`
	Label    string     `json:"label"` // Catalog key
	Icon     string     `json:"icon"`
	Route    string     `json:"route,omitempty"`
	Children []MenuItem `json:"children,omitempty"`
}

// MainMenu returns the navigation for u. Entries the user may not use are
// left out rather than disabled.
func MainMenu(u User) []MenuItem {
	if !u.Admin {
		menu := []MenuItem{
			{ID: MenuDashboard, Label: "menu.dashboard", Icon: "fa-solid fa-house", Route: "/"},
			{ID: MenuGroupResources, Label: "menu.resources", Icon: "fa-solid fa-globe", Children: []MenuItem{
				{ID: MenuDomains, Label: "menu.domains", Icon: "fa-solid fa-globe", Route: "/domains"},
				{ID: MenuBackups, Label: "menu.backups", Icon: "fa-solid fa-file-archive", Route: "/backups"},
			}},
		}
		return append(menu, accountMenu(u))
	}

	resources := MenuItem{ID: MenuGroupResources, Label: "menu.resources", Icon: "fa-solid fa-users", Children: []MenuItem{
		{ID: MenuCustomers, Label: "menu.customers", Icon: "fa-solid fa-user", Route: "/customers"},
	}}
	if u.ChangeServerSettings {
		resources.Children = append(resources.Children,
			MenuItem{ID: MenuAdmins, Label: "menu.admins", Icon: "fa-solid fa-user-tie", Route: "/admins"})
	}
	resources.Children = append(resources.Children,
		MenuItem{ID: MenuDomains, Label: "menu.domains", Icon: "fa-solid fa-globe", Route: "/domains"},
		MenuItem{ID: MenuBackups, Label: "menu.backups", Icon: "fa-solid fa-file-archive", Route: "/backups"},
	)

	menu := []MenuItem{
		{ID: MenuDashboard, Label: "menu.dashboard", Icon: "fa-solid fa-house", Route: "/"},
		resources,
	}

	server := MenuItem{ID: MenuGroupServer, Label: "menu.server", Icon: "fa-solid fa-server"}
	if u.ChangeServerSettings {
		server.Children = append(server.Children,
			MenuItem{ID: MenuIPsAndPorts, Label: "menu.ipsandports", Icon: "fa-solid fa-network-wired", Route: "/ipsandports"})
	}
	if u.ChangeServerSettings || u.CanEditPHPSettings {
		server.Children = append(server.Children,
			MenuItem{ID: MenuPHPSettings, Label: "menu.phpsettings", Icon: "fa-brands fa-php", Route: "/phpsettings"})
	}
	if u.ChangeServerSettings {
		server.Children = append(server.Children,
			MenuItem{ID: MenuSettings, Label: "menu.settings", Icon: "fa-solid fa-sliders", Route: "/settings"},
			MenuItem{ID: MenuTasks, Label: "menu.tasks", Icon: "fa-solid fa-list-check", Route: "/tasks"},
			MenuItem{ID: MenuUpdates, Label: "menu.updates", Icon: "fa-solid fa-download", Route: "/updates"},
		)
	}
	if len(server.Children) > 0 {
		menu = append(menu, server)
	}
	return append(menu, accountMenu(u))
}

func accountMenu(u User) MenuItem {
	item := MenuItem{ID: MenuGroupAccount, Label: "menu.account", Icon: "fa-solid fa-user-gear"}
	if u.APIAllowed {
		item.Children = append(item.Children,
			MenuItem{ID: MenuAPIKeys, Label: "menu.apikeys", Icon: "fa-solid fa-key", Route: "/apikeys"})
	}
	item.Children = append(item.Children,
		MenuItem{ID: MenuLogout, Label: "menu.logout", Icon: "fa-solid fa-power-off", Route: "/logout"})
	return item
}

// FlattenMenu returns a flat list of all menu items.
func FlattenMenu(items []MenuItem) []MenuItem {
	var result []MenuItem
	for _, item := range items {
		result = append(result, item)
		if len(item.Children) > 0 {
			result = append(result, FlattenMenu(item.Children)...)
		}
	}
	return result
}

// FindMenuItem finds a menu item by ID.
func FindMenuItem(items []MenuItem, id MenuID) *MenuItem {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
		if found := FindMenuItem(items[i].Children, id); found != nil {
			return found
		}
	}
	return nil
}

// GetBreadcrumb returns the path to a menu item in u's menu.
func GetBreadcrumb(u User, id MenuID) []MenuItem {
	var find func(items []MenuItem, path []MenuItem) []MenuItem
	find = func(items []MenuItem, path []MenuItem) []MenuItem {
		for _, item := range items {
			newPath := append(path[:len(path):len(path)], item)
			if item.ID == id {
				return newPath
			}
			if result := find(item.Children, newPath); result != nil {
				return result
			}
		}
		return nil
	}
	return find(MainMenu(u), nil)
}
