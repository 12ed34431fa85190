package panel

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"grimm.is/hearth/internal/store"
	"grimm.is/hearth/internal/textutil"
)

// Backup is a row of panel_backups with the owning admin's login.
type Backup struct {
	ID         int64   `json:"id"`
	AdminID    int64   `json:"adminid"`
	CustomerID int64   `json:"customerid"`
	LoginName  string  `json:"loginname"`
	Size       int64   `json:"size"`
	StorageID  int64   `json:"storage_id"`
	Filename   string  `json:"filename"`
	CreatedAt  int64   `json:"created_at"`
	AdminName  *string `json:"adminname"`
	SizeHuman  string  `json:"size_readable"`
}

// SearchTerm filters one column. Op is one of <, >, = or empty for LIKE.
type SearchTerm struct {
	Op    string `json:"op"`
	Value string `json:"value"`
}

// BackupListParams select the customers and page of Backups.listing.
type BackupListParams struct {
	CustomerID Number                `json:"customerid" desc:"only this customer (admin only)"`
	LoginName  string                `json:"loginname" desc:"only this customer by login name (admin only)"`
	Search     map[string]SearchTerm `json:"sql_search" desc:"column -> {op, value}, LIKE when op is empty"`
	OrderBy    map[string]string     `json:"sql_orderby" desc:"column -> ASC|DESC"`
	Limit      Number                `json:"sql_limit" desc:"number of rows, 0 for all"`
	Offset     Number                `json:"sql_offset" desc:"rows to skip"`
}

type BackupIDParams struct {
	ID Number `json:"id" desc:"backup id"`
}

// backupColumns maps the searchable and sortable fields to SQL.
var backupColumns = map[string]string{
	"id":         "b.id",
	"adminid":    "b.adminid",
	"customerid": "b.customerid",
	"loginname":  "b.loginname",
	"size":       "b.size",
	"storage_id": "b.storage_id",
	"filename":   "b.filename",
	"created_at": "b.created_at",
	"adminname":  "a.loginname",
}

func (s *Service) registerBackups() {
	Register(s.registry, "Backups", "listing", "lists all backup entries", s.BackupsListing)
	Register(s.registry, "Backups", "listingCount", "returns the total number of backups", s.BackupsListingCount)
	Register(s.registry, "Backups", "add", "you cannot add a backup entry", s.BackupsAdd)
	Register(s.registry, "Backups", "get", "return a backup entry by id", s.BackupsGet)
	Register(s.registry, "Backups", "update", "you cannot update a backup entry", s.BackupsUpdate)
	Register(s.registry, "Backups", "delete", "delete a backup entry by id", s.BackupsDelete)
}

// backupCustomerIDs resolves the customers whose backups the caller may see.
func (s *Service) backupCustomerIDs(ctx context.Context, q store.Querier, c *Caller, p BackupListParams) ([]int64, error) {
	if !c.IsAdmin() {
		return []int64{c.Customer.CustomerID}, nil
	}
	if p.CustomerID != 0 || p.LoginName != "" {
		cust, err := s.getCustomer(ctx, q, c, int64(p.CustomerID), p.LoginName)
		if err != nil {
			return nil, err
		}
		return []int64{cust.CustomerID}, nil
	}
	list, err := visibleCustomers(ctx, q, c)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(list))
	for _, cust := range list {
		ids = append(ids, cust.CustomerID)
	}
	if len(ids) == 0 {
		return nil, newError(http.StatusMethodNotAllowed, "resourceunsatisfied")
	}
	return ids, nil
}

// searchClause renders the sql_search filters. Unknown columns and
// operators are rejected.
func searchClause(search map[string]SearchTerm) (string, []any, error) {
	fields := make([]string, 0, len(search))
	for f := range search {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var parts []string
	var args []any
	for _, f := range fields {
		col, ok := backupColumns[f]
		if !ok {
			return "", nil, wrongField(f)
		}
		term := search[f]
		switch term.Op {
		case "":
			parts = append(parts, col+" LIKE ?")
			args = append(args, "%"+term.Value+"%")
		case "<", ">", "=":
			parts = append(parts, col+" "+term.Op+" ?")
			args = append(args, term.Value)
		default:
			return "", nil, wrongField(f)
		}
	}
	if len(parts) == 0 {
		return "", nil, nil
	}
	return " AND " + strings.Join(parts, " AND "), args, nil
}

func orderClause(order map[string]string) (string, error) {
	fields := make([]string, 0, len(order))
	for f := range order {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var parts []string
	for _, f := range fields {
		col, ok := backupColumns[f]
		if !ok {
			return "", wrongField(f)
		}
		dir := strings.ToUpper(strings.TrimSpace(order[f]))
		if dir != "ASC" && dir != "DESC" {
			return "", wrongField(f)
		}
		parts = append(parts, col+" "+dir)
	}
	if len(parts) == 0 {
		return " ORDER BY b.created_at DESC", nil
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// BackupsListing lists backups of the visible customers.
func (s *Service) BackupsListing(ctx context.Context, c *Caller, p BackupListParams) (any, error) {
	q := s.db.SQL()
	ids, err := s.backupCustomerIDs(ctx, q, c, p)
	if err != nil {
		return nil, err
	}
	s.logRead(ctx, c, "[API] list backups")

	marks, args := store.Placeholders(ids)
	where, searchArgs, err := searchClause(p.Search)
	if err != nil {
		return nil, err
	}
	order, err := orderClause(p.OrderBy)
	if err != nil {
		return nil, err
	}
	query := `SELECT b.id, b.adminid, b.customerid, b.loginname, b.size, b.storage_id, b.filename,
		b.created_at, a.loginname
		FROM panel_backups b
		LEFT JOIN panel_admins a ON a.adminid = b.adminid
		WHERE b.customerid IN (` + marks + `)` + where + order
	args = append(args, searchArgs...)
	if p.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, int64(p.Limit), int64(p.Offset))
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var list []Backup
	for rows.Next() {
		var b Backup
		var admin sql.NullString
		if err := rows.Scan(&b.ID, &b.AdminID, &b.CustomerID, &b.LoginName, &b.Size, &b.StorageID,
			&b.Filename, &b.CreatedAt, &admin); err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		b.AdminName = nullString(admin)
		b.SizeHuman = textutil.SizeReadable(float64(b.Size), "", "bi", "")
		list = append(list, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return newListing(list), nil
}

// BackupsListingCount returns the number of backups of the visible
// customers.
func (s *Service) BackupsListingCount(ctx context.Context, c *Caller, p BackupListParams) (any, error) {
	q := s.db.SQL()
	ids, err := s.backupCustomerIDs(ctx, q, c, p)
	if err != nil {
		return nil, err
	}
	marks, args := store.Placeholders(ids)
	return store.Count(ctx, q, "SELECT COUNT(*) FROM panel_backups WHERE customerid IN ("+marks+")", args...)
}

func (s *Service) BackupsAdd(context.Context, *Caller, BackupIDParams) (any, error) {
	return nil, newError(http.StatusSeeOther, "backupnoadd")
}

func (s *Service) BackupsUpdate(context.Context, *Caller, BackupIDParams) (any, error) {
	return nil, newError(http.StatusSeeOther, "backupnoupdate")
}

func (s *Service) BackupsGet(context.Context, *Caller, BackupIDParams) (any, error) {
	return nil, newError(http.StatusSeeOther, "notimplemented")
}

func (s *Service) BackupsDelete(context.Context, *Caller, BackupIDParams) (any, error) {
	return nil, newError(http.StatusSeeOther, "notimplemented")
}
