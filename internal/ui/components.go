package ui

// ComponentType identifies the type of UI component.
type ComponentType string

const (
	ComponentTable ComponentType = "table"
	ComponentForm  ComponentType = "form"
)

// Component is the base interface for declared components.
type Component interface {
	Type() ComponentType
	ID() string
}

// TableColumn defines a column in a listing.
type TableColumn struct {
	Key      string `json:"key"`   // Data field key
	Label    string `json:"label"` // Catalog key of the header
	Sortable bool   `json:"sortable"`
	Format   string `json:"format,omitempty"` // "bytes", "date", "target"
	Hidden   bool   `json:"hidden"`
}

// Href is a link to a panel page. Values of the form ":field" are replaced
// with the row's field.
type Href map[string]string

// TableAction defines an action that can be performed on a row.
type TableAction struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Icon        string `json:"icon"`
	Class       string `json:"class,omitempty"`
	Href        Href   `json:"href"`
	Destructive bool   `json:"destructive"`

	// Visible decides per row whether the action is offered. Nil means
	// always.
	Visible func(u User, row Row) bool `json:"-"`
}

// Table defines a listing component.
type Table struct {
	ComponentID string        `json:"id"`
	Title       string        `json:"title"`
	Icon        string        `json:"icon,omitempty"`
	Columns     []TableColumn `json:"columns"`
	Actions     []TableAction `json:"actions,omitempty"`
	Searchable  bool          `json:"searchable"`
	Paginated   bool          `json:"paginated"`
	PageSize    int           `json:"pageSize"`
	EmptyText   string        `json:"emptyText"`
	DataSource  string        `json:"dataSource"` // API endpoint for data
}

func (t Table) Type() ComponentType { return ComponentTable }
func (t Table) ID() string          { return t.ComponentID }

// FieldType defines the type of form field.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldNumber   FieldType = "number"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
	FieldPassword FieldType = "password"
	FieldEmail    FieldType = "email"
	// FieldQuota is a number with an "unlimited" checkbox (-1).
	FieldQuota FieldType = "textul"
)

// SelectOption defines an option for select fields.
type SelectOption struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Disabled bool   `json:"disabled,omitempty"`
}

// FieldValidation defines validation rules for a field.
type FieldValidation struct {
	Required  bool   `json:"required,omitempty"`
	MaxLength int    `json:"maxLength,omitempty"`
	Min       *int   `json:"min,omitempty"` // For numbers
	Max       *int   `json:"max,omitempty"` // For numbers
	Pattern   string `json:"pattern,omitempty"`
}

// FormField defines a single field in a form.
type FormField struct {
	Key          string          `json:"key"`
	Label        string          `json:"label"` // Catalog key
	Type         FieldType       `json:"type"`
	HelpText     string          `json:"helpText,omitempty"`
	DefaultValue any             `json:"defaultValue,omitempty"`
	Suggestion   string          `json:"suggestion,omitempty"` // e.g. a generated password
	Options      []SelectOption  `json:"options,omitempty"`
	Validation   FieldValidation `json:"validation,omitempty"`
	Visible      bool            `json:"visible"`
}

// FormSection groups related fields together.
type FormSection struct {
	ID     string      `json:"id"`
	Title  string      `json:"title,omitempty"`
	Fields []FormField `json:"fields"`
}

// Form defines a form component.
type Form struct {
	ComponentID  string        `json:"id"`
	Title        string        `json:"title"`
	Sections     []FormSection `json:"sections"`
	SubmitLabel  string        `json:"submitLabel"`
	SubmitAction string        `json:"submitAction"` // API endpoint for submitting
}

func (f Form) Type() ComponentType { return ComponentForm }
func (f Form) ID() string          { return f.ComponentID }

// Field returns the field with key, or nil.
func (f Form) Field(key string) *FormField {
	for i := range f.Sections {
		for j := range f.Sections[i].Fields {
			if f.Sections[i].Fields[j].Key == key {
				return &f.Sections[i].Fields[j]
			}
		}
	}
	return nil
}

// Fields returns all fields in declaration order.
func (f Form) Fields() []FormField {
	var out []FormField
	for _, s := range f.Sections {
		out = append(out, s.Fields...)
	}
	return out
}

func intPtr(v int) *int { return &v }
