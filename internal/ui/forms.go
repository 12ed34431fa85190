package ui

import (
	"fmt"

	"golang.org/x/text/language/display"

	"grimm.is/hearth/internal/auth"
	"grimm.is/hearth/internal/i18n"
	"grimm.is/hearth/internal/settings"
)

// FormContext is the runtime data form declarations are built from.
type FormContext struct {
	Settings *settings.Store
	// IPs are the selectable IP addresses, value is the ipsandports id.
	IPs []SelectOption
}

// FieldError reports a value that violates a field's declaration.
type FieldError struct {
	Key   string // catalog key, e.g. intvaluetoolow
	Field string
	Label string // catalog key of the field label
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Key)
}

// CheckInt validates v against the field's min and max.
func (f Form) CheckInt(key string, v int64) error {
	field := f.Field(key)
	if field == nil {
		return nil
	}
	if m := field.Validation.Min; m != nil && v < int64(*m) {
		return &FieldError{Key: "intvaluetoolow", Field: key, Label: field.Label}
	}
	if m := field.Validation.Max; m != nil && v > int64(*m) {
		return &FieldError{Key: "intvaluetoohigh", Field: key, Label: field.Label}
	}
	return nil
}

// CheckRequired reports a missing mandatory value.
func (f Form) CheckRequired(key, v string) error {
	field := f.Field(key)
	if field == nil || !field.Validation.Required || v != "" {
		return nil
	}
	return &FieldError{Key: "mandatoryfield", Field: key, Label: field.Label}
}

// LanguageOptions lists the bundled languages by their own name.
func LanguageOptions() []SelectOption {
	opts := make([]SelectOption, 0, len(i18n.SupportedLangs))
	for _, tag := range i18n.SupportedLangs {
		base, _ := tag.Base()
		opts = append(opts, SelectOption{Value: base.String(), Label: display.Self.Name(tag)})
	}
	return opts
}

// AdminAddForm declares the admin_add form.
func AdminAddForm(fc FormContext) Form {
	st := fc.Settings
	policy := auth.PolicyFromSettings(st)
	pattern, _ := auth.SplitDelimited(policy.Regex)

	ips := append([]SelectOption{{Value: "-1", Label: "form.allips"}}, fc.IPs...)
	quota := func(key string, maxLength, max int) FormField {
		return FormField{
			Key: key, Label: "form." + key, Type: FieldQuota, DefaultValue: 0, Visible: true,
			Validation: FieldValidation{MaxLength: maxLength, Min: intPtr(-1), Max: intPtr(max)},
		}
	}

	return Form{
		ComponentID:  "admin_add",
		Title:        "form.admin_add",
		SubmitLabel:  "form.create",
		SubmitAction: "/api/admins",
		Sections: []FormSection{
			{
				ID:    "section_a",
				Title: "form.accountdata",
				Fields: []FormField{
					{
						Key: "new_loginname", Label: "myloginname", Type: FieldText, Visible: true,
						Validation: FieldValidation{Required: true, MaxLength: 48, Pattern: `^[a-z][a-z0-9\-_]+$`},
					},
					{
						Key: "admin_password", Label: "mypassword", Type: FieldPassword, Visible: true,
						Validation: FieldValidation{Required: true, Pattern: pattern},
					},
					{
						Key: "admin_password_suggestion", Label: "form.passwordsuggestion", Type: FieldText,
						Suggestion: auth.GeneratePassword(policy),
						Visible:    st.Get("panel.password_regex") == "",
					},
					{
						Key: "def_language", Label: "form.language", Type: FieldSelect, Visible: true,
						Options: LanguageOptions(), DefaultValue: st.Get("panel.standardlanguage"),
					},
					{
						Key: "api_allowed", Label: "form.api_allowed", Type: FieldCheckbox,
						DefaultValue: st.Bool("api.enabled"), Visible: st.Bool("api.enabled"),
					},
				},
			},
			{
				ID:    "section_b",
				Title: "form.contactdata",
				Fields: []FormField{
					{Key: "name", Label: "myname", Type: FieldText, Visible: true, Validation: FieldValidation{Required: true}},
					{Key: "email", Label: "myemail", Type: FieldEmail, Visible: true, Validation: FieldValidation{Required: true}},
					{Key: "custom_notes", Label: "form.custom_notes", Type: FieldTextarea, Visible: true},
					{Key: "custom_notes_show", Label: "form.custom_notes_show", Type: FieldCheckbox, DefaultValue: false, Visible: true},
				},
			},
			{
				ID:    "section_c",
				Title: "form.servicedata",
				Fields: []FormField{
					{Key: "ipaddress", Label: "form.ipaddress", Type: FieldSelect, Options: ips, DefaultValue: "-1", Visible: true},
					{Key: "change_serversettings", Label: "form.change_serversettings", Type: FieldCheckbox, DefaultValue: false, Visible: true},
					quota("customers", 9, 999999999),
					{Key: "customers_see_all", Label: "form.customers_see_all", Type: FieldCheckbox, DefaultValue: false, Visible: true},
					quota("domains", 9, 999999999),
					{Key: "domains_see_all", Label: "form.domains_see_all", Type: FieldCheckbox, DefaultValue: false, Visible: true},
					{Key: "caneditphpsettings", Label: "form.caneditphpsettings", Type: FieldCheckbox, DefaultValue: false, Visible: true},
				},
			},
		},
	}
}

// FormNames lists the declared forms.
var FormNames = []string{"admin_add"}

// GetForm returns the named form, or false.
func GetForm(name string, fc FormContext) (Form, bool) {
	switch name {
	case "admin_add":
		return AdminAddForm(fc), true
	}
	return Form{}, false
}
