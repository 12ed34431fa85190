// Package tui renders panel form and listing declarations on a terminal.
package tui

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/text/message"

	"grimm.is/hearth/internal/i18n"
	"grimm.is/hearth/internal/ui"
)

// FormOptions configure where a form reads and writes. Accessible mode
// prompts line by line and is used when stdin is not a terminal.
type FormOptions struct {
	Printer    *message.Printer
	Input      io.Reader
	Output     io.Writer
	Accessible bool
}

// binding holds the huh value of one declared field.
type binding struct {
	field ui.FormField
	text  *string
	check *bool
}

// BuildForm turns a form declaration into a huh form. Values entered by the
// user are copied into values when Collect is called.
func BuildForm(schema ui.Form, values map[string]string, opts FormOptions) (*huh.Form, func()) {
	p := opts.Printer
	if p == nil {
		p = i18n.NewPrinter(i18n.DefaultLang)
	}
	tr := func(key string) string { return p.Sprintf(key) }

	var bindings []binding
	var groups []*huh.Group
	for _, section := range schema.Sections {
		var fields []huh.Field
		for _, f := range section.Fields {
			if !f.Visible {
				continue
			}
			b := binding{field: f}
			title := tr(f.Label)
			if f.Validation.Required {
				title += " *"
			}

			switch f.Type {
			case ui.FieldCheckbox:
				v := values[f.Key] == "1" || (values[f.Key] == "" && f.DefaultValue == true)
				b.check = &v
				fields = append(fields, huh.NewConfirm().Title(title).Value(b.check))

			case ui.FieldSelect:
				v := initial(values, f)
				b.text = &v
				options := make([]huh.Option[string], 0, len(f.Options))
				for _, o := range f.Options {
					options = append(options, huh.NewOption(tr(o.Label), o.Value))
				}
				fields = append(fields, huh.NewSelect[string]().Title(title).Options(options...).Value(b.text))

			case ui.FieldTextarea:
				v := initial(values, f)
				b.text = &v
				fields = append(fields, huh.NewText().Title(title).Value(b.text))

			default:
				if f.Suggestion != "" {
					fields = append(fields, huh.NewNote().Title(title).Description(f.Suggestion))
					continue
				}
				v := initial(values, f)
				b.text = &v
				input := huh.NewInput().Title(title).Value(b.text).Validate(fieldValidator(schema, f, p))
				if f.Type == ui.FieldPassword {
					input.EchoMode(huh.EchoModePassword)
				}
				fields = append(fields, input)
			}
			bindings = append(bindings, b)
		}
		if len(fields) > 0 {
			groups = append(groups, huh.NewGroup(fields...).Title(tr(section.Title)))
		}
	}

	form := huh.NewForm(groups...).WithTheme(huh.ThemeBase16()).WithAccessible(opts.Accessible)
	if opts.Input != nil {
		form = form.WithInput(opts.Input)
	}
	if opts.Output != nil {
		form = form.WithOutput(opts.Output)
	}

	collect := func() {
		for _, b := range bindings {
			switch {
			case b.check != nil:
				values[b.field.Key] = "0"
				if *b.check {
					values[b.field.Key] = "1"
				}
			case b.text != nil:
				values[b.field.Key] = strings.TrimSpace(*b.text)
			}
		}
	}
	return form, collect
}

// RunForm prompts for every visible field of schema and stores the answers
// in values, keyed by field key.
func RunForm(schema ui.Form, values map[string]string, opts FormOptions) error {
	form, collect := BuildForm(schema, values, opts)
	if err := form.Run(); err != nil {
		return err
	}
	collect()
	return nil
}

func initial(values map[string]string, f ui.FormField) string {
	if v, ok := values[f.Key]; ok {
		return v
	}
	switch d := f.DefaultValue.(type) {
	case string:
		return d
	case int:
		return strconv.Itoa(d)
	}
	return ""
}

// fieldValidator applies the declared required and int range checks.
func fieldValidator(schema ui.Form, f ui.FormField, p *message.Printer) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if err := schema.CheckRequired(f.Key, s); err != nil {
			return translate(p, err)
		}
		if f.Type != ui.FieldQuota && f.Type != ui.FieldNumber || s == "" {
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return errors.New(i18n.Text(p, "stringiswrong", i18n.Label(f.Label)))
		}
		return translate(p, schema.CheckInt(f.Key, n))
	}
}

func translate(p *message.Printer, err error) error {
	var fe *ui.FieldError
	if errors.As(err, &fe) {
		return errors.New(i18n.Text(p, fe.Key, i18n.Label(fe.Label)))
	}
	return err
}
