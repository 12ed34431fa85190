package panel

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// ParamDoc describes one parameter of a command.
type ParamDoc struct {
	Parameter string `json:"parameter"`
	Type      string `json:"type"`
	Optional  bool   `json:"optional"`
	Desc      string `json:"desc"`
}

// Command is one registered module function.
type Command struct {
	Module   string     `json:"module"`
	Function string     `json:"function"`
	Head     string     `json:"head"`
	Params   []ParamDoc `json:"params"`

	run func(ctx context.Context, c *Caller, raw []byte) (any, error)
}

// Name returns "Module.function".
func (c *Command) Name() string { return c.Module + "." + c.Function }

// Run decodes raw and executes the command.
func (c *Command) Run(ctx context.Context, caller *Caller, raw []byte) (any, error) {
	return c.run(ctx, caller, raw)
}

// Registry maps "Module.function" names to commands.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// Register adds a command whose parameters are decoded into a P. The
// parameter documentation is read from P's json and desc struct tags.
func Register[P any](r *Registry, module, function, head string, fn func(ctx context.Context, c *Caller, p P) (any, error)) {
	var zero P
	cmd := &Command{
		Module:   module,
		Function: function,
		Head:     head,
		Params:   paramDocs(reflect.TypeOf(zero)),
		run: func(ctx context.Context, c *Caller, raw []byte) (any, error) {
			var p P
			if err := decodeParams(raw, &p); err != nil {
				return nil, err
			}
			return fn(ctx, c, p)
		},
	}
	r.mu.Lock()
	r.commands[strings.ToLower(cmd.Name())] = cmd
	r.mu.Unlock()
}

// Lookup finds a command by name, case-insensitively.
func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[strings.ToLower(name)]
	return cmd, ok
}

// HasModule reports whether any command of module is registered.
func (r *Registry) HasModule(module string) bool {
	return len(r.List(module)) > 0
}

// List returns the commands of module (all modules when empty), sorted by
// module and function.
func (r *Registry) List(module string) []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Command
	for _, cmd := range r.commands {
		if module != "" && !strings.EqualFold(cmd.Module, module) {
			continue
		}
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Function < out[j].Function
	})
	return out
}

var (
	flagType   = reflect.TypeOf(Flag(false))
	numberType = reflect.TypeOf(Number(0))
	idListType = reflect.TypeOf(IDList(nil))
)

func paramDocs(t reflect.Type) []ParamDoc {
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	docs := make([]ParamDoc, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		ft := f.Type
		optional := ft.Kind() == reflect.Pointer
		if optional {
			ft = ft.Elem()
		}
		docs = append(docs, ParamDoc{
			Parameter: name,
			Type:      typeName(ft),
			Optional:  optional,
			Desc:      f.Tag.Get("desc"),
		})
	}
	return docs
}

func typeName(t reflect.Type) string {
	switch t {
	case flagType:
		return "bool"
	case numberType:
		return "int"
	case idListType:
		return "array"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int64:
		return "int"
	case reflect.Bool:
		return "bool"
	case reflect.Slice:
		return "array"
	}
	return t.String()
}
