package panel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Flag is a boolean parameter. Clients send true/false, 0/1 or "0"/"1".
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var s string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		s = string(b)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		*f = true
	case "0", "false", "off", "no", "", "null":
		*f = false
	default:
		return fmt.Errorf("invalid boolean %s", b)
	}
	return nil
}

// Text is a scalar parameter kept as sent, so the command can report a
// malformed value with its own message. JSON numbers are accepted too.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case string(b) == "null":
		*t = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(strings.TrimSpace(s))
	default:
		*t = Text(b)
	}
	return nil
}

// Number is an integer parameter that may arrive as a JSON string.
type Number int64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*n = 0
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s", b)
	}
	*n = Number(v)
	return nil
}

// IDList is a list of row ids. A single value or a comma separated string
// is accepted too.
type IDList []int64

func (l *IDList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var raw []Number
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		out := make(IDList, 0, len(raw))
		for _, v := range raw {
			out = append(out, int64(v))
		}
		*l = out
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		out := IDList{}
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", part)
			}
			out = append(out, v)
		}
		*l = out
		return nil
	}
	var n Number
	if err := n.UnmarshalJSON(b); err != nil {
		return err
	}
	*l = IDList{int64(n)}
	return nil
}

func flagOr(f *Flag, def bool) bool {
	if f == nil {
		return def
	}
	return bool(*f)
}

func intOr(n *Number, def int64) int64 {
	if n == nil {
		return def
	}
	return int64(*n)
}

func strOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func idsOr(l *IDList, def []int64) []int64 {
	if l == nil {
		return def
	}
	return *l
}

// decodeParams decodes a JSON params object into dst. Empty input leaves dst
// untouched.
func decodeParams(raw []byte, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalid("invalidbody")
	}
	return nil
}
