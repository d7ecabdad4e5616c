package domain

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	ValueTypeText    = "text"
	ValueTypeNumber  = "number"
	ValueTypeBoolean = "boolean"
	ValueTypeDate    = "date"
)

const (
	GroupTypeSingle = "single"
	GroupTypeMulti  = "multi"
)

// Storage bounds for option labels/keys/values. Over-length input is
// truncated rather than rejected, matching the column widths.
const (
	maxKeyLen   = 100
	maxLabelLen = 255
	maxValueLen = 255
)

// dateLayout is the ISO date form canonical date values take.
const dateLayout = "2006-01-02"

// NormalizeOptionSchema canonicalizes a client-supplied option schema into
// the form the reconciler persists: group keys derived and bounded, group
// types coerced to single/multi, every option's typed value reduced to its
// canonical string, and duplicate identities collapsed (last occurrence
// wins). The result is safe to hand to either store implementation.
func NormalizeOptionSchema(schema []OptionGroup) []OptionGroup {
	out := make([]OptionGroup, 0, len(schema))
	seenKeys := make(map[string]int, len(schema))

	for _, group := range schema {
		g := normalizeGroup(group)
		if g.Key == "" {
			continue
		}
		if idx, dup := seenKeys[g.Key]; dup {
			out[idx] = g
			continue
		}
		seenKeys[g.Key] = len(out)
		out = append(out, g)
	}
	return out
}

func normalizeGroup(group OptionGroup) OptionGroup {
	key := strings.TrimSpace(group.Key)
	if key == "" {
		key = strings.TrimSpace(group.Label)
	}
	g := OptionGroup{
		Key:      truncate(key, maxKeyLen),
		Label:    truncate(strings.TrimSpace(group.Label), maxLabelLen),
		Type:     GroupTypeSingle,
		Required: group.Required,
	}
	if group.Type == GroupTypeMulti {
		g.Type = GroupTypeMulti
	}

	g.Options = make([]OptionValue, 0, len(group.Options))
	seen := make(map[string]int, len(group.Options))
	for _, opt := range group.Options {
		v := CanonicalizeOptionValue(opt)
		identity := v.Label + "\x1f" + v.Value
		if idx, dup := seen[identity]; dup {
			g.Options[idx] = v
			continue
		}
		seen[identity] = len(g.Options)
		g.Options = append(g.Options, v)
	}
	return g
}

// CanonicalizeOptionValue reduces a typed option to its canonical string
// form. The canonical string is what uniqueness is checked against, because
// the typed columns differ in storage type but must dedupe consistently:
// text passes through, numbers stringify, booleans become "true"/"false",
// dates become their ISO date string. Unknown value types fall back to text.
func CanonicalizeOptionValue(opt OptionValue) OptionValue {
	v := OptionValue{
		Label:      truncate(strings.TrimSpace(opt.Label), maxLabelLen),
		ValueType:  opt.ValueType,
		PriceDelta: opt.PriceDelta,
	}

	switch opt.ValueType {
	case ValueTypeNumber:
		var num float64
		if opt.NumberValue != nil {
			num = *opt.NumberValue
		} else if parsed, err := strconv.ParseFloat(strings.TrimSpace(opt.Value), 64); err == nil {
			num = parsed
		}
		v.NumberValue = &num
		v.Value = strconv.FormatFloat(num, 'f', -1, 64)
	case ValueTypeBoolean:
		b := false
		if opt.BoolValue != nil {
			b = *opt.BoolValue
		} else if strings.EqualFold(strings.TrimSpace(opt.Value), "true") {
			b = true
		}
		v.BoolValue = &b
		v.Value = strconv.FormatBool(b)
	case ValueTypeDate:
		raw := ""
		if opt.DateValue != nil {
			raw = strings.TrimSpace(*opt.DateValue)
		}
		if raw == "" {
			raw = strings.TrimSpace(opt.Value)
		}
		iso := canonicalDate(raw)
		v.DateValue = &iso
		v.Value = iso
	default:
		v.ValueType = ValueTypeText
		text := strings.TrimSpace(opt.Value)
		if text == "" && opt.TextValue != nil {
			text = strings.TrimSpace(*opt.TextValue)
		}
		text = truncate(text, maxValueLen)
		v.TextValue = &text
		v.Value = text
	}

	v.Value = truncate(v.Value, maxValueLen)
	return v
}

// canonicalDate reduces the supported date inputs (ISO date, RFC 3339
// timestamp) to a bare ISO date. Unparseable input passes through so the
// identity check still sees a stable string.
func canonicalDate(raw string) string {
	if raw == "" {
		return ""
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t.Format(dateLayout)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Format(dateLayout)
	}
	return raw
}

// truncate clips s to at most limit bytes, backing up to a rune boundary so
// the result is always valid UTF-8.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
