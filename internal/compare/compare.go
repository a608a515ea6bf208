// Package compare detects semantic changes between two versions of a record.
//
// Paths use the JSON field names of the record, dot separated, with "[i]" for
// slice elements (e.g. "Detail.de.Title", "ImageGallery[2].Width"). Ignore
// lists use the same notation with or without the brackets
// ("ImageGallery[].Width" and "ImageGallery.Width" are the same rule).
//
// Nil and empty collections compare equal: a record that drops an empty list
// or map is not a change.
package compare

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
)

// Op is the kind of a field-level change
type Op string

const (
	// OpAdd marks a field that is set only in the newer record
	OpAdd Op = "add"
	// OpRemove marks a field that is set only in the older record
	OpRemove Op = "remove"
	// OpReplace marks a field whose value differs between the records
	OpReplace Op = "replace"
)

// Change is a single field-level difference
type Change struct {
	Path string `json:"path"`
	Op   Op     `json:"op"`
	Old  any    `json:"old,omitempty"`
	New  any    `json:"new,omitempty"`
}

// Patch is the ordered list of differences between two records
type Patch []Change

// JSON returns the patch as a JSON document, nil for an empty patch
func (p Patch) JSON() ([]byte, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return json.Marshal(p)
}

// Result is the outcome of comparing two records
type Result struct {
	Equal bool  `json:"isequal"`
	Patch Patch `json:"patch"`
}

// Records compares two versions of a record, skipping the paths in ignore.
// With deep unset every change is reported at its top-level field.
// The patch is nil when the records are equal and is identical for repeated
// comparisons of the same pair.
func Records[T any](prev, next T, ignore []string, deep bool) Result {
	r := &reporter{}
	equal := cmp.Equal(prev, next,
		cmpopts.EquateEmpty(),
		ignorePaths(ignore),
		cmp.Reporter(r),
	)
	if equal {
		return Result{Equal: true}
	}
	patch := r.changes
	if !deep {
		patch = collapse(patch, prev, next)
	}
	return Result{Equal: false, Patch: patch}
}

// ImageGallery reports whether two image lists are equivalent, skipping the
// image fields in ignore. Order matters.
func ImageGallery(prev, next []models.ImageGallery, ignore []string) bool {
	return cmp.Equal(prev, next, cmpopts.EquateEmpty(), ignorePaths(ignore))
}

// ignorePaths drops the subtrees whose path pattern is listed
func ignorePaths(ignore []string) cmp.Option {
	set := make(map[string]struct{}, len(ignore))
	for _, p := range ignore {
		if key := pattern(p); key != "" {
			set[key] = struct{}{}
		}
	}
	return cmp.FilterPath(func(p cmp.Path) bool {
		if len(set) == 0 {
			return false
		}
		_, ok := set[pattern(pathString(p))]
		return ok
	}, cmp.Ignore())
}

// pattern strips slice indexes so rules apply to every element
func pattern(path string) string {
	var b strings.Builder
	skip := false
	for _, r := range path {
		switch {
		case r == '[':
			skip = true
		case r == ']':
			skip = false
		case !skip:
			b.WriteRune(r)
		}
	}
	return strings.Trim(strings.ReplaceAll(b.String(), "..", "."), ".")
}

// pathString renders a cmp path with JSON field names
func pathString(p cmp.Path) string {
	var b strings.Builder
	for i, step := range p {
		switch s := step.(type) {
		case cmp.StructField:
			f := p.Index(i - 1).Type().Field(s.Index())
			if f.Anonymous {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(jsonName(f))
		case cmp.MapIndex:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			fmt.Fprint(&b, s.Key().Interface())
		case cmp.SliceIndex:
			ix, iy := s.SplitKeys()
			if ix < 0 {
				ix = iy
			}
			fmt.Fprintf(&b, "[%d]", ix)
		}
	}
	return b.String()
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// reporter collects the unequal leaves of a comparison in traversal order
type reporter struct {
	path    cmp.Path
	changes Patch
}

func (r *reporter) PushStep(ps cmp.PathStep) { r.path = append(r.path, ps) }

func (r *reporter) PopStep() { r.path = r.path[:len(r.path)-1] }

func (r *reporter) Report(rs cmp.Result) {
	if rs.Equal() {
		return
	}
	vx, vy := r.path.Last().Values()
	c := Change{Path: pathString(r.path)}
	switch {
	case !vx.IsValid():
		c.Op = OpAdd
		c.New = valueOf(vy)
	case !vy.IsValid():
		c.Op = OpRemove
		c.Old = valueOf(vx)
	default:
		c.Op = OpReplace
		c.Old = valueOf(vx)
		c.New = valueOf(vy)
	}
	r.changes = append(r.changes, c)
}

func valueOf(v reflect.Value) any {
	if !v.IsValid() || !v.CanInterface() {
		return nil
	}
	return v.Interface()
}

// collapse reduces a patch to one replace per top-level field
func collapse[T any](patch Patch, prev, next T) Patch {
	oldFields := topLevel(prev)
	newFields := topLevel(next)
	seen := make(map[string]bool)
	var out Patch
	for _, c := range patch {
		field, _, _ := strings.Cut(c.Path, ".")
		field, _, _ = strings.Cut(field, "[")
		if seen[field] {
			continue
		}
		seen[field] = true
		c := Change{Path: field, Op: OpReplace}
		if raw, ok := oldFields[field]; ok {
			c.Old = raw
		}
		if raw, ok := newFields[field]; ok {
			c.New = raw
		}
		out = append(out, c)
	}
	return out
}

// topLevel decodes v into its top-level JSON fields
func topLevel(v any) map[string]json.RawMessage {
	fields := map[string]json.RawMessage{}
	data, err := json.Marshal(v)
	if err != nil {
		return fields
	}
	_ = json.Unmarshal(data, &fields)
	return fields
}
