package render

import (
	"fmt"
	"reflect"
	"strings"
	"text/tabwriter"
)

// renderTable writes a slice of structs as a column table and a single
// struct as aligned key/value lines. Anything else is printed with %v.
func (r *Renderer) renderTable(data any) error {
	v := reflect.Indirect(reflect.ValueOf(data))
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			fmt.Fprintln(r.out, "(no results)")
			return nil
		}
		cols := columns(elemType(v.Type()))
		fmt.Fprintln(w, strings.Join(columnNames(cols), "\t"))
		for i := range v.Len() {
			fmt.Fprintln(w, strings.Join(cells(reflect.Indirect(v.Index(i)), cols), "\t"))
		}
	case reflect.Struct:
		cols := columns(v.Type())
		for i, val := range cells(v, cols) {
			fmt.Fprintf(w, "%s:\t%s\n", cols[i].name, val)
		}
	default:
		fmt.Fprintf(w, "%v\n", data)
	}
	return w.Flush()
}

type column struct {
	name  string
	index int
}

func elemType(t reflect.Type) reflect.Type {
	t = t.Elem()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// columns lists the exported fields of a struct type under their json names.
// Fields tagged json:"-" are hidden.
func columns(t reflect.Type) []column {
	if t.Kind() != reflect.Struct {
		return []column{{name: "value", index: -1}}
	}
	var cols []column
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		cols = append(cols, column{name: name, index: i})
	}
	return cols
}

func columnNames(cols []column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

func cells(v reflect.Value, cols []column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		switch {
		case !v.IsValid():
		case c.index < 0:
			out[i] = cell(v)
		default:
			out[i] = cell(v.Field(c.index))
		}
	}
	return out
}

// cell formats one value. Byte slices render as hex pairs, nil pointers as
// empty cells, and other collections by length.
func cell(v reflect.Value) string {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		return hexString(v.Bytes())
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		if v.Len() == 0 {
			return "-"
		}
		return fmt.Sprintf("%d items", v.Len())
	default:
		return fmt.Sprint(v.Interface())
	}
}
