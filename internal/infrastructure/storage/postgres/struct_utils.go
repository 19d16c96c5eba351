package postgres

import (
	"reflect"
	"sync"
)

// column maps a struct field path to its "db" tag.
type column struct {
	index []int
	name  string
}

// columnCache holds the columns of each struct type, computed once.
var columnCache sync.Map // map[reflect.Type][]column

func columnsOf(t reflect.Type) []column {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]column)
	}

	var cols []column
	if t.Kind() == reflect.Struct {
		cols = collectColumns(t, nil)
	}
	columnCache.Store(t, cols)
	return cols
}

func collectColumns(t reflect.Type, prefix []int) []column {
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			cols = append(cols, collectColumns(field.Type, index)...)
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		cols = append(cols, column{index: index, name: tag})
	}
	return cols
}

// ExtractDBColumns lists the "db" tags of T, including embedded structs,
// in field order.
func ExtractDBColumns[T any]() []string {
	var zero T
	cols := columnsOf(reflect.TypeOf(zero))
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

// StructToMap converts a struct (or pointer to one) into column -> value
// using its "db" tags. Non-struct values yield nil.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	cols := columnsOf(rv.Type())
	res := make(map[string]any, len(cols))
	for _, c := range cols {
		res[c.name] = rv.FieldByIndex(c.index).Interface()
	}
	return res
}
