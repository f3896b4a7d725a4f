package handler

import (
	"html"
	"reflect"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// plainText strips every tag; request bodies carry plain text only.
var plainText = bluemonday.StrictPolicy()

func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(s)))
}

// sanitize cleans all string fields of a struct pointer, descending into
// nested structs and string pointers.
func sanitize(v any) {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return
	}
	sanitizeValue(val.Elem())
}

func sanitizeValue(val reflect.Value) {
	switch val.Kind() {
	case reflect.String:
		if val.CanSet() {
			val.SetString(cleanText(val.String()))
		}
	case reflect.Ptr:
		if !val.IsNil() {
			sanitizeValue(val.Elem())
		}
	case reflect.Struct:
		for i := 0; i < val.NumField(); i++ {
			if val.Type().Field(i).IsExported() {
				sanitizeValue(val.Field(i))
			}
		}
	}
}
