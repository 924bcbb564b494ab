package telemetry

import (
	"fmt"
	"reflect"
)

// The extractors convert trace entries defined in the tracing package into
// this package's row shapes. They go through reflection because the tracing
// package imports this one, not the other way around.

func extractTaskRow(entry any) taskRow {
	v := mustStructValue(entry)

	return taskRow{
		ID:        stringField(v, "ID"),
		ParentID:  stringField(v, "ParentID"),
		Kind:      stringField(v, "Kind"),
		What:      stringField(v, "What"),
		Location:  stringField(v, "Location"),
		StartTime: floatField(v, "StartTime"),
		EndTime:   floatField(v, "EndTime"),
	}
}

func extractSessionRow(entry any) sessionRow {
	v := mustStructValue(entry)

	return sessionRow{
		TableName:    stringField(v, "TableName"),
		SessionStart: floatField(v, "SessionStart"),
		SessionEnd:   floatField(v, "SessionEnd"),
	}
}

func mustStructValue(entry any) reflect.Value {
	v := reflect.ValueOf(entry)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		panic(fmt.Sprintf("cannot extract fields from %T", entry))
	}

	return v
}

func stringField(v reflect.Value, name string) string {
	f := v.FieldByName(name)
	if !f.IsValid() {
		panic(fmt.Sprintf("entry has no field %s", name))
	}

	return f.String()
}

func floatField(v reflect.Value, name string) float64 {
	f := v.FieldByName(name)
	if !f.IsValid() {
		panic(fmt.Sprintf("entry has no field %s", name))
	}

	return f.Float()
}
