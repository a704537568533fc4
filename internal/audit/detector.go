// Package audit detects field-level changes on entity snapshots and
// appends the resulting history rows inside the caller's transaction.
package audit

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/bidyaasp/project-management/pkg/optional"
)

// Proposal pairs the stored value of a field with the value a caller asked for.
type Proposal struct {
	Field string
	Old   interface{}
	New   interface{}
}

// Value builds a proposal for a non-nullable field. It returns nil when the
// caller omitted the field.
func Value[T any](field string, current T, proposed optional.Field[T]) *Proposal {
	if !proposed.Set {
		return nil
	}
	var next interface{}
	if !proposed.Null {
		next = proposed.Value
	}
	return &Proposal{Field: field, Old: current, New: next}
}

// Pointer builds a proposal for a nullable field.
func Pointer[T any](field string, current *T, proposed optional.Field[T]) *Proposal {
	if !proposed.Set {
		return nil
	}
	p := &Proposal{Field: field, Old: current}
	if !proposed.Null {
		p.New = proposed.Value
	}
	return p
}

// FieldChange is one detected difference, rendered canonically. A nil side
// means the value is null.
type FieldChange struct {
	Field string
	Old   *string
	New   *string
}

// Changes keeps detection order so history rows come out deterministic.
type Changes []FieldChange

func (c Changes) Empty() bool { return len(c) == 0 }

func (c Changes) Has(field string) bool {
	_, ok := c.Get(field)
	return ok
}

func (c Changes) Get(field string) (FieldChange, bool) {
	for _, fc := range c {
		if fc.Field == field {
			return fc, true
		}
	}
	return FieldChange{}, false
}

func (c Changes) Fields() []string {
	out := make([]string, 0, len(c))
	for _, fc := range c {
		out = append(out, fc.Field)
	}
	return out
}

// Map renders the changes as field -> [old, new] for the JSON changes column.
func (c Changes) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(c))
	for _, fc := range c {
		out[fc.Field] = []interface{}{deref(fc.Old), deref(fc.New)}
	}
	return out
}

func deref(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// Detect returns the proposals whose canonical value differs from the
// stored one. Nil proposals are skipped.
func Detect(proposals ...*Proposal) Changes {
	var changes Changes
	for _, p := range proposals {
		if p == nil {
			continue
		}
		oldStr, oldNull := Canonical(p.Old)
		newStr, newNull := Canonical(p.New)
		if oldNull == newNull && oldStr == newStr {
			continue
		}
		fc := FieldChange{Field: p.Field}
		if !oldNull {
			fc.Old = &oldStr
		}
		if !newNull {
			fc.New = &newStr
		}
		changes = append(changes, fc)
	}
	return changes
}

// Canonical renders v to the string used for comparison and storage.
// Pointers are followed, times are UTC RFC3339, floats use the shortest
// exact form. isNull is true for nil and nil pointers.
func Canonical(v interface{}) (s string, isNull bool) {
	if v == nil {
		return "", true
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "", true
		}
		rv = rv.Elem()
	}

	if t, ok := rv.Interface().(time.Time); ok {
		return t.UTC().Format(time.RFC3339), false
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String(), false
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), false
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), false
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), false
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), false
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), false
	default:
		return fmt.Sprint(rv.Interface()), false
	}
}

// CanonicalPtr is Canonical with the null case mapped to nil.
func CanonicalPtr(v interface{}) *string {
	s, isNull := Canonical(v)
	if isNull {
		return nil
	}
	return &s
}

// DiffMembers computes the set difference both ways. Duplicates are ignored
// and both results are sorted ascending.
func DiffMembers(oldIDs, newIDs []uint) (added, removed []uint) {
	oldSet := toSet(oldIDs)
	newSet := toSet(newIDs)

	for id := range newSet {
		if _, ok := oldSet[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range oldSet {
		if _, ok := newSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	sortIDs(added)
	sortIDs(removed)
	return added, removed
}

func toSet(ids []uint) map[uint]struct{} {
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortIDs(ids []uint) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
