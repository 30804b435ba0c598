package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"trustcompute/internal/model"
	"trustcompute/pkg/interfaces"
)

// Filter equality filter over the top-level JSON attributes of stored values.
// Every entry must match (AND). A list attribute matches a scalar filter value it contains.
type Filter map[string]interface{}

// Matches reports whether a stored JSON value satisfies the filter.
// A scalar filter value also matches a stored list attribute that contains it,
// so applicationTypeId "app2" selects workers registered for ["app1","app2"].
func (f Filter) Matches(value string) (bool, error) {
	if len(f) == 0 {
		return true, nil
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal([]byte(value), &attrs); err != nil {
		return false, fmt.Errorf("stored value is not a JSON object: %w", err)
	}
	for key, want := range f {
		got, ok := attrs[key]
		if !ok {
			return false, nil
		}
		normalized, err := normalize(want)
		if err != nil {
			return false, err
		}
		if !attributeMatches(got, normalized) {
			return false, nil
		}
	}
	return true, nil
}

// normalize round-trips a filter value through JSON so it compares with decoded attributes
func normalize(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("invalid filter value %v: %w", v, err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func attributeMatches(got, want interface{}) bool {
	if reflect.DeepEqual(got, want) {
		return true
	}
	list, isList := got.([]interface{})
	if !isList {
		return false
	}
	if _, wantList := want.([]interface{}); wantList {
		return false
	}
	for _, item := range list {
		if reflect.DeepEqual(item, want) {
			return true
		}
	}
	return false
}

// Paginator cursor-based lookup over one KV table
type Paginator struct {
	kv       interfaces.KeyValueStore
	table    string
	pageSize int
}

// New creates a paginator; pageSize below 1 is treated as 1
func New(kv interfaces.KeyValueStore, table string, pageSize int) *Paginator {
	if pageSize < 1 {
		pageSize = 1
	}
	return &Paginator{kv: kv, table: table, pageSize: pageSize}
}

// PageSize returns the configured page size
func (p *Paginator) PageSize() int {
	return p.pageSize
}

// LookUp returns the first page of matching ids
func (p *Paginator) LookUp(ctx context.Context, filter Filter) (*model.LookupResult, error) {
	keys, err := p.kv.Lookup(ctx, p.table)
	if err != nil {
		return nil, err
	}
	return p.collect(ctx, filter, keys)
}

// LookUpNext returns the page starting at lookupTag.
// The tag is the first unreturned match of the previous page; an unknown tag yields an empty page.
func (p *Paginator) LookUpNext(ctx context.Context, filter Filter, lookupTag string) (*model.LookupResult, error) {
	keys, err := p.kv.Lookup(ctx, p.table)
	if err != nil {
		return nil, err
	}
	for i, key := range keys {
		if key == lookupTag {
			return p.collect(ctx, filter, keys[i:])
		}
	}
	return emptyResult(), nil
}

// collect gathers up to pageSize matches. When another match follows a full page,
// its id becomes the lookup tag; otherwise the tag is the 0 sentinel.
func (p *Paginator) collect(ctx context.Context, filter Filter, keys []string) (*model.LookupResult, error) {
	result := emptyResult()
	for _, key := range keys {
		value, found, err := p.kv.Get(ctx, p.table, key)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		matched, err := filter.Matches(value)
		if err != nil {
			return nil, fmt.Errorf("failed to filter %s/%s: %w", p.table, key, err)
		}
		if !matched {
			continue
		}
		if len(result.IDs) == p.pageSize {
			result.LookupTag = model.LookupTag(key)
			break
		}
		result.IDs = append(result.IDs, key)
	}
	result.TotalCount = len(result.IDs)
	return result, nil
}

func emptyResult() *model.LookupResult {
	return &model.LookupResult{IDs: make([]string, 0)}
}
