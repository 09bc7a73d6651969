package docstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// MemoryRepository keeps BSON encoded documents in process memory. Records go
// through the same encoding as MongoDB, so callers never share memory with the
// store and round trips behave like the real thing.
type MemoryRepository[T any, PT RecordPtr[T]] struct {
	mu    sync.RWMutex
	docs  map[string]bson.Raw
	order []string
}

func NewMemoryRepository[T any, PT RecordPtr[T]]() *MemoryRepository[T, PT] {
	return &MemoryRepository[T, PT]{docs: make(map[string]bson.Raw)}
}

func (r *MemoryRepository[T, PT]) Save(ctx context.Context, record PT) (PT, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	insert := record.GetID() == ""
	if insert {
		record.SetID(uuid.New().String())
	} else if _, ok := r.docs[record.GetID()]; !ok {
		return nil, ErrNotFound
	}

	raw, err := bson.Marshal(record)
	if err != nil {
		if insert {
			record.SetID("")
		}
		return nil, fmt.Errorf("encode: %w", err)
	}

	if insert {
		r.order = append(r.order, record.GetID())
	}
	r.docs[record.GetID()] = raw
	return record, nil
}

func (r *MemoryRepository[T, PT]) FindByID(ctx context.Context, id string) (PT, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	raw, ok := r.docs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode[T, PT](raw)
}

func (r *MemoryRepository[T, PT]) FindByTenant(ctx context.Context, query TenantQuery) ([]PT, error) {
	if err := query.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	matched := make([]bson.Raw, 0)
	for _, id := range r.order {
		raw := r.docs[id]
		if lookupString(raw, "tenant", "orgId") != query.OrgID ||
			lookupString(raw, "tenant", "userId") != query.UserID {
			continue
		}
		if deleted, err := raw.LookupErr("audit", "deletedAt"); err == nil && deleted.Type != bson.TypeNull {
			continue
		}
		matched = append(matched, raw)
	}
	r.mu.RUnlock()

	path := strings.Split(query.sortKey(), ".")
	sort.SliceStable(matched, func(i, j int) bool {
		a, _ := matched[i].LookupErr(path...)
		b, _ := matched[j].LookupErr(path...)
		c := compareValues(a, b)
		if c == 0 {
			c = strings.Compare(lookupString(matched[i], "_id"), lookupString(matched[j], "_id"))
		}
		if query.Descending {
			return c > 0
		}
		return c < 0
	})

	records := make([]PT, 0, len(matched))
	for _, raw := range matched {
		rec, err := decode[T, PT](raw)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func decode[T any, PT RecordPtr[T]](raw bson.Raw) (PT, error) {
	var value T
	if err := bson.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return PT(&value), nil
}

func lookupString(raw bson.Raw, path ...string) string {
	v, err := raw.LookupErr(path...)
	if err != nil {
		return ""
	}
	s, _ := v.StringValueOK()
	return s
}

// compareValues orders missing and null values first, then numbers, strings
// and datetimes by value. Mixed types fall back to their raw bytes.
func compareValues(a, b bson.RawValue) int {
	aNull := a.Type == 0 || a.Type == bson.TypeNull
	bNull := b.Type == 0 || b.Type == bson.TypeNull
	switch {
	case aNull && bNull:
		return 0
	case aNull:
		return -1
	case bNull:
		return 1
	}

	if af, ok := numeric(a); ok {
		if bf, ok := numeric(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}

	if a.Type == b.Type {
		switch a.Type {
		case bson.TypeString:
			return strings.Compare(a.StringValue(), b.StringValue())
		case bson.TypeDateTime:
			ad, bd := a.DateTime(), b.DateTime()
			switch {
			case ad < bd:
				return -1
			case ad > bd:
				return 1
			}
			return 0
		}
	}
	return bytes.Compare(a.Value, b.Value)
}

func numeric(v bson.RawValue) (float64, bool) {
	switch v.Type {
	case bson.TypeDouble:
		return v.Double(), true
	case bson.TypeInt32:
		return float64(v.Int32()), true
	case bson.TypeInt64:
		return float64(v.Int64()), true
	}
	return 0, false
}
