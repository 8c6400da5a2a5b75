package pagination

// Page is one fetched page of a remote collection. Count is the server's
// total at fetch time and Cursor the 1-based page number.
type Page[T any] struct {
	Data   []T `json:"data"`
	Count  int `json:"count"`
	Cursor int `json:"cursor"`
}

// Pages is an immutable snapshot of the pages accumulated for one
// sequence. Every method returns a new snapshot.
type Pages[T any] struct {
	list []Page[T]
}

func (p Pages[T]) Len() int {
	return len(p.list)
}

// Cursor is the highest page number fetched, 0 before the first fetch.
func (p Pages[T]) Cursor() int {
	if len(p.list) == 0 {
		return 0
	}
	return p.list[len(p.list)-1].Cursor
}

// Count is the total reported by the latest page.
func (p Pages[T]) Count() int {
	if len(p.list) == 0 {
		return 0
	}
	return p.list[len(p.list)-1].Count
}

func (p Pages[T]) Page(cursor int) (Page[T], bool) {
	for _, page := range p.list {
		if page.Cursor == cursor {
			return page, true
		}
	}
	return Page[T]{}, false
}

// Items flattens the pages in order.
func (p Pages[T]) Items() []T {
	var out []T
	for _, page := range p.list {
		out = append(out, page.Data...)
	}
	return out
}

// Unique flattens the pages, keeping the first occurrence of each key.
// Rows shift between offsets when the remote collection changes between
// two page fetches; this keeps them from showing twice.
func (p Pages[T]) Unique(key func(T) string) []T {
	seen := make(map[string]struct{})
	var out []T
	for _, page := range p.list {
		for _, item := range page.Data {
			k := key(item)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// Apply merges a fetched page: a page already present is replaced, the
// page following the cursor is appended, anything else is rejected.
func (p Pages[T]) Apply(page Page[T]) (Pages[T], bool) {
	list := make([]Page[T], 0, len(p.list)+1)
	replaced := false
	for _, existing := range p.list {
		if existing.Cursor == page.Cursor {
			list = append(list, page)
			replaced = true
			continue
		}
		list = append(list, existing)
	}
	if replaced {
		// a refetched page carries the newest count
		last := &list[len(list)-1]
		last.Count = page.Count
		return Pages[T]{list: list}, true
	}
	if page.Cursor != p.Cursor()+1 {
		return p, false
	}
	return Pages[T]{list: append(list, page)}, true
}

// Map rewrites every item.
func (p Pages[T]) Map(fn func(T) T) Pages[T] {
	list := make([]Page[T], len(p.list))
	for i, page := range p.list {
		data := make([]T, len(page.Data))
		for j, item := range page.Data {
			data[j] = fn(item)
		}
		list[i] = Page[T]{Data: data, Count: page.Count, Cursor: page.Cursor}
	}
	return Pages[T]{list: list}
}

// Filter drops the items keep rejects. Counts are left untouched so the
// terminal page computation keeps following the server's offsets.
func (p Pages[T]) Filter(keep func(T) bool) Pages[T] {
	list := make([]Page[T], len(p.list))
	for i, page := range p.list {
		data := make([]T, 0, len(page.Data))
		for _, item := range page.Data {
			if keep(item) {
				data = append(data, item)
			}
		}
		list[i] = Page[T]{Data: data, Count: page.Count, Cursor: page.Cursor}
	}
	return Pages[T]{list: list}
}

// Locate finds the first item matching pred.
func (p Pages[T]) Locate(pred func(T) bool) (Position, T, bool) {
	var zero T
	for i, page := range p.list {
		for j, item := range page.Data {
			if pred(item) {
				return Position{Page: i, Index: j}, item, true
			}
		}
	}
	return Position{}, zero, false
}

// Position addresses an item inside a snapshot.
type Position struct {
	Page  int
	Index int
}

// InsertAt puts item back at pos, clamping to the bounds of the snapshot.
func (p Pages[T]) InsertAt(pos Position, item T) Pages[T] {
	if len(p.list) == 0 {
		return p
	}
	if pos.Page >= len(p.list) {
		pos.Page = len(p.list) - 1
	}
	list := p.clone()
	data := list[pos.Page].Data
	idx := pos.Index
	if idx > len(data) {
		idx = len(data)
	}
	out := make([]T, 0, len(data)+1)
	out = append(out, data[:idx]...)
	out = append(out, item)
	out = append(out, data[idx:]...)
	list[pos.Page].Data = out
	return Pages[T]{list: list}
}

// Prepend adds a newly created item at the top of the first page and bumps
// every page's count.
func (p Pages[T]) Prepend(item T) Pages[T] {
	if len(p.list) == 0 {
		return Pages[T]{list: []Page[T]{{Data: []T{item}, Count: 1, Cursor: 1}}}
	}
	list := p.clone()
	list[0].Data = append([]T{item}, list[0].Data...)
	for i := range list {
		list[i].Count++
	}
	return Pages[T]{list: list}
}

// Append adds a newly created item at the end of the last page and bumps
// every page's count.
func (p Pages[T]) Append(item T) Pages[T] {
	if len(p.list) == 0 {
		return Pages[T]{list: []Page[T]{{Data: []T{item}, Count: 1, Cursor: 1}}}
	}
	list := p.clone()
	last := len(list) - 1
	list[last].Data = append(append([]T(nil), list[last].Data...), item)
	for i := range list {
		list[i].Count++
	}
	return Pages[T]{list: list}
}

func (p Pages[T]) clone() []Page[T] {
	list := make([]Page[T], len(p.list))
	for i, page := range p.list {
		list[i] = Page[T]{Data: append([]T(nil), page.Data...), Count: page.Count, Cursor: page.Cursor}
	}
	return list
}

// Of builds a snapshot from pages already in sequence order.
func Of[T any](pages ...Page[T]) Pages[T] {
	return Pages[T]{list: append([]Page[T](nil), pages...)}
}
