package vkng

// arena hands out small integer ids for vkngwrapper objects. Zero is never issued.
type arena[ID ~uint64, T any] struct {
	next  ID
	items map[ID]T
}

func (a *arena[ID, T]) put(item T) ID {
	if a.items == nil {
		a.items = map[ID]T{}
	}
	a.next++
	a.items[a.next] = item
	return a.next
}

func (a *arena[ID, T]) get(id ID) (T, bool) {
	item, ok := a.items[id]
	return item, ok
}

// take removes id and returns the object it referred to.
func (a *arena[ID, T]) take(id ID) (T, bool) {
	item, ok := a.items[id]
	if ok {
		delete(a.items, id)
	}
	return item, ok
}

func (a *arena[ID, T]) len() int {
	return len(a.items)
}
