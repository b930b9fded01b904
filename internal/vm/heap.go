package vm

import "fmt"

const (
	objPageBits = 8
	objPageSize = 1 << objPageBits
	objPageMask = objPageSize - 1
)

type objPage [objPageSize]Object

// ObjectTable owns object identities. Entries live in fixed pages so an
// *Object stays valid until its slot is swept.
type ObjectTable struct {
	pages []*objPage
	free  []ObjID // swept ids, reused last-in first-out
	next  ObjID   // lowest id never handed out
	live  int
	seq   uint64

	maxObjects    int // 0 means unlimited
	allocsSinceGC int
}

func newObjectTable(maxObjects int) *ObjectTable {
	return &ObjectTable{next: 1, maxObjects: maxObjects}
}

func (t *ObjectTable) slot(id ObjID) *Object {
	page := int(id >> objPageBits)
	for page >= len(t.pages) {
		t.pages = append(t.pages, new(objPage))
	}
	return &t.pages[page][id&objPageMask]
}

// Lookup returns the entry for id, or nil when the slot is free.
func (t *ObjectTable) Lookup(id ObjID) *Object {
	page := int(id >> objPageBits)
	if id == InvalidObj || page >= len(t.pages) {
		return nil
	}
	o := &t.pages[page][id&objPageMask]
	if !o.Live() {
		return nil
	}
	return o
}

// Live returns the number of allocated objects.
func (t *ObjectTable) Live() int { return t.live }

// full reports whether another allocation would exceed the limit.
func (t *ObjectTable) full() bool {
	return t.maxObjects > 0 && t.live >= t.maxObjects
}

func (t *ObjectTable) take() ObjID {
	if n := len(t.free); n > 0 {
		id := t.free[n-1]
		t.free = t.free[:n-1]
		return id
	}
	id := t.next
	t.next++
	return id
}

func (t *ObjectTable) install(id ObjID, meta Metaclass, f objFlags) *Object {
	o := t.slot(id)
	t.seq++
	*o = Object{id: id, Meta: meta, flags: f, color: white, seq: t.seq}
	t.live++
	t.allocsSinceGC++
	return o
}

// reserve installs an object at a fixed id (image load and restore). Ids
// skipped over by the counter go to the free list.
func (t *ObjectTable) reserve(id ObjID, meta Metaclass, f objFlags) (*Object, error) {
	if id == InvalidObj {
		return nil, fmt.Errorf("object id 0 is reserved")
	}
	if t.Lookup(id) != nil {
		return nil, fmt.Errorf("object id %d already in use", id)
	}
	if id >= t.next {
		for skipped := t.next; skipped < id; skipped++ {
			t.free = append(t.free, skipped)
		}
		t.next = id + 1
	} else {
		for i, fid := range t.free {
			if fid == id {
				t.free = append(t.free[:i], t.free[i+1:]...)
				break
			}
		}
	}
	return t.install(id, meta, f), nil
}

// release frees the slot and returns its id to the free list.
func (t *ObjectTable) release(o *Object) {
	id := o.id
	*o = Object{}
	t.live--
	t.free = append(t.free, id)
}

// each calls fn for every live object in id order.
func (t *ObjectTable) each(fn func(o *Object)) {
	for _, page := range t.pages {
		for i := range page {
			o := &page[i]
			if o.Live() {
				fn(o)
			}
		}
	}
}

// NewID allocates an object of meta. When the table is full it collects once;
// if that frees nothing it throws ExcOutOfMemory and returns InvalidObj.
// Objects allocated while an opcode runs stay rooted until it completes, as
// do the operands it popped (see root).
func (vm *VM) NewID(meta Metaclass, opts IDOptions) ObjID {
	if vm.objects.full() {
		vm.GC()
		if vm.objects.full() {
			vm.throw(ExcOutOfMemory, "object table limit %d reached", vm.objects.maxObjects)
			return InvalidObj
		}
	}
	o := vm.objects.install(vm.objects.take(), meta, opts.flags())
	if vm.opDepth > 0 {
		vm.scratch = append(vm.scratch, ObjValue(o.id))
	}
	return o.id
}

// newObject allocates an object and sets its extension.
func (vm *VM) newObject(meta Metaclass, ext any) (ObjID, bool) {
	id := vm.NewID(meta, IDOptions{})
	if id == InvalidObj {
		return InvalidObj, false
	}
	vm.objects.Lookup(id).Ext = ext
	return id, true
}

// Lookup returns the object for id, or nil when it is not live.
func (vm *VM) Lookup(id ObjID) *Object { return vm.objects.Lookup(id) }

// Objects exposes the object table.
func (vm *VM) Objects() *ObjectTable { return vm.objects }

// object resolves v to a live object, throwing ExcBadObject otherwise.
func (vm *VM) object(v Value) *Object {
	if v.Kind != KindObj {
		vm.throw(ExcBadObject, "%v is not an object", v)
		return nil
	}
	o := vm.objects.Lookup(v.Obj())
	if o == nil {
		vm.throw(ExcBadObject, "object %d does not exist", v.Obj())
	}
	return o
}

// objectOf returns the object v refers to with the given metaclass base name.
func (vm *VM) objectOf(v Value, base string) *Object {
	if v.Kind != KindObj {
		return nil
	}
	o := vm.objects.Lookup(v.Obj())
	if o == nil || o.Meta.Descriptor().Base != base {
		return nil
	}
	return o
}
