package vm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Trans selects how containment is followed.
type Trans int32

const (
	TransTransitive Trans = 0 // any depth
	TransDirect     Trans = 1 // immediate container only
	TransIndirect   Trans = 2 // any depth except the immediate container
)

func (vm *VM) popTrans() (Trans, bool) {
	n, ok := vm.popInt()
	if !ok {
		return 0, false
	}
	t := Trans(n)
	if t < TransTransitive || t > TransIndirect {
		vm.throw(ExcBadValue, "transitivity %d", n)
		return 0, false
	}
	return t, true
}

// locationOf returns the immediate container of o.
func (vm *VM) locationOf(id ObjID) ObjID {
	o := vm.objects.Lookup(id)
	if o == nil {
		return InvalidObj
	}
	v, _ := vm.propValue(o, PropLocation)
	if v.Kind != KindObj || vm.objects.Lookup(v.Obj()) == nil {
		return InvalidObj
	}
	return v.Obj()
}

// chain lists the containers of id from the innermost outwards.
func (vm *VM) chain(id ObjID) []ObjID {
	var out []ObjID
	seen := map[ObjID]bool{id: true}
	for loc := vm.locationOf(id); loc != InvalidObj && !seen[loc]; loc = vm.locationOf(loc) {
		seen[loc] = true
		out = append(out, loc)
	}
	return out
}

// inside reports whether id is contained in target under trans.
func (vm *VM) inside(id, target ObjID, trans Trans) bool {
	c := vm.chain(id)
	switch trans {
	case TransDirect:
		return len(c) > 0 && c[0] == target
	case TransIndirect:
		if len(c) > 0 {
			c = c[1:]
		}
	}
	for _, loc := range c {
		if loc == target {
			return true
		}
	}
	return false
}

// where returns the container of id under trans: the immediate one, the
// container of that, or the outermost.
func (vm *VM) where(id ObjID, trans Trans) ObjID {
	c := vm.chain(id)
	switch {
	case len(c) == 0:
		return InvalidObj
	case trans == TransDirect:
		return c[0]
	case trans == TransIndirect:
		if len(c) < 2 {
			return InvalidObj
		}
		return c[1]
	}
	return c[len(c)-1]
}

// placeOf returns the innermost location-flagged container of id, or the
// outermost container when none is flagged. A location is its own place.
func (vm *VM) placeOf(id ObjID) ObjID {
	if vm.isLocation(id) {
		return id
	}
	c := vm.chain(id)
	for _, loc := range c {
		if vm.isLocation(loc) {
			return loc
		}
	}
	if len(c) == 0 {
		return InvalidObj
	}
	return c[len(c)-1]
}

func (vm *VM) isLocation(id ObjID) bool {
	o := vm.objects.Lookup(id)
	if o == nil {
		return false
	}
	v, _ := vm.propValue(o, PropIsLocation)
	return v.Truthy()
}

// contents lists what c holds, in id order, descending depth first for the
// transitive forms.
func (vm *VM) contents(c ObjID, trans Trans) []ObjID {
	direct := vm.directContents(c)
	if trans == TransDirect {
		return direct
	}
	var out []ObjID
	seen := map[ObjID]bool{c: true}
	var walk func(ids []ObjID, depth int)
	walk = func(ids []ObjID, depth int) {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			if trans == TransTransitive || depth > 0 {
				out = append(out, id)
			}
			walk(vm.directContents(id), depth+1)
		}
	}
	walk(direct, 0)
	return out
}

func (vm *VM) directContents(c ObjID) []ObjID {
	var out []ObjID
	vm.objects.each(func(o *Object) {
		if _, ok := o.Meta.(propStore); !ok || o.id == c {
			return
		}
		if vm.locationOf(o.id) == c {
			out = append(out, o.id)
		}
	})
	return out
}

// adjacent reports whether loc is reachable in one step from here.
func (vm *VM) adjacent(here, loc ObjID) bool {
	o := vm.objects.Lookup(here)
	if o == nil {
		return false
	}
	exits, _ := vm.propValue(o, PropExits)
	members, ok := vm.listOf(exits)
	if !ok {
		return false
	}
	for _, m := range members {
		if m.Kind == KindObj && m.Obj() == loc {
			return true
		}
	}
	return false
}

// placesOf returns the places id counts as being at under trans.
func (vm *VM) placesOf(id ObjID, trans Trans) []ObjID {
	switch trans {
	case TransDirect:
		if loc := vm.locationOf(id); loc != InvalidObj {
			return []ObjID{loc}
		}
		return nil
	case TransIndirect:
		c := vm.chain(id)
		if len(c) > 0 {
			return c[1:]
		}
		return nil
	}
	return vm.chain(id)
}

// locate moves what into where. Moving the actor into a location makes it
// the current location and counts a visit.
func (vm *VM) locate(what, where *Object) {
	if what.id == where.id || vm.inside(where.id, what.id, TransTransitive) {
		vm.throw(ExcBadValue, "cannot put obj#%d inside itself", what.id)
		return
	}
	vm.setPropValue(what, PropLocation, ObjValue(where.id))
	if vm.pending != nil {
		return
	}
	actor := vm.regs[RegActor]
	if actor.Kind == KindObj && actor.Obj() == what.id && vm.isLocation(where.id) {
		vm.SetRegister(RegLocation, ObjValue(where.id))
		visits, _ := vm.propValue(where, PropVisits)
		n := int32(0)
		if visits.Kind == KindInt {
			n = visits.Int()
		}
		vm.setPropValue(where, PropVisits, IntValue(n+1))
	}
}

func (vm *VM) opInstance(op Op) {
	switch op {
	case OpLocate:
		where := vm.object(vm.pop())
		if where == nil {
			return
		}
		what := vm.object(vm.pop())
		if what == nil {
			return
		}
		vm.locate(what, where)

	case OpWhere:
		trans, ok := vm.popTrans()
		if !ok {
			return
		}
		o := vm.object(vm.pop())
		if o == nil {
			return
		}
		vm.push(objOrNil(vm.where(o.id, trans)))

	case OpLocation:
		o := vm.object(vm.pop())
		if o == nil {
			return
		}
		vm.push(objOrNil(vm.placeOf(o.id)))

	case OpHere, OpNearby:
		trans, ok := vm.popTrans()
		if !ok {
			return
		}
		o := vm.object(vm.pop())
		if o == nil {
			return
		}
		vm.push(BoolValue(vm.relativeTo(o.id, vm.currentPlace(), op == OpNearby, trans)))

	case OpNear, OpAt:
		trans, ok := vm.popTrans()
		if !ok {
			return
		}
		other := vm.object(vm.pop())
		if other == nil {
			return
		}
		o := vm.object(vm.pop())
		if o == nil {
			return
		}
		vm.push(BoolValue(vm.relativeTo(o.id, vm.placeOf(other.id), op == OpNear, trans)))

	case OpIn:
		trans, ok := vm.popTrans()
		if !ok {
			return
		}
		cont := vm.object(vm.pop())
		if cont == nil {
			return
		}
		o := vm.object(vm.pop())
		if o == nil {
			return
		}
		vm.push(BoolValue(vm.inside(o.id, cont.id, trans)))

	case OpIsa:
		class := vm.pop()
		o := vm.object(vm.pop())
		if o == nil {
			return
		}
		vm.push(BoolValue(class.Kind == KindObj && vm.inheritsFrom(o, class.Obj())))
	}
}

// relativeTo reports whether id is at place, or with nearby set, at a place
// adjacent to it.
func (vm *VM) relativeTo(id, place ObjID, nearby bool, trans Trans) bool {
	if place == InvalidObj {
		return false
	}
	for _, p := range vm.placesOf(id, trans) {
		if !nearby && p == place {
			return true
		}
		if nearby && vm.adjacent(place, p) {
			return true
		}
	}
	return false
}

func (vm *VM) currentPlace() ObjID {
	here := vm.regs[RegLocation]
	if here.Kind != KindObj {
		return InvalidObj
	}
	return here.Obj()
}

func objOrNil(id ObjID) Value {
	if id == InvalidObj {
		return NilValue
	}
	return ObjValue(id)
}

// popAttr pops an attribute reference, given as a property or an integer.
func (vm *VM) popAttr() (PropID, bool) {
	v := vm.pop()
	switch {
	case v.Kind == KindProp:
		return v.Prop(), true
	case v.Kind == KindInt && v.Int() > 0 && v.Int() <= 0xffff:
		return PropID(v.Int()), true //nolint:gosec // range checked
	}
	vm.throw(ExcBadType, "attribute required, got %v", v)
	return 0, false
}

func (vm *VM) opAttribute(op Op) {
	var v Value
	switch op {
	case OpMake, OpSet, OpSetStr, OpSetSet:
		v = vm.pop()
	}
	attr, ok := vm.popAttr()
	if !ok {
		return
	}
	o := vm.object(vm.pop())
	if o == nil {
		return
	}

	switch op {
	case OpAttribute, OpStrAttr, OpAttrSet:
		cur, found := vm.propValue(o, attr)
		if !found {
			vm.throw(ExcNoAttribute, "obj#%d has no attribute %d", o.id, attr)
			return
		}
		switch op {
		case OpStrAttr:
			s, ok := vm.stringOf(cur)
			if !ok {
				vm.throw(ExcStringRequired, "attribute %d of obj#%d is %v", attr, o.id, cur.Kind)
				return
			}
			vm.push(vm.newString(s))
		case OpAttrSet:
			s := vm.setOf(cur)
			if s == nil {
				return
			}
			vm.push(vm.newSet(s.members...))
		default:
			vm.push(cur)
		}

	case OpMake:
		vm.setPropValue(o, attr, BoolValue(v.Truthy()))
	case OpSet:
		vm.setPropValue(o, attr, v)
	case OpSetStr:
		s, ok := vm.stringOf(v)
		if !ok {
			vm.throw(ExcStringRequired, "SETSTR: string required, got %v", v.Kind)
			return
		}
		vm.setPropValue(o, attr, vm.newString(s))
	case OpSetSet:
		s := vm.setOf(v)
		if s == nil {
			return
		}
		vm.setPropValue(o, attr, vm.newSet(s.members...))
	}
}

// objectName returns the printable name of o.
func (vm *VM) objectName(o *Object) (string, bool) {
	if _, ok := o.Meta.(propStore); !ok {
		return "", false
	}
	v, found := vm.propValue(o, PropName)
	if !found {
		return "", false
	}
	return vm.stringOf(v)
}

// Forms of SAY.
const (
	SaySimple     = 0
	SayIndefinite = 1
	SayDefinite   = 2
	SayNegative   = 3
	SayPronoun    = 4
)

// sayForm renders v the way SAY prints it.
func (vm *VM) sayForm(v Value, form int32) string {
	o := vm.objects.Lookup(v.Obj())
	if v.Kind != KindObj || o == nil {
		return vm.displayString(v)
	}
	name := vm.displayString(v)
	switch form {
	case SayIndefinite:
		return vm.article(o, name) + " " + name
	case SayDefinite:
		return "the " + name
	case SayNegative:
		return "no " + name
	case SayPronoun:
		if p, found := vm.propValue(o, PropPronoun); found {
			if s, ok := vm.stringOf(p); ok {
				return s
			}
		}
		return "it"
	}
	return name
}

// article returns the indefinite article of o, guessing from the name when
// the object does not declare one.
func (vm *VM) article(o *Object, name string) string {
	if v, found := vm.propValue(o, PropArticle); found {
		if s, ok := vm.stringOf(v); ok {
			return s
		}
	}
	r, _ := utf8.DecodeRuneInString(name)
	if strings.ContainsRune("aeiou", unicode.ToLower(r)) {
		return "an"
	}
	return "a"
}
