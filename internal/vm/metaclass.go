package vm

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrMetaclassTooOld reports that the registry cannot satisfy an image
// dependency at the version it asks for.
var ErrMetaclassTooOld = errors.New("metaclass too old")

// ErrUnknownDependency reports an image dependency with no registered base name.
var ErrUnknownDependency = errors.New("unknown dependency")

// Descriptor identifies a metaclass or function set as basename/NNNNNN.
type Descriptor struct {
	Base    string
	Version int
}

// String renders the descriptor with its six-digit version.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s/%06d", d.Base, d.Version)
}

// ParseDescriptor splits "basename/NNNNNN". A missing version means 0.
func ParseDescriptor(name string) (Descriptor, error) {
	base, ver, found := strings.Cut(name, "/")
	if base == "" {
		return Descriptor{}, fmt.Errorf("descriptor %q: empty base name", name)
	}
	if !found {
		return Descriptor{Base: base}, nil
	}
	if len(ver) != 6 {
		return Descriptor{}, fmt.Errorf("descriptor %q: version must have six digits", name)
	}
	n, err := strconv.Atoi(ver)
	if err != nil || n < 0 {
		return Descriptor{}, fmt.Errorf("descriptor %q: bad version", name)
	}
	return Descriptor{Base: base, Version: n}, nil
}

// DependencyError names the descriptor an image requires and the one the
// registry has under that base name, if any.
type DependencyError struct {
	Kind      string // "metaclass" or "function set"
	Required  Descriptor
	Available *Descriptor
}

func (e *DependencyError) Error() string {
	if e.Available == nil {
		return fmt.Sprintf("%s %s required, none available", e.Kind, e.Required)
	}
	return fmt.Sprintf("%s %s required, %s available: %v", e.Kind, e.Required, *e.Available, ErrMetaclassTooOld)
}

func (e *DependencyError) Unwrap() error {
	if e.Available == nil {
		return ErrUnknownDependency
	}
	return ErrMetaclassTooOld
}

// Well-known property ids of the world model.
const (
	PropLocation    PropID = 1
	PropName        PropID = 2
	PropDescription PropID = 3
	PropPronoun     PropID = 4
	PropContainer   PropID = 5
	PropIsLocation  PropID = 6
	PropExits       PropID = 7
	PropArticle     PropID = 8
	PropScript      PropID = 9
	PropScriptStep  PropID = 10
	PropVisits      PropID = 11
)

// MethodBase is the first property id a metaclass may claim for its
// intrinsic methods.
const MethodBase PropID = 0x100

// Metaclass describes the behaviour of one kind of object. Implementations
// are stateless; per-object state lives in Object.Ext.
//
// Methods that take argc find their arguments on the operand stack, first
// argument on top, and must pop exactly argc values when they handle the call.
type Metaclass interface {
	Descriptor() Descriptor

	// Construct pops argc arguments and returns the new object, or
	// InvalidObj after throwing.
	Construct(vm *VM, argc int) ObjID
	// LoadImage builds the extension from image bytes. It runs again on restart.
	LoadImage(vm *VM, o *Object, data []byte) error
	Save(vm *VM, o *Object) ([]byte, error)
	Restore(vm *VM, o *Object, data []byte) error
	// Fixup rewrites object references after restore renumbered objects.
	Fixup(o *Object, fix func(Value) Value)
	NotifyDelete(vm *VM, o *Object)

	// GetProp evaluates prop. It reports false when the object does not
	// define it, leaving the arguments on the stack.
	GetProp(vm *VM, o *Object, prop PropID, argc int) (Value, bool)
	SetProp(vm *VM, o *Object, prop PropID, v Value)
	Superclasses(o *Object) []ObjID
	// CallStaticProp evaluates a property of the metaclass itself rather
	// than of an instance. It reports false when the metaclass has no such
	// property, leaving the arguments on the stack.
	CallStaticProp(vm *VM, prop PropID, argc int) (Value, bool)

	Equals(vm *VM, o *Object, other Value) bool
	// Hash must agree with Equals: objects equal to a value hash like it.
	Hash(vm *VM, o *Object) uint32
	Compare(vm *VM, o *Object, other Value) (int, bool)
	CastToString(vm *VM, o *Object) (string, bool)

	MarkRefs(o *Object, mark func(Value))
	RemoveStaleWeakRefs(o *Object, live func(ObjID) bool)
}

// BaseMetaclass supplies the default behaviour; concrete metaclasses embed it
// and override what they need.
type BaseMetaclass struct {
	Desc Descriptor
}

func (b BaseMetaclass) Descriptor() Descriptor { return b.Desc }

func (b BaseMetaclass) Construct(vm *VM, argc int) ObjID {
	vm.popN(argc)
	vm.throw(ExcBadType, "%s cannot be created with new", b.Desc)
	return InvalidObj
}

func (BaseMetaclass) LoadImage(*VM, *Object, []byte) error { return nil }

func (BaseMetaclass) Save(*VM, *Object) ([]byte, error) { return nil, nil }

func (BaseMetaclass) Restore(*VM, *Object, []byte) error { return nil }

func (BaseMetaclass) Fixup(*Object, func(Value) Value) {}

func (BaseMetaclass) NotifyDelete(*VM, *Object) {}

func (BaseMetaclass) GetProp(*VM, *Object, PropID, int) (Value, bool) { return Value{}, false }

func (b BaseMetaclass) SetProp(vm *VM, _ *Object, prop PropID, _ Value) {
	vm.throw(ExcInvalidPropSet, "cannot set property %d on %s", prop, b.Desc.Base)
}

func (BaseMetaclass) Superclasses(*Object) []ObjID { return nil }

func (BaseMetaclass) Equals(_ *VM, o *Object, other Value) bool {
	return other.Kind == KindObj && other.Obj() == o.id
}

func (BaseMetaclass) Hash(_ *VM, o *Object) uint32 { return hashIdentity(o.id) }

func (BaseMetaclass) CallStaticProp(*VM, PropID, int) (Value, bool) { return Value{}, false }

func (BaseMetaclass) Compare(*VM, *Object, Value) (int, bool) { return 0, false }

func (BaseMetaclass) CastToString(*VM, *Object) (string, bool) { return "", false }

func (BaseMetaclass) MarkRefs(*Object, func(Value)) {}

func (BaseMetaclass) RemoveStaleWeakRefs(*Object, func(ObjID) bool) {}

// Registry is the ordered list of metaclasses and function sets a VM can bind
// image dependencies to. It is immutable once handed to a VM.
type Registry struct {
	metas []Metaclass
	sets  []*FuncSet
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register appends a metaclass. Later registrations of the same base name
// are preferred when their version is higher.
func (r *Registry) Register(m Metaclass) *Registry {
	r.metas = append(r.metas, m)
	return r
}

// RegisterFuncSet appends a function set.
func (r *Registry) RegisterFuncSet(fs *FuncSet) *Registry {
	r.sets = append(r.sets, fs)
	return r
}

// Metaclasses returns the registered metaclass descriptors in order.
func (r *Registry) Metaclasses() []Descriptor {
	out := make([]Descriptor, len(r.metas))
	for i, m := range r.metas {
		out[i] = m.Descriptor()
	}
	return out
}

// FuncSets returns the registered function-set descriptors in order.
func (r *Registry) FuncSets() []Descriptor {
	out := make([]Descriptor, len(r.sets))
	for i, fs := range r.sets {
		out[i] = fs.Desc
	}
	return out
}

// ResolveMetaclass binds a dependency name to the best registered metaclass:
// same base name, highest version, and at least the version required.
func (r *Registry) ResolveMetaclass(dep string) (Metaclass, error) {
	want, err := ParseDescriptor(dep)
	if err != nil {
		return nil, err
	}
	descs := make([]Descriptor, len(r.metas))
	for i, m := range r.metas {
		descs[i] = m.Descriptor()
	}
	idx, err := resolve("metaclass", want, descs)
	if err != nil {
		return nil, err
	}
	return r.metas[idx], nil
}

// ResolveFuncSet binds a function-set dependency the same way.
func (r *Registry) ResolveFuncSet(dep string) (*FuncSet, error) {
	want, err := ParseDescriptor(dep)
	if err != nil {
		return nil, err
	}
	descs := make([]Descriptor, len(r.sets))
	for i, fs := range r.sets {
		descs[i] = fs.Desc
	}
	idx, err := resolve("function set", want, descs)
	if err != nil {
		return nil, err
	}
	return r.sets[idx], nil
}

func resolve(kind string, want Descriptor, have []Descriptor) (int, error) {
	best := -1
	for i, d := range have {
		if d.Base != want.Base {
			continue
		}
		if best < 0 || d.Version > have[best].Version {
			best = i
		}
	}
	if best < 0 {
		return -1, &DependencyError{Kind: kind, Required: want}
	}
	if have[best].Version < want.Version {
		avail := have[best]
		return -1, &DependencyError{Kind: kind, Required: want, Available: &avail}
	}
	return best, nil
}

// DefaultRegistry returns a registry holding every built-in metaclass and
// function set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, m := range builtinMetaclasses() {
		r.Register(m)
	}
	for _, fs := range builtinFuncSets() {
		r.RegisterFuncSet(fs)
	}
	return r
}

func builtinMetaclasses() []Metaclass {
	return []Metaclass{
		TadsObjectMeta,
		StringMeta,
		ListMeta,
		VectorMeta,
		ByteArrayMeta,
		BigNumberMeta,
		FileMeta,
		FileNameMeta,
		SetMeta,
		WeakRefMeta,
	}
}

// metaIndex returns the image-local index of m, or -1.
func (vm *VM) metaIndex(base string) int {
	return slices.IndexFunc(vm.metas, func(m Metaclass) bool {
		return m.Descriptor().Base == base
	})
}

// metaByBase returns the bound metaclass with the given base name. Built-ins
// the image did not declare are still reachable through the registry.
func (vm *VM) metaByBase(base string) Metaclass {
	if i := vm.metaIndex(base); i >= 0 {
		return vm.metas[i]
	}
	for _, m := range vm.registry.metas {
		if m.Descriptor().Base == base {
			return m
		}
	}
	return nil
}
