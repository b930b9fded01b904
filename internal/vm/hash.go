package vm

import "hash/crc32"

// maxHashDepth bounds how far hashing descends into nested collections. A
// vector may contain itself.
const maxHashDepth = 4

// hashValue returns a hash consistent with valuesEqual: equal values hash
// alike.
func (vm *VM) hashValue(v Value) uint32 {
	switch v.Kind {
	case 0, KindNil:
		return 0
	case KindInt:
		return hashInt(v.Int())
	case KindSString:
		s, _ := vm.stringOf(v)
		return hashString(s)
	case KindList:
		l, _ := vm.listOf(v)
		return vm.hashElems(l)
	case KindObj:
		if o := vm.objects.Lookup(v.Obj()); o != nil {
			return o.Meta.Hash(vm, o)
		}
		return hashIdentity(v.Obj())
	}
	return mix32(uint32(v.Kind)*0x9e3779b1 ^ v.V)
}

// hashElems hashes a collection by content. Past maxHashDepth only the
// length counts.
func (vm *VM) hashElems(elems []Value) uint32 {
	h := uint32(len(elems)) + 0x5bd1e995 //nolint:gosec // length wraps harmlessly
	if vm.hashDepth >= maxHashDepth {
		return mix32(h)
	}
	vm.hashDepth++
	defer func() { vm.hashDepth-- }()
	for _, e := range elems {
		h = h*31 + vm.hashValue(e)
	}
	return mix32(h)
}

func hashInt(i int32) uint32 { return mix32(uint32(i)) } //nolint:gosec // bit pattern

func hashString(s string) uint32 { return crc32.ChecksumIEEE([]byte(s)) }

func hashIdentity(id ObjID) uint32 { return mix32(uint32(id) ^ 0x85ebca6b) }

// mix32 is the murmur3 finalizer.
func mix32(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
