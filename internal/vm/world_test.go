package vm

import (
	"context"
	"errors"
	"testing"
)

// worldProgram builds a kitchen holding an apple and a box with a coin in
// it. Object 2 is the player.
func worldProgram(t *testing.T) *program {
	t.Helper()
	p := newProgram(t)
	p.object(1, map[PropID]Value{
		PropName:        SStringValue(p.str("Kitchen")),
		PropDescription: SStringValue(p.str("A small kitchen.\n")),
		PropIsLocation:  TrueValue,
	})
	p.object(2, map[PropID]Value{PropName: SStringValue(p.str("you"))})
	p.object(3, map[PropID]Value{PropName: SStringValue(p.str("apple")), PropLocation: ObjValue(1)})
	p.object(4, map[PropID]Value{PropName: SStringValue(p.str("box")), PropLocation: ObjValue(1)})
	p.object(5, map[PropID]Value{PropName: SStringValue(p.str("coin")), PropLocation: ObjValue(4)})
	return p
}

func TestLocateActorAndLook(t *testing.T) {
	p := worldProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(2, OpPushObj, 1, OpPushObj, OpLocate, OpLook, OpReturn)
	vm, host := p.load(entry, Options{})
	vm.SetRegister(RegActor, ObjValue(2))

	mustCall(t, vm, entry)
	if loc := vm.Register(RegLocation); loc.Kind != KindObj || loc.Obj() != 1 {
		t.Fatalf("expected location obj#1, got %v", loc)
	}
	visits, _ := vm.propValue(vm.Lookup(1), PropVisits)
	if visits.Int() != 1 {
		t.Fatalf("expected 1 visit, got %v", visits)
	}
	want := "Kitchen\nA small kitchen.\nYou see an apple and a box.\n"
	if out := host.Out.String(); out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestWhereAndIn(t *testing.T) {
	p := worldProgram(t)
	where := p.fn("where", 1, 0)
	p.emit(5, OpPushObj, 1, 0, OpGetLocal, OpWhere, OpRetVal)
	in := p.fn("in", 1, 0)
	p.emit(5, OpPushObj, 1, OpPushObj, 1, 0, OpGetLocal, OpIn, OpRetVal)
	vm, _ := p.load(where, Options{})

	for trans, want := range map[Trans]ObjID{TransTransitive: 1, TransDirect: 4, TransIndirect: 1} {
		got := mustCall(t, vm, where, IntValue(int32(trans)))
		if got.Kind != KindObj || got.Obj() != want {
			t.Fatalf("WHERE trans %d: expected obj#%d, got %v", trans, want, got)
		}
	}
	for trans, want := range map[Trans]bool{TransTransitive: true, TransDirect: false, TransIndirect: true} {
		if got := mustCall(t, vm, in, IntValue(int32(trans))).Truthy(); got != want {
			t.Fatalf("IN trans %d: expected %v, got %v", trans, want, got)
		}
	}

	err := vm.Call(context.Background(), where, IntValue(3))
	var exc *Exception
	if !errors.As(err, &exc) || exc.Kind != ExcBadValue {
		t.Fatalf("expected bad transitivity to throw, got %v", err)
	}
}

func TestLocationAndHere(t *testing.T) {
	p := worldProgram(t)
	location := p.fn("location", 0, 0)
	p.emit(5, OpPushObj, OpLocation, OpRetVal)
	here := p.fn("here", 0, 0)
	p.emit(5, OpPushObj, 0, OpHere, OpRetVal)
	vm, _ := p.load(location, Options{})

	if got := mustCall(t, vm, location); got.Obj() != 1 {
		t.Fatalf("expected obj#1, got %v", got)
	}
	if got := mustCall(t, vm, here); got.Truthy() {
		t.Fatalf("expected HERE to be false with no current location")
	}
	vm.SetRegister(RegLocation, ObjValue(1))
	if got := mustCall(t, vm, here); !got.Truthy() {
		t.Fatalf("expected the coin to be here")
	}
}

func TestLocateIntoItself(t *testing.T) {
	p := worldProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(4, OpPushObj, 5, OpPushObj, OpLocate, OpReturn)
	vm, _ := p.load(entry, Options{})

	err := vm.Call(context.Background(), entry)
	var exc *Exception
	if !errors.As(err, &exc) || exc.Kind != ExcBadValue {
		t.Fatalf("expected bad value, got %v", err)
	}
	if got := vm.locationOf(4); got != 1 {
		t.Fatalf("expected the box to stay in obj#1, got obj#%d", got)
	}
}

func TestSayForms(t *testing.T) {
	p := worldProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(
		3, OpPushObj, SayIndefinite, OpSay,
		4, OpPushObj, SayDefinite, OpSay,
		3, OpPushObj, SayNegative, OpSay,
		4, OpPushObj, SayPronoun, OpSay,
		OpReturn,
	)
	vm, host := p.load(entry, Options{})

	mustCall(t, vm, entry)
	if out, want := host.Out.String(), "an applethe boxno appleit"; out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestAttributes(t *testing.T) {
	p := worldProgram(t)
	set := p.fn("set", 0, 0)
	p.emit(3, OpPushObj, 20, 7, OpSet, 3, OpPushObj, 20, OpAttribute, OpRetVal)
	missing := p.fn("missing", 0, 0)
	p.emit(3, OpPushObj, 21, OpAttribute, OpRetVal)
	vm, _ := p.load(set, Options{})

	if got := mustCall(t, vm, set).Int(); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	err := vm.Call(context.Background(), missing)
	var exc *Exception
	if !errors.As(err, &exc) || exc.Kind != ExcNoAttribute {
		t.Fatalf("expected missing attribute, got %v", err)
	}
}

func TestEmptyMovesContents(t *testing.T) {
	p := worldProgram(t)
	entry := p.fn("main", 0, 0)
	p.emit(4, OpPushObj, 1, OpPushObj, OpEmpty, OpReturn)
	vm, _ := p.load(entry, Options{})

	mustCall(t, vm, entry)
	if got := vm.locationOf(5); got != 1 {
		t.Fatalf("expected the coin in obj#1, got obj#%d", got)
	}
	if got := vm.contents(4, TransDirect); len(got) != 0 {
		t.Fatalf("expected an empty box, got %v", got)
	}
}
