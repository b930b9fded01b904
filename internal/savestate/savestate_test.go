package savestate_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"storyvm/internal/image"
	"storyvm/internal/savestate"
	"storyvm/internal/vm"
)

// storyImage has an empty main function and one static object.
func storyImage() *image.Image {
	var code []byte
	for _, w := range []uint32{vm.Stmop(vm.OpReturn), vm.FuncHeader(0, 0), vm.Stmop(vm.OpReturn)} {
		code = binary.LittleEndian.AppendUint32(code, w)
	}
	obj := []byte{0, 0, 1, 0}
	obj = binary.LittleEndian.AppendUint16(obj, 20)
	obj = vm.AppendHolder(obj, vm.IntValue(3))
	return &image.Image{
		Version:     image.FormatVersion,
		Entry:       1,
		Code:        image.NewPoolDef(code, 4096),
		Data:        image.NewPoolDef(make([]byte, 4), 4096),
		Metaclasses: []string{"tads-object/030005"},
		Objects:     []image.ObjectDef{{ID: 1, Metaclass: 0, Data: obj}},
		Raw:         code,
	}
}

func attached(t *testing.T, img *image.Image) *vm.VM {
	t.Helper()
	m := vm.New(vm.Options{})
	if err := m.Attach(img); err != nil {
		t.Fatalf("attach: %v", err)
	}
	return m
}

func TestFileStoreRoundTrip(t *testing.T) {
	img := storyImage()
	src := attached(t, img)
	src.SetRegister(vm.RegScore, vm.IntValue(12))
	snap, err := src.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	store := savestate.NewFileStore(filepath.Join(t.TempDir(), "saves", "game.sav"))
	if _, err := store.Load(); !errors.Is(err, vm.ErrNoSavedState) {
		t.Fatalf("expected ErrNoSavedState before the first save, got %v", err)
	}
	if err := store.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ImageSig != snap.ImageSig || len(loaded.Objects) != len(snap.Objects) {
		t.Fatalf("loaded snapshot differs: %+v vs %+v", loaded, snap)
	}

	dst := attached(t, img)
	if err := dst.RestoreSnapshot(loaded); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := dst.Register(vm.RegScore); got.Int() != 12 {
		t.Fatalf("expected score 12 after restore, got %v", got)
	}
	if dst.Lookup(1) == nil {
		t.Fatalf("expected the image object to survive restore")
	}
}

func TestMemStore(t *testing.T) {
	var store savestate.MemStore
	if _, err := store.Load(); !errors.Is(err, vm.ErrNoSavedState) {
		t.Fatalf("expected ErrNoSavedState, got %v", err)
	}
	snap, err := attached(t, storyImage()).Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.Len() == 0 {
		t.Fatalf("expected encoded bytes")
	}
	if _, err := store.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestDecodeRejectsOtherSchema(t *testing.T) {
	data, err := msgpack.Marshal(map[string]any{"schema": 99})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := savestate.Decode(bytes.NewReader(data)); !errors.Is(err, savestate.ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
	if _, err := savestate.Decode(bytes.NewReader([]byte{0xc1})); err == nil {
		t.Fatalf("expected garbage to fail")
	}
}
