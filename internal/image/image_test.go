package image_test

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"storyvm/internal/image"
	"storyvm/internal/pool"
)

func sampleImage() *image.Image {
	code := make([]byte, 40)
	for i := range code {
		code[i] = byte(i)
	}
	return &image.Image{
		Entry:        2,
		Code:         image.NewPoolDef(code, 16),
		Data:         image.NewPoolDef([]byte("hello, world"), 8),
		Metaclasses:  []string{"tads-object/030005", "string/030008"},
		FunctionSets: []string{"t3vm/010006"},
		Objects: []image.ObjectDef{
			{ID: 1, Metaclass: 0, Data: []byte{1, 2, 3}},
			{ID: 2, Metaclass: 1, Data: []byte("abc")},
			{ID: 3, Metaclass: 0, Flags: image.ObjTransient},
		},
		Symbols: map[string]uint32{"main": 2, "helper": 7},
		XorMask: 0x5a,
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	src := sampleImage()
	data, err := src.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := image.Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Entry != 2 || got.Version != image.FormatVersion {
		t.Fatalf("entry/version = %d/%d", got.Entry, got.Version)
	}
	if got.Code.PageCount != 3 || got.Code.PageSize != 16 || got.Code.Len() != 40 {
		t.Fatalf("code pool = %d pages of %d, %d bytes", got.Code.PageCount, got.Code.PageSize, got.Code.Len())
	}
	for i := range src.Code.Pages {
		if !bytes.Equal(src.Code.Pages[i], got.Code.Pages[i]) {
			t.Fatalf("code page %d differs after xor round trip", i)
		}
	}
	if string(bytes.Join(got.Data.Pages, nil)) != "hello, world" {
		t.Fatalf("data pool = %q", bytes.Join(got.Data.Pages, nil))
	}
	if len(got.Metaclasses) != 2 || got.Metaclasses[1] != "string/030008" {
		t.Fatalf("metaclasses = %v", got.Metaclasses)
	}
	if len(got.FunctionSets) != 1 || got.FunctionSets[0] != "t3vm/010006" {
		t.Fatalf("function sets = %v", got.FunctionSets)
	}
	if len(got.Objects) != 3 {
		t.Fatalf("objects = %d, want 3", len(got.Objects))
	}
	if !got.Objects[2].Transient() || got.Objects[0].Transient() {
		t.Fatalf("transient flags lost: %+v", got.Objects)
	}
	if got.MaxObjectID() != 3 {
		t.Fatalf("max object id = %d", got.MaxObjectID())
	}
	if name, ok := got.SymbolAt(7); !ok || name != "helper" {
		t.Fatalf("SymbolAt(7) = %q, %v", name, ok)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	good, err := sampleImage().Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := image.Parse([]byte("not an image")); !errors.Is(err, image.ErrSignature) {
		t.Fatalf("bad signature err = %v", err)
	}
	if _, err := image.Parse(good[:len(good)-5]); !errors.Is(err, image.ErrCorruptBlock) {
		t.Fatalf("truncated err = %v", err)
	}
	bumped := bytes.Clone(good)
	bumped[len(image.Signature)] = 99
	if _, err := image.Parse(bumped); !errors.Is(err, image.ErrVersion) {
		t.Fatalf("version err = %v", err)
	}
}

func TestParseMissingPage(t *testing.T) {
	img := sampleImage()
	img.Code.Pages = img.Code.Pages[:2]
	data, err := img.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// The definition block is written from len(Pages), so patch the count back up.
	patched := bytes.Replace(data, []byte("CPDF\x0a\x00\x00\x00\x01\x00\x01\x00\x02\x00\x00\x00"), []byte("CPDF\x0a\x00\x00\x00\x01\x00\x01\x00\x03\x00\x00\x00"), 1)
	if bytes.Equal(patched, data) {
		t.Fatalf("test patch did not apply")
	}
	if _, err := image.Parse(patched); !errors.Is(err, image.ErrPageMissing) {
		t.Fatalf("missing page err = %v", err)
	}
}

func TestOpenPoolServesPages(t *testing.T) {
	img := sampleImage()
	for _, v := range []pool.Variant{pool.VariantFlat, pool.VariantPaged} {
		p, err := image.OpenPool(img, image.PoolCode, v, 0)
		if err != nil {
			t.Fatalf("%v: open: %v", v, err)
		}
		if !p.Validate(39) || p.Validate(40) {
			t.Fatalf("%v: partial last page not honoured", v)
		}
		if b := p.Translate(17); b[0] != 17 {
			t.Fatalf("%v: translate(17) = %d", v, b[0])
		}
		p.Detach()
	}
}

func TestWriteFileAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "story.svm")
	if err := image.WriteFile(path, sampleImage()); err != nil {
		t.Fatalf("write: %v", err)
	}
	img, err := image.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if img.Entry != 2 || len(img.Raw) == 0 {
		t.Fatalf("loaded image entry=%d raw=%d", img.Entry, len(img.Raw))
	}
}
