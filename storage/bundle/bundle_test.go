package bundle_test

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"vey.dev/pidcore/cidutil"
	"vey.dev/pidcore/pid"
	"vey.dev/pidcore/resolver"
	"vey.dev/pidcore/storage"
	"vey.dev/pidcore/storage/bundle"
	"vey.dev/pidcore/storage/localfs"
)

func newCAS(t *testing.T) storage.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return cas
}

func TestExportIsDeterministic(t *testing.T) {
	ctx := context.Background()
	cas := newCAS(t)
	id1, err := cas.Put(ctx, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := cas.Put(ctx, []byte("world"))
	if err != nil {
		t.Fatal(err)
	}
	labels := map[string]cid.Cid{bundle.RevocationsLabel: id2}

	var a, b bytes.Buffer
	if err := bundle.Export(ctx, &a, cas, []cid.Cid{id2, id1}, labels); err != nil {
		t.Fatal(err)
	}
	if err := bundle.Export(ctx, &b, cas, []cid.Cid{id1}, labels); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatal("expected deterministic bundle bytes")
	}
}

func TestDirectoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newCAS(t)
	srcDir := &resolver.CASDirectory{CAS: src}
	addr := pid.Address{PID: "JP-13-113-01", Country: "JP", Admin1: "13", Locality: "Shibuya"}
	addrID, err := srcDir.Put(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	listID, err := src.Put(ctx, []byte(`{"version":1}`))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	labels := map[string]cid.Cid{
		bundle.PIDLabel(addr.PID): addrID,
		bundle.RevocationsLabel:   listID,
	}
	if err := bundle.Export(ctx, &buf, src, nil, labels); err != nil {
		t.Fatal(err)
	}

	dst := newCAS(t)
	ix, err := bundle.Import(ctx, bytes.NewReader(buf.Bytes()), dst, bundle.ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(ix.Blocks) != 2 {
		t.Fatalf("blocks: got %d want 2", len(ix.Blocks))
	}
	if got, ok := ix.Revocations(); !ok || !got.Equals(listID) {
		t.Fatalf("revocations label: got %v %v", got, ok)
	}

	dstDir := &resolver.CASDirectory{CAS: dst}
	for p, id := range ix.Addresses() {
		dstDir.Link(p, id)
	}
	got, err := dstDir.Address(ctx, addr.PID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Locality != "Shibuya" {
		t.Fatalf("address: got %+v", got)
	}
}

func TestImportRejectsCIDMismatch(t *testing.T) {
	other, err := cidutil.Sum([]byte("other"))
	if err != nil {
		t.Fatal(err)
	}
	b := makeTar(t, map[string][]byte{"blocks/" + other.String(): []byte("good")})
	_, err = bundle.Import(context.Background(), bytes.NewReader(b), newCAS(t), bundle.ImportOptions{})
	if !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
}

func TestImportUnknownEntries(t *testing.T) {
	b := makeTar(t, map[string][]byte{"notes.txt": []byte("hi")})
	if _, err := bundle.Import(context.Background(), bytes.NewReader(b), newCAS(t), bundle.ImportOptions{}); err == nil {
		t.Fatal("expected unknown entry to fail")
	}
	if _, err := bundle.Import(context.Background(), bytes.NewReader(b), newCAS(t), bundle.ImportOptions{IgnoreUnknown: true}); err != nil {
		t.Fatalf("IgnoreUnknown: %v", err)
	}
	traversal := makeTar(t, map[string][]byte{"../blocks/x": []byte("hi")})
	if _, err := bundle.Import(context.Background(), bytes.NewReader(traversal), newCAS(t), bundle.ImportOptions{IgnoreUnknown: true}); err == nil {
		t.Fatal("expected traversal path to fail")
	}
}

func TestImportRejectsDanglingLabel(t *testing.T) {
	missing, err := cidutil.Sum([]byte("missing"))
	if err != nil {
		t.Fatal(err)
	}
	index := `{"version":1,"cidCodec":"raw","multihash":"sha2-256","blocks":[],"labels":[{"name":"revocations","cid":"` + missing.String() + `"}]}`
	b := makeTar(t, map[string][]byte{"index.json": []byte(index)})
	if _, err := bundle.Import(context.Background(), bytes.NewReader(b), newCAS(t), bundle.ImportOptions{}); err == nil {
		t.Fatal("expected dangling label to fail")
	}
}

func makeTar(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		h := &tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			ModTime:  time.Unix(0, 0).UTC(),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(h); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
