// Package bundle moves address documents and revocation lists between stores
// as a deterministic tar archive, for replicas that cannot reach the primary
// CAS.
//
// Layout: one "blocks/<cid>" entry per document, then "index.json" naming
// the blocks and labelling them. A "pid/<PID>" label points a PID at its
// address document; the "revocations" label names the current revocation
// list. Labels are hints for the importer; block bytes are always checked
// against their CIDs.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"vey.dev/pidcore/cidutil"
	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/storage"
)

const (
	FormatVersion    = 1
	RevocationsLabel = "revocations"
	pidLabelPrefix   = "pid/"
	indexName        = "index.json"
	blocksDir        = "blocks/"
)

var epoch0 = time.Unix(0, 0).UTC()

// PIDLabel is the label pointing p at its address document.
func PIDLabel(p string) string { return pidLabelPrefix + p }

// Index is the table of contents of an imported bundle.
type Index struct {
	Blocks []cid.Cid
	Labels map[string]cid.Cid
}

// Addresses returns the PID labels as PID -> address document CID.
func (ix Index) Addresses() map[string]cid.Cid {
	out := make(map[string]cid.Cid)
	for name, id := range ix.Labels {
		if p, ok := strings.CutPrefix(name, pidLabelPrefix); ok {
			out[p] = id
		}
	}
	return out
}

// Revocations returns the labelled revocation list, if any.
func (ix Index) Revocations() (cid.Cid, bool) {
	id, ok := ix.Labels[RevocationsLabel]
	return id, ok
}

// Export writes the blocks for ids plus every labelled CID to w. The same
// input set always produces the same bytes.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, ids []cid.Cid, labels map[string]cid.Cid) error {
	if cas == nil {
		return errs.New(errs.Config, "BND-EXP-001", "bundle export needs a CAS")
	}
	uniq := make(map[string]cid.Cid, len(ids)+len(labels))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	names := make([]string, 0, len(labels))
	for name, id := range labels {
		if name == "" {
			return errs.New(errs.Parse, "BND-EXP-002", "empty bundle label")
		}
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
		names = append(names, name)
	}
	sort.Strings(names)

	order := make([]string, 0, len(uniq))
	for s := range uniq {
		order = append(order, s)
	}
	sort.Strings(order)

	tw := tar.NewWriter(w)
	idx := indexJSON{Version: FormatVersion, CIDCodec: "raw", Multihash: "sha2-256"}
	for _, s := range order {
		b, err := cas.Get(ctx, uniq[s])
		if err != nil {
			_ = tw.Close()
			return errs.Wrap(errs.Storage, "BND-EXP-003", "read block "+s, err)
		}
		if err := cidutil.Verify(uniq[s], b); err != nil {
			_ = tw.Close()
			return storage.ErrCIDMismatch
		}
		if err := writeFile(tw, blocksDir+s, b); err != nil {
			_ = tw.Close()
			return err
		}
		idx.Blocks = append(idx.Blocks, indexBlock{CID: s, Size: len(b)})
	}
	for _, name := range names {
		idx.Labels = append(idx.Labels, indexLabel{Name: name, CID: labels[name].String()})
	}

	b, err := json.Marshal(idx)
	if err != nil {
		_ = tw.Close()
		return errs.Wrap(errs.Internal, "BND-EXP-004", "encode bundle index", err)
	}
	if err := writeFile(tw, indexName, append(b, '\n')); err != nil {
		_ = tw.Close()
		return err
	}
	return tw.Close()
}

type ImportOptions struct {
	// IgnoreUnknown skips entries that are neither blocks nor the index.
	// By default they fail the import.
	IgnoreUnknown bool
}

// Import copies every block of the bundle into cas and returns its index.
// A label whose CID is not among the imported blocks fails the import.
func Import(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) (Index, error) {
	if cas == nil {
		return Index{}, errs.New(errs.Config, "BND-IMP-001", "bundle import needs a CAS")
	}
	tr := tar.NewReader(r)
	seen := map[string]cid.Cid{}
	var ix Index
	var raw *indexJSON

	for {
		if err := ctx.Err(); err != nil {
			return Index{}, err
		}
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Index{}, errs.Wrap(errs.Parse, "BND-IMP-002", "read bundle", err)
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return Index{}, errs.New(errs.Parse, "BND-IMP-003", "invalid entry path "+h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return Index{}, errs.New(errs.Parse, "BND-IMP-004", "unexpected entry type for "+name)
		}

		if name == indexName {
			var v indexJSON
			if err := json.NewDecoder(tr).Decode(&v); err != nil {
				return Index{}, errs.Wrap(errs.Parse, "BND-IMP-005", "parse bundle index", err)
			}
			if v.Version != FormatVersion {
				return Index{}, errs.New(errs.Parse, "BND-IMP-006", "unsupported bundle version")
			}
			raw = &v
			continue
		}

		cidStr, ok := strings.CutPrefix(name, blocksDir)
		if !ok {
			if opts.IgnoreUnknown {
				continue
			}
			return Index{}, errs.New(errs.Parse, "BND-IMP-007", "unknown entry "+name)
		}
		id, err := cid.Decode(cidStr)
		if err != nil || !id.Defined() {
			return Index{}, storage.ErrInvalidCID
		}
		if _, dup := seen[id.String()]; dup {
			return Index{}, errs.New(errs.Parse, "BND-IMP-008", "duplicate block "+id.String())
		}
		payload, err := io.ReadAll(tr)
		if err != nil {
			return Index{}, errs.Wrap(errs.Parse, "BND-IMP-009", "read block "+id.String(), err)
		}
		if err := cidutil.Verify(id, payload); err != nil {
			return Index{}, storage.ErrCIDMismatch
		}
		got, err := cas.Put(ctx, payload)
		if err != nil {
			return Index{}, errs.Wrap(errs.Storage, "BND-IMP-010", "store block "+id.String(), err)
		}
		if !got.Equals(id) {
			return Index{}, storage.ErrCIDMismatch
		}
		seen[id.String()] = id
		ix.Blocks = append(ix.Blocks, id)
	}

	if raw == nil {
		return ix, nil
	}
	ix.Labels = make(map[string]cid.Cid, len(raw.Labels))
	for _, l := range raw.Labels {
		id, ok := seen[l.CID]
		if !ok {
			return Index{}, errs.New(errs.Parse, "BND-IMP-011", "label "+l.Name+" names a block missing from the bundle")
		}
		ix.Labels[l.Name] = id
	}
	return ix, nil
}

type indexJSON struct {
	Version   int          `json:"version"`
	CIDCodec  string       `json:"cidCodec"`
	Multihash string       `json:"multihash"`
	Blocks    []indexBlock `json:"blocks"`
	Labels    []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

// writeFile writes a regular entry with zeroed ownership and mtime.
func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return errs.Wrap(errs.Storage, "BND-TAR-001", "write entry "+name, err)
	}
	if _, err := io.Copy(tw, bytes.NewReader(content)); err != nil {
		return errs.Wrap(errs.Storage, "BND-TAR-002", "write entry "+name, err)
	}
	return nil
}

// cleanTarPath normalizes name and returns "" for absolute-escaping or
// dot-segment paths.
func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
