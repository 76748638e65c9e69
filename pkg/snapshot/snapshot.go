// Package snapshot exports the account store to a zstd-compressed tar
// archive and loads it back. An archive holds an "accounts" entry with every
// account record and a "manifest" entry that commits to them.
package snapshot

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/x1-anchor/pkg/accounts"
	"github.com/fortiblox/x1-anchor/pkg/codec"
	"github.com/fortiblox/x1-anchor/pkg/types"
)

var (
	// ErrInvalidManifest is returned when the manifest is malformed.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrInvalidArchive is returned when the archive is malformed.
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrHashMismatch is returned when a hash verification fails.
	ErrHashMismatch = errors.New("hash mismatch")
)

// Version is the archive format version.
const Version uint32 = 1

const (
	// DefaultMaxEntrySize caps the decompressed size of one archive entry.
	DefaultMaxEntrySize int64 = 1 << 30
	// DefaultBatchSize is the number of accounts written per store commit.
	DefaultBatchSize = 4096
)

const (
	manifestEntry = "manifest"
	accountsEntry = "accounts"
)

// Manifest contains metadata about a snapshot.
type Manifest struct {
	Version       uint32    `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	AccountsCount uint64    `json:"accounts_count"`
	LamportsTotal uint64    `json:"lamports_total"`
	// AccountsHash is the base58 delta hash of every account, see
	// accounts.ComputeDeltaHash.
	AccountsHash string `json:"accounts_hash"`
}

// record is one account as stored in the accounts entry.
type record struct {
	Pubkey  types.Pubkey
	Account []byte
}

// LoadResult contains the result of loading a snapshot.
type LoadResult struct {
	// Manifest is the snapshot manifest.
	Manifest *Manifest
	// AccountsLoaded is the number of accounts loaded.
	AccountsLoaded uint64
	// LamportsTotal is the total lamports loaded.
	LamportsTotal uint64
	// AccountsHash is the computed accounts hash.
	AccountsHash types.Hash
	// Verified indicates if the snapshot was verified.
	Verified bool
}

// LoadConfig contains configuration for loading a snapshot.
type LoadConfig struct {
	// VerifyHashes rejects an archive whose accounts do not match the
	// manifest. Nothing is written when verification fails.
	VerifyHashes bool
	// MaxEntrySize rejects archives with a larger entry. Zero means
	// DefaultMaxEntrySize.
	MaxEntrySize int64
	// BatchSize bounds the accounts per store commit so a large archive
	// stays under the store's transaction limits. Zero means
	// DefaultBatchSize.
	BatchSize int
}

// DefaultLoadConfig returns a default load configuration.
func DefaultLoadConfig() LoadConfig {
	return LoadConfig{
		VerifyHashes: true,
		MaxEntrySize: DefaultMaxEntrySize,
		BatchSize:    DefaultBatchSize,
	}
}

// Export writes every account in db to w.
func Export(w io.Writer, db accounts.AccountsDB) (*Manifest, error) {
	var (
		body   bytes.Buffer
		deltas []types.AccountDelta
	)
	manifest := &Manifest{Version: Version, CreatedAt: time.Now().UTC()}

	err := db.ForEach(func(pk types.Pubkey, acc *types.Account) error {
		raw, err := accounts.SerializeAccount(acc)
		if err != nil {
			return fmt.Errorf("account %s: %w", pk, err)
		}
		enc, err := codec.Encode(&record{Pubkey: pk, Account: raw})
		if err != nil {
			return err
		}
		body.Write(enc)
		deltas = append(deltas, types.AccountDelta{Pubkey: pk, NewAccount: acc})
		manifest.AccountsCount++
		manifest.LamportsTotal += uint64(acc.Lamports)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}
	manifest.AccountsHash = accounts.ComputeDeltaHash(deltas).String()

	mdata, err := json.Marshal(manifest)
	if err != nil {
		return nil, err
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	tw := tar.NewWriter(zw)
	if err := writeEntry(tw, accountsEntry, body.Bytes()); err != nil {
		zw.Close()
		return nil, err
	}
	if err := writeEntry(tw, manifestEntry, mdata); err != nil {
		zw.Close()
		return nil, err
	}
	if err := tw.Close(); err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish compression: %w", err)
	}
	return manifest, nil
}

func writeEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data)), Typeflag: tar.TypeReg}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write %s header: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// ExportFile writes a snapshot of db to path.
func ExportFile(path string, db accounts.AccountsDB) (*Manifest, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}
	m, err := Export(f, db)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close snapshot: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return m, nil
}

// Load reads a snapshot from r and writes its accounts into db in batches
// of config.BatchSize. Nothing is written until the whole archive has been
// read and verified; a store failure part way through can leave earlier
// batches written. Accounts already in db that the snapshot does not name
// are kept.
func Load(r io.Reader, db accounts.AccountsDB, config LoadConfig) (*LoadResult, error) {
	maxEntry := config.MaxEntrySize
	if maxEntry <= 0 {
		maxEntry = DefaultMaxEntrySize
	}
	batch := config.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer zr.Close()

	var (
		manifest *Manifest
		body     []byte
		haveBody bool
	)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}
		if hdr.Size > maxEntry {
			return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrInvalidArchive, hdr.Name, hdr.Size, maxEntry)
		}
		data, err := io.ReadAll(io.LimitReader(tr, maxEntry+1))
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidArchive, hdr.Name, err)
		}
		if int64(len(data)) > maxEntry {
			return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidArchive, hdr.Name, maxEntry)
		}
		switch hdr.Name {
		case manifestEntry:
			manifest = &Manifest{}
			if err := json.Unmarshal(data, manifest); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
			}
		case accountsEntry:
			body, haveBody = data, true
		}
	}
	if manifest == nil {
		return nil, fmt.Errorf("%w: manifest not found in archive", ErrInvalidArchive)
	}
	if manifest.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidManifest, manifest.Version)
	}
	if !haveBody {
		return nil, fmt.Errorf("%w: accounts not found in archive", ErrInvalidArchive)
	}

	result := &LoadResult{Manifest: manifest}
	var deltas []types.AccountDelta
	for off := 0; off < len(body); {
		var rec record
		n, err := codec.DecodePrefix(body[off:], off, &rec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}
		off += n
		acc, err := accounts.DeserializeAccount(rec.Account)
		if err != nil {
			return nil, fmt.Errorf("%w: account %s: %v", ErrInvalidArchive, rec.Pubkey, err)
		}
		deltas = append(deltas, types.AccountDelta{Pubkey: rec.Pubkey, NewAccount: acc})
		result.AccountsLoaded++
		result.LamportsTotal += uint64(acc.Lamports)
	}
	result.AccountsHash = accounts.ComputeDeltaHash(deltas)

	if config.VerifyHashes {
		if result.AccountsLoaded != manifest.AccountsCount || result.LamportsTotal != manifest.LamportsTotal {
			return nil, fmt.Errorf("%w: manifest lists %d accounts and %d lamports, archive holds %d and %d",
				ErrHashMismatch, manifest.AccountsCount, manifest.LamportsTotal, result.AccountsLoaded, result.LamportsTotal)
		}
		if result.AccountsHash.String() != manifest.AccountsHash {
			return nil, fmt.Errorf("%w: accounts hash %s, manifest %s", ErrHashMismatch, result.AccountsHash, manifest.AccountsHash)
		}
		result.Verified = true
	}

	for start := 0; start < len(deltas); start += batch {
		end := start + batch
		if end > len(deltas) {
			end = len(deltas)
		}
		if err := db.Commit(deltas[start:end]); err != nil {
			return nil, fmt.Errorf("failed to store accounts %d-%d: %w", start, end, err)
		}
	}
	return result, nil
}

// LoadFile loads the snapshot at path into db.
func LoadFile(path string, db accounts.AccountsDB, config LoadConfig) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return Load(f, db, config)
}
