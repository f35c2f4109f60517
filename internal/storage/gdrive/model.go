// Package gdrive implements the Google Drive storage backend's metadata
// rows and the access-token lookup used to reach Drive objects; the
// wire-level upload/download client is internal/gdriveclient. File bodies
// are always encrypted before they
// reach Drive; the Cipher recorded on a Storage row says which framing to
// use when reading them back.
package gdrive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Cipher identifies which body encoding a gdrive Storage row's objects use.
type Cipher string

const (
	CipherAES128CTR Cipher = "AES_128_CTR" // legacy, read-only
	CipherAES128GCM Cipher = "AES_128_GCM" // current
)

// Storage links a file to the encrypted Drive objects holding its body, in
// order; the objects' contents concatenated form one ciphertext stream
// that decrypts to the body.
type Storage struct {
	FileID       int64
	GoogleDomain int32
	Cipher       Cipher
	CipherKey    [16]byte
	GdriveIDs    []string
}

// File is a single Google Drive object: one part of a Storage's GdriveIDs.
type File struct {
	ID         string
	OwnerID    *int32
	MD5        [16]byte
	CRC32C     uint32
	Size       int64
	LastProbed *time.Time
}

// Registry wraps the CRUD operations for storage_gdrive and gdrive_files rows.
type Registry struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Registry { return &Registry{pool: pool} }

// CreateDomain registers a Google Workspace domain and returns its id.
func (r *Registry) CreateDomain(ctx context.Context, domain string) (int32, error) {
	var id int32
	err := r.pool.QueryRow(ctx,
		`INSERT INTO google_domains (domain) VALUES ($1) RETURNING id`, domain,
	).Scan(&id)
	return id, err
}

// CreateOwner registers an account (a user or a service account) under a
// domain and returns its id.
func (r *Registry) CreateOwner(ctx context.Context, domainID int32, ownerName string) (int32, error) {
	var id int32
	err := r.pool.QueryRow(ctx,
		`INSERT INTO gdrive_owners (domain_id, owner_name) VALUES ($1, $2) RETURNING id`, domainID, ownerName,
	).Scan(&id)
	return id, err
}

// FindDomainIDByName returns the google_domains id for domain.
func (r *Registry) FindDomainIDByName(ctx context.Context, domain string) (int32, error) {
	var id int32
	err := r.pool.QueryRow(ctx, `SELECT id FROM google_domains WHERE domain = $1`, domain).Scan(&id)
	return id, err
}

// FindDomainIDByOwnerID returns the domain a gdrive_owners row belongs to.
func (r *Registry) FindDomainIDByOwnerID(ctx context.Context, ownerID int32) (int32, error) {
	var domainID int32
	err := r.pool.QueryRow(ctx, `SELECT domain_id FROM gdrive_owners WHERE id = $1`, ownerID).Scan(&domainID)
	return domainID, err
}

// FindOwnerIDsByDomainID returns the gdrive_owners ids registered under
// domainID.
func (r *Registry) FindOwnerIDsByDomainID(ctx context.Context, domainID int32) ([]int32, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM gdrive_owners WHERE domain_id = $1`, domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CreateStorage links fileID to a sequence of already-created gdrive files.
func (r *Registry) CreateStorage(ctx context.Context, tx pgx.Tx, s Storage) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO storage_gdrive (file_id, google_domain, cipher, cipher_key, gdrive_ids)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.FileID, s.GoogleDomain, string(s.Cipher), s.CipherKey[:], s.GdriveIDs,
	)
	return err
}

// FindStorageByFileID returns the gdrive storage row for fileID, if any.
func (r *Registry) FindStorageByFileID(ctx context.Context, fileID int64) (Storage, bool, error) {
	var s Storage
	var key []byte
	var cipher string
	err := r.pool.QueryRow(ctx,
		`SELECT file_id, google_domain, cipher, cipher_key, gdrive_ids
		 FROM storage_gdrive WHERE file_id = $1`, fileID,
	).Scan(&s.FileID, &s.GoogleDomain, &cipher, &key, &s.GdriveIDs)
	if err == pgx.ErrNoRows {
		return Storage{}, false, nil
	}
	if err != nil {
		return Storage{}, false, err
	}
	s.Cipher = Cipher(cipher)
	copy(s.CipherKey[:], key)
	return s, true, nil
}

// CreateFile inserts one gdrive_files row.
func (r *Registry) CreateFile(ctx context.Context, tx pgx.Tx, f File) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO gdrive_files (id, owner_id, md5, crc32c, size, last_probed)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.OwnerID, f.MD5[:], crc32cBytes(f.CRC32C), f.Size, f.LastProbed,
	)
	return err
}

func crc32cBytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func bytesToCRC32C(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// GetFilesInOrder returns gdrive_files rows for ids, in the same order as
// ids, erroring if any id is missing or repeated.
func (r *Registry) GetFilesInOrder(ctx context.Context, ids []string) ([]File, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_id, md5, crc32c, size, last_probed FROM gdrive_files WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("gdrive: fetching files: %w", err)
	}
	defer rows.Close()
	byID := make(map[string]File)
	for rows.Next() {
		var f File
		var md5, crc []byte
		if err := rows.Scan(&f.ID, &f.OwnerID, &md5, &crc, &f.Size, &f.LastProbed); err != nil {
			return nil, err
		}
		copy(f.MD5[:], md5)
		f.CRC32C = bytesToCRC32C(crc)
		byID[f.ID] = f
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]File, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, fmt.Errorf("gdrive: duplicate id given: %s", id)
		}
		seen[id] = true
		f, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("gdrive: no such gdrive file: %s", id)
		}
		out = append(out, f)
	}
	return out, nil
}

// TouchLastProbed updates last_probed to now for the given gdrive file id.
// Called as a best-effort, fire-and-forget repair write on every
// successful read of that file.
func (r *Registry) TouchLastProbed(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE gdrive_files SET last_probed = now() WHERE id = $1`, id)
	return err
}

// RemoveByFileIDs deletes every storage_gdrive row for the given file ids.
// It does not remove the underlying gdrive_files rows, since they may
// still be referenced by other files' storage (or kept for forensics).
func (r *Registry) RemoveByFileIDs(ctx context.Context, tx pgx.Tx, fileIDs []int64) error {
	if len(fileIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `DELETE FROM storage_gdrive WHERE file_id = ANY($1)`, fileIDs)
	return err
}
