package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/rowanhale/labwise/internal/model"
	"github.com/rowanhale/labwise/internal/repository"
)

// SnapshotVersion is the document format version written into metadata.
const SnapshotVersion = "1.0"

// Metadata describes one snapshot document.
type Metadata struct {
	Version     string           `json:"version"`
	CreatedAt   string           `json:"createdAt"`
	Description string           `json:"description"`
	Type        model.BackupType `json:"type"`
}

// Document is the serialized snapshot: metadata plus one key per
// collection under data. Both top-level keys must be present for the
// document to be considered valid.
type Document struct {
	Metadata Metadata                       `json:"metadata"`
	Data     map[string][]repository.Record `json:"data"`
}

// snapshotFilename builds the timestamp-qualified artifact name,
// e.g. backup-2026-01-05T02-00-00-000Z.backup for manual backups and
// backup-auto-... for scheduled ones.
func snapshotFilename(typ model.BackupType, now time.Time) string {
	ts := now.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	if typ == model.BackupTypeAutomatic {
		return fmt.Sprintf("backup-auto-%s.backup", ts)
	}
	return fmt.Sprintf("backup-%s.backup", ts)
}

var gzipMagic = []byte{0x1f, 0x8b}

// encodeDocument serializes a document, applying the compression and
// encryption toggles from settings. Encryption wraps compression, so a
// decoder peels layers by sniffing the leading bytes.
func encodeDocument(doc *Document, settings *model.BackupSettings, passphrase string) ([]byte, error) {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	if settings.CompressionEnabled {
		var buf bytes.Buffer
		zw := pgzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return nil, fmt.Errorf("compress snapshot: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compress snapshot: %w", err)
		}
		payload = buf.Bytes()
	}

	if settings.EncryptionEnabled {
		if passphrase == "" {
			return nil, fmt.Errorf("encryption enabled but no backup passphrase configured")
		}
		payload, err = encrypt(payload, passphrase)
		if err != nil {
			return nil, fmt.Errorf("encrypt snapshot: %w", err)
		}
	}

	return payload, nil
}

// decodeDocument reverses encodeDocument: decrypt if the encryption
// header is present, decompress if gzip-compressed, then unmarshal.
func decodeDocument(data []byte, passphrase string) (*Document, error) {
	plain, err := decodePayload(data, passphrase)
	if err != nil {
		return nil, err
	}

	doc := &Document{}
	if err := json.Unmarshal(plain, doc); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return doc, nil
}

// decodePayload strips the encryption and compression layers without
// interpreting the JSON beneath them.
func decodePayload(data []byte, passphrase string) ([]byte, error) {
	if encrypted(data) {
		if passphrase == "" {
			return nil, fmt.Errorf("snapshot is encrypted and no backup passphrase is configured")
		}
		var err error
		data, err = decrypt(data, passphrase)
		if err != nil {
			return nil, fmt.Errorf("decrypt snapshot: %w", err)
		}
	}

	if bytes.HasPrefix(data, gzipMagic) {
		zr, err := pgzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decompress snapshot: %w", err)
		}
		defer zr.Close()
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decompress snapshot: %w", err)
		}
	}

	return data, nil
}
