package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/vk/twinctl/internal/config"
	"github.com/vk/twinctl/internal/ctxlog"
	"github.com/vk/twinctl/internal/twins"
)

const timestampLayout = "20060102T150405Z"

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeID turns a model id into a file-name-safe key segment.
func SanitizeID(id string) string {
	return strings.Trim(unsafeKeyChars.ReplaceAllString(id, "_"), "_")
}

// ObjectName is the key segment of a model id: the sanitized id plus a
// short digest of the raw id, so ids differing only in unsafe characters
// still get distinct keys.
func ObjectName(id string) string {
	sum := sha256.Sum256([]byte(id))
	return SanitizeID(id) + "-" + hex.EncodeToString(sum[:4]) + ".json"
}

// Archiver writes snapshots as <prefix>/<timestamp>/<object-name>.
type Archiver struct {
	store  Store
	prefix string
	now    func() time.Time
}

func New(store Store, prefix string) *Archiver {
	return &Archiver{store: store, prefix: strings.Trim(prefix, "/"), now: time.Now}
}

// FromSettings builds the configured archiver, or nil when archiving is off.
func FromSettings(s config.ArchiveSettings) (*Archiver, error) {
	var store Store
	var err error
	switch s.Kind {
	case "", config.ArchiveNone:
		return nil, nil
	case config.ArchiveDir:
		store, err = NewDirStore(s.Path)
	case config.ArchiveS3:
		store, err = NewS3Store(S3Config{
			Endpoint:  s.Endpoint,
			Region:    s.Region,
			AccessKey: s.AccessKey,
			SecretKey: s.SecretKey,
			Bucket:    s.Bucket,
			UseSSL:    s.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown archive kind '%s'", s.Kind)
	}
	if err != nil {
		return nil, err
	}
	return New(store, s.Prefix), nil
}

// Save stores the definition of every model and returns the snapshot name
// to pass to Load. Models without a definition are skipped. Two models
// mapping to one key fail the save before anything is written.
func (a *Archiver) Save(ctx context.Context, models []twins.ModelData) (string, error) {
	logger := ctxlog.FromContext(ctx)
	snapshot := path.Join(a.prefix, a.now().UTC().Format(timestampLayout))

	keys := make([]string, len(models))
	owners := make(map[string]string, len(models))
	for i, m := range models {
		if len(m.Model) == 0 {
			continue
		}
		key := path.Join(snapshot, ObjectName(m.ID))
		if owner, taken := owners[key]; taken && owner != m.ID {
			return "", fmt.Errorf("models %s and %s map to the same archive key %s", owner, m.ID, key)
		}
		owners[key] = m.ID
		keys[i] = key
	}

	saved := 0
	for i, m := range models {
		if len(m.Model) == 0 {
			logger.Warn("Model has no definition, not archived.", "model", m.ID)
			continue
		}
		key := keys[i]
		if err := a.store.Put(ctx, key, m.Model); err != nil {
			return "", fmt.Errorf("failed to archive model %s: %w", m.ID, err)
		}
		saved++
	}
	logger.Info("📦 Model definitions archived.", "snapshot", snapshot, "models", saved)
	return snapshot, nil
}

// Load reads every definition of a snapshot.
func (a *Archiver) Load(ctx context.Context, snapshot string) ([]json.RawMessage, error) {
	keys, err := a.store.List(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot %s: %w", snapshot, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("snapshot %s is empty or does not exist", snapshot)
	}
	docs := make([]json.RawMessage, 0, len(keys))
	for _, key := range keys {
		data, err := a.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		docs = append(docs, json.RawMessage(data))
	}
	return docs, nil
}

// Location describes where a snapshot lives.
func (a *Archiver) Location(snapshot string) string {
	return a.store.Location(snapshot)
}
