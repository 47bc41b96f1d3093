package registry

import (
	"clusterdir/internal/metrics"
	"clusterdir/internal/ports"
	"clusterdir/internal/types"
	"context"
	"errors"
	"reflect"

	log "github.com/sirupsen/logrus"
)

// SecretFacade reads and writes property bags on top of a KV, translating them to and from the
// string-valued record model. Writes are skipped when nothing would change.
type SecretFacade struct {
	kv ports.KV
}

func NewSecretFacade(kv ports.KV) *SecretFacade {
	return &SecretFacade{kv: kv}
}

// Read returns the bag stored at path, or nil when there is none.
func (f *SecretFacade) Read(ctx context.Context, path string) (types.Props, error) {
	rec, err := f.readRecord(ctx, path)
	if err != nil {
		return nil, err
	}
	return rec.Decode(), nil
}

// Write merges props into the document at path. It returns false without writing when every
// given field already holds an equal value.
func (f *SecretFacade) Write(ctx context.Context, path string, props types.Props) (bool, error) {
	encoded, err := props.Encode()
	if err != nil {
		return false, err
	}
	previous, err := f.readRecord(ctx, path)
	if err != nil {
		return false, err
	}
	needsUpdate := false
	for k, v := range encoded {
		old, ok := previous[k]
		if !ok || !fieldEqual(old, v, isString(props[k])) {
			needsUpdate = true
			break
		}
	}
	if !needsUpdate {
		skipped(path)
		return false, nil
	}
	merged := previous.Clone()
	if merged == nil {
		merged = types.Record{}
	}
	for k, v := range encoded {
		merged[k] = v
	}
	return true, f.kv.Write(ctx, path, merged)
}

// Replace stores props as the whole document at path, unless the stored document is equal.
func (f *SecretFacade) Replace(ctx context.Context, path string, props types.Props) (bool, error) {
	encoded, err := props.Encode()
	if err != nil {
		return false, err
	}
	previous, err := f.readRecord(ctx, path)
	if err != nil {
		return false, err
	}
	if previous != nil && recordsEqual(previous, encoded, props) {
		skipped(path)
		return false, nil
	}
	return true, f.kv.Write(ctx, path, encoded)
}

// Delete removes the document at path. A missing document is not an error.
func (f *SecretFacade) Delete(ctx context.Context, path string) error {
	err := f.kv.Delete(ctx, path)
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	return err
}

// readRecord returns nil for a missing document.
func (f *SecretFacade) readRecord(ctx context.Context, path string) (types.Record, error) {
	rec, err := f.kv.Read(ctx, path)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func recordsEqual(stored, encoded types.Record, props types.Props) bool {
	if len(stored) != len(encoded) {
		return false
	}
	for k, v := range encoded {
		old, ok := stored[k]
		if !ok || !fieldEqual(old, v, isString(props[k])) {
			return false
		}
	}
	return true
}

// fieldEqual compares strings by value and structured values by deep equality of their parsed
// form, so that differently formatted JSON documents with the same content are equal.
func fieldEqual(stored, encoded string, str bool) bool {
	if stored == encoded {
		return true
	}
	if str {
		return false
	}
	return reflect.DeepEqual(types.DecodeValue(stored), types.DecodeValue(encoded))
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func skipped(path string) {
	metrics.SkippedWrites.Inc()
	log.WithField("path", path).Debug("value unchanged, skipping write")
}
