package domain

import "time"

// RotateKey replaces the key entry with the given description, or appends a
// new entry when none matches. Rotation only ever touches the Keys
// collection itself.
func (t *Tenant) RotateKey(description, hash string, now time.Time) {
	entry := APIKeyEntry{
		Description: description,
		Hash:        hash,
		CreatedAt:   now,
	}

	for i, key := range t.Keys {
		if key.Description == description {
			t.Keys[i] = entry
			return
		}
	}
	t.Keys = append(t.Keys, entry)
}
