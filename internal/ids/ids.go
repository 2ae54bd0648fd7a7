// Package ids provides the stable 128-bit identifiers used throughout the
// cluster: scenes and bodies.
package ids

import (
	"encoding/gob"

	"github.com/google/uuid"
)

func init() {
	gob.Register(SceneID{})
	gob.Register(BodyUUID{})
	gob.Register(WorkerID{})
}

// SceneID names an isolated simulation universe.
type SceneID struct {
	uuid.UUID
}

// NewSceneID generates a fresh random scene identifier.
func NewSceneID() SceneID {
	return SceneID{uuid.New()}
}

// ParseSceneID parses a scene identifier from its canonical string form.
func ParseSceneID(s string) (SceneID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SceneID{}, err
	}
	return SceneID{u}, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s SceneID) MarshalBinary() ([]byte, error) {
	return s.UUID.MarshalBinary()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *SceneID) UnmarshalBinary(data []byte) error {
	return s.UUID.UnmarshalBinary(data)
}

// BodyUUID is the stable identity of a body across migrations.
type BodyUUID struct {
	uuid.UUID
}

// NewBodyUUID generates a fresh random body identifier.
func NewBodyUUID() BodyUUID {
	return BodyUUID{uuid.New()}
}

// ParseBodyUUID parses a body identifier from its canonical string form.
func ParseBodyUUID(s string) (BodyUUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return BodyUUID{}, err
	}
	return BodyUUID{u}, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (b BodyUUID) MarshalBinary() ([]byte, error) {
	return b.UUID.MarshalBinary()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (b *BodyUUID) UnmarshalBinary(data []byte) error {
	return b.UUID.UnmarshalBinary(data)
}

// WorkerID identifies a Region Worker process, returned by assign_runner
// and used as the first path segment of its command-queue and watch-set
// keys (spec.md §6.2).
type WorkerID struct {
	uuid.UUID
}

// NewWorkerID generates a fresh random worker identifier.
func NewWorkerID() WorkerID {
	return WorkerID{uuid.New()}
}

// ParseWorkerID parses a worker identifier from its canonical string form.
func ParseWorkerID(s string) (WorkerID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return WorkerID{}, err
	}
	return WorkerID{u}, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (w WorkerID) MarshalBinary() ([]byte, error) {
	return w.UUID.MarshalBinary()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (w *WorkerID) UnmarshalBinary(data []byte) error {
	return w.UUID.UnmarshalBinary(data)
}
