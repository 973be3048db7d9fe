package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Rammina/codepipeline-inplace-quicksetup/internal/ir"
)

// Version is the state format version written by this tool.
const Version = 1

// DefaultPath is where local state lives relative to the project directory.
const DefaultPath = ".quicksetup/state.json"

// Manager reads and writes state in a local file.
type Manager struct {
	path string
}

func NewManager(path string) *Manager {
	return &Manager{
		path: path,
	}
}

// Path returns the state file location.
func (m *Manager) Path() string {
	return m.path
}

// Read loads the state from the configured path. A missing file is an empty
// state. Encrypted files are transparently decrypted.
func (m *Manager) Read(ctx context.Context) (*ir.State, error) {
	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", m.path, err)
	}

	state, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load state from %s: %w", m.path, err)
	}
	return state, nil
}

// Write saves the state to the configured path, replacing the previous file
// atomically. If QUICKSETUP_STATE_ENCRYPTION_KEY is set the file is encrypted.
func (m *Manager) Write(ctx context.Context, state *ir.State) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	content, err := Encode(state)
	if err != nil {
		return err
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace state file %s: %w", m.path, err)
	}
	return nil
}

// Empty returns the state of a project that has never been applied.
func Empty() *ir.State {
	return &ir.State{Version: Version, Resources: []*ir.ResourceState{}}
}

// Encode serializes state as indented JSON, assigning a lineage on first
// write, and encrypts it when a key is configured.
func Encode(state *ir.State) ([]byte, error) {
	if state.Lineage == "" {
		state.Lineage = uuid.NewString()
	}
	if state.Version == 0 {
		state.Version = Version
	}
	if state.Resources == nil {
		state.Resources = []*ir.ResourceState{}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	data = append(data, '\n')

	encrypted, err := EncryptState(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt state: %w", err)
	}
	return encrypted, nil
}

// Decode parses state written by Encode.
func Decode(raw []byte) (*ir.State, error) {
	content, err := DecryptState(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state: %w", err)
	}

	var state ir.State
	if err := json.Unmarshal(content, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	if state.Version > Version {
		return nil, fmt.Errorf("state version %d is newer than supported version %d", state.Version, Version)
	}
	return &state, nil
}

// Remove drops the resource recorded under addr, reporting whether it existed.
func Remove(state *ir.State, addr string) bool {
	for i, res := range state.Resources {
		if res.Address() == addr {
			state.Resources = append(state.Resources[:i], state.Resources[i+1:]...)
			state.Serial++
			return true
		}
	}
	return false
}
