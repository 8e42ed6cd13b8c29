// Package registry provides an in-memory device registry used for device
// authentication. Suitable as a simple storage backend for single-node
// deployments; swap in a database-backed implementation behind the same
// interface for anything larger.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formpulse/livecoach/domain/entities"
)

var (
	// ErrDeviceNotFound is returned when no device matches the lookup.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrInvalidCredentials is returned when the secret does not match.
	ErrInvalidCredentials = errors.New("invalid device credentials")
	// ErrDuplicateSerial is returned when registering an existing serial.
	ErrDuplicateSerial = errors.New("serial number already registered")
)

// MemoryDeviceRepository is an in-memory implementation of DeviceRepository.
type MemoryDeviceRepository struct {
	mu      sync.RWMutex
	devices map[string]*entities.Device // id -> device
	serials map[string]*entities.Device // serial_number -> device
	secrets map[string]string           // serial_number -> secret_key
}

// NewMemoryDeviceRepository creates an empty registry.
func NewMemoryDeviceRepository() *MemoryDeviceRepository {
	return &MemoryDeviceRepository{
		devices: make(map[string]*entities.Device),
		serials: make(map[string]*entities.Device),
		secrets: make(map[string]string),
	}
}

// Register adds a device with its authentication secret.
func (m *MemoryDeviceRepository) Register(device *entities.Device, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.serials[device.SerialNumber]; exists {
		return ErrDuplicateSerial
	}
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	m.devices[device.ID] = device
	m.serials[device.SerialNumber] = device
	m.secrets[device.SerialNumber] = secret
	return nil
}

// Create implements repositories.DeviceRepository. The secret must be set
// separately via Register; Create exists for interface completeness.
func (m *MemoryDeviceRepository) Create(ctx context.Context, device *entities.Device) error {
	return m.Register(device, "")
}

// GetByID implements repositories.DeviceRepository.
func (m *MemoryDeviceRepository) GetByID(ctx context.Context, id string) (*entities.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, ok := m.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return device, nil
}

// GetBySerialNumber implements repositories.DeviceRepository.
func (m *MemoryDeviceRepository) GetBySerialNumber(ctx context.Context, serialNumber string) (*entities.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, ok := m.serials[serialNumber]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return device, nil
}

// ValidateDevice checks serial number plus secret for authentication.
func (m *MemoryDeviceRepository) ValidateDevice(serialNumber, secret string) (*entities.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, ok := m.serials[serialNumber]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	if expected, ok := m.secrets[serialNumber]; !ok || expected == "" || expected != secret {
		return nil, ErrInvalidCredentials
	}
	return device, nil
}
