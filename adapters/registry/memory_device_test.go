package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/formpulse/livecoach/domain/entities"
)

func TestRegisterAndValidate(t *testing.T) {
	repo := NewMemoryDeviceRepository()

	device := &entities.Device{SerialNumber: "SN-001", Model: "cam-v2"}
	if err := repo.Register(device, "secret-1"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if device.ID == "" {
		t.Error("Register did not assign an ID")
	}

	got, err := repo.ValidateDevice("SN-001", "secret-1")
	if err != nil {
		t.Fatalf("ValidateDevice failed: %v", err)
	}
	if got.ID != device.ID {
		t.Errorf("ValidateDevice returned device %s, want %s", got.ID, device.ID)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	repo := NewMemoryDeviceRepository()
	if err := repo.Register(&entities.Device{SerialNumber: "SN-001"}, "secret-1"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := repo.ValidateDevice("SN-001", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := repo.ValidateDevice("SN-404", "secret-1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestDuplicateSerialRejected(t *testing.T) {
	repo := NewMemoryDeviceRepository()
	if err := repo.Register(&entities.Device{SerialNumber: "SN-001"}, "a"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := repo.Register(&entities.Device{SerialNumber: "SN-001"}, "b"); !errors.Is(err, ErrDuplicateSerial) {
		t.Errorf("expected ErrDuplicateSerial, got %v", err)
	}
}

func TestGetByID(t *testing.T) {
	repo := NewMemoryDeviceRepository()
	device := &entities.Device{SerialNumber: "SN-001"}
	if err := repo.Register(device, "s"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := repo.GetByID(context.Background(), device.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.SerialNumber != "SN-001" {
		t.Errorf("SerialNumber = %q, want SN-001", got.SerialNumber)
	}
}
