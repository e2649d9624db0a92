package inventory

import (
	"context"
	"errors"
	"fmt"
)

// FleetStore is the read side of the fleet database
type FleetStore interface {
	ListInstalledExtensions(ctx context.Context, hostID string) ([]Module, error)
}

// Fleet lists the modules a managed endpoint has reported into the fleet
// database
type Fleet struct {
	store  FleetStore
	hostID string
}

// NewFleet creates a fleet source for one host
func NewFleet(store FleetStore, hostID string) *Fleet {
	return &Fleet{store: store, hostID: hostID}
}

// List returns the reported modules for the configured host
func (f *Fleet) List(ctx context.Context) ([]Module, error) {
	if f.hostID == "" {
		return nil, errors.New("fleet host ID is required")
	}

	modules, err := f.store.ListInstalledExtensions(ctx, f.hostID)
	if err != nil {
		return nil, fmt.Errorf("list fleet extensions: %w", err)
	}

	for i := range modules {
		modules[i].Permissions, modules[i].HostPermissions = splitPermissions(
			modules[i].Permissions, modules[i].HostPermissions)
	}

	return modules, nil
}
