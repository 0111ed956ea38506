// Package authz verifies a driver-presented bearer credential against the
// stored api_key_hash (§3's Driver.ID is opaque; authz is the only place a
// raw credential is ever compared). The engine's bid and location intake
// paths do not call Verify.
// Grounded on the teacher's pkg/hasher, used the same way internal/service/
// auth compares a stored password hash, trimmed to a single Verify call
// (no login/refresh — out of scope here).
package authz

import (
	"context"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/domain/types"
	"github.com/fleetcore/dispatch/pkg/hasher"
)

// DriverGetter resolves a driver record; satisfied directly by store.Store.
type DriverGetter interface {
	GetDriver(ctx context.Context, driverID string) (*models.Driver, error)
}

// Verifier checks a driver-presented API key against the store.
type Verifier struct {
	drivers DriverGetter
}

func New(drivers DriverGetter) *Verifier {
	return &Verifier{drivers: drivers}
}

// Verify returns nil if apiKey hashes to the driver's stored api_key_hash.
// A driver with an empty stored hash allows any key (§3: "empty means
// unauthenticated bidding is allowed" — used for local/dev fleets).
func (v *Verifier) Verify(ctx context.Context, driverID, apiKey string) error {
	d, err := v.drivers.GetDriver(ctx, driverID)
	if err != nil {
		return err
	}
	if d.APIKeyHash == "" {
		return nil
	}
	if !hasher.Verify(apiKey, d.APIKeyHash) {
		return types.ErrSpoofedIdentity
	}
	return nil
}

// Hash is exposed for driver registration/rotation flows that need to
// persist a new api_key_hash.
func Hash(apiKey string) string {
	return hasher.Hash(apiKey)
}
