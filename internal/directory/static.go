package directory

import (
	"context"
	"fmt"

	"github.com/clinical-encounter-server/internal/domain"
)

// Static is an in-process profile directory backed by a fixed set of
// profiles. It is used in development mode and in tests, where no
// identity service is running.
type Static struct {
	profiles map[string]domain.Profile
}

// NewStatic creates a static directory from the given profiles.
func NewStatic(profiles ...domain.Profile) *Static {
	m := make(map[string]domain.Profile, len(profiles))
	for _, p := range profiles {
		m[p.ID] = p
	}
	return &Static{profiles: m}
}

func (d *Static) FindProfileByID(ctx context.Context, id string) (*domain.Profile, error) {
	p, ok := d.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", id, domain.ErrNotFound)
	}
	copied := p
	return &copied, nil
}

// DevProfiles returns the fixed accounts available in development mode,
// one per role.
func DevProfiles() []domain.Profile {
	return []domain.Profile{
		{ID: "dev-physician", DisplayName: "Dev Physician", Role: domain.ROLE_PHYSICIAN},
		{ID: "dev-nurse", DisplayName: "Dev Nurse", Role: domain.ROLE_NURSE},
		{ID: "dev-admin", DisplayName: "Dev Admin", Role: domain.ROLE_ADMIN},
		{ID: "dev-patient", DisplayName: "Dev Patient", Role: domain.ROLE_PATIENT},
	}
}
