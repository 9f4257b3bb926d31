package credstore

import "github.com/dmitrijs2005/sessionkeeper/internal/common"

// Field says which part of the bundle a location holds.
type Field int

const (
	FieldAccess Field = iota
	FieldRefresh
	FieldCombined
)

func (f Field) String() string {
	switch f {
	case FieldAccess:
		return "access"
	case FieldRefresh:
		return "refresh"
	default:
		return "combined"
	}
}

// Location is one {store, key} alias. Secondary locations are best effort:
// their failures are logged at debug level and they never count towards a
// successful write.
type Location struct {
	Store     Store
	Key       string
	Field     Field
	Secondary bool
}

// Layout describes the backends available to the accessor.
type Layout struct {
	Persistent Store
	Replicas   []Store
	Cookies    Store
	ProjectRef string
}

// Locations expands the layout into the fixed priority order:
// project combined key, primary access/refresh keys, legacy combined key,
// replicas, then cookies mirroring the primary names.
func (l Layout) Locations() []Location {
	var locs []Location

	if l.Persistent != nil {
		if l.ProjectRef != "" {
			locs = append(locs, Location{Store: l.Persistent, Key: common.ProjectCombinedKey(l.ProjectRef), Field: FieldCombined})
		}
		locs = append(locs,
			Location{Store: l.Persistent, Key: common.AccessTokenKey, Field: FieldAccess},
			Location{Store: l.Persistent, Key: common.RefreshTokenKey, Field: FieldRefresh},
			Location{Store: l.Persistent, Key: common.LegacyCombinedKey, Field: FieldCombined},
		)
	}

	for _, r := range l.Replicas {
		key := common.LegacyCombinedKey
		if l.ProjectRef != "" {
			key = common.ProjectCombinedKey(l.ProjectRef)
		}
		locs = append(locs, Location{Store: r, Key: key, Field: FieldCombined})
	}

	if l.Cookies != nil {
		locs = append(locs,
			Location{Store: l.Cookies, Key: common.AccessTokenKey, Field: FieldAccess, Secondary: true},
			Location{Store: l.Cookies, Key: common.RefreshTokenKey, Field: FieldRefresh, Secondary: true},
		)
	}

	return locs
}
