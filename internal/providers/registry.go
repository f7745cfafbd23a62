// Package providers holds the static provider table: for every service
// class, one primary provider and an ordered list of backups.
//
// A Registry is built once at start-up and is read-only afterwards, so it
// can be shared by concurrent analysis runs without locking.
package providers

import (
	"fmt"
	"sort"

	"github.com/agentoven/psymarket/pkg/models"
)

// ConfigurationError reports an unknown service class or a malformed table.
type ConfigurationError struct {
	Class  models.ServiceClass
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Class == "" {
		return "provider configuration: " + e.Reason
	}
	return fmt.Sprintf("provider configuration: class %q: %s", e.Class, e.Reason)
}

type entry struct {
	primary models.ProviderDescriptor
	backups []models.ProviderDescriptor
}

// Registry maps service classes to their provider chain.
type Registry struct {
	classes map[models.ServiceClass]entry
	order   []models.ServiceClass
}

// New validates table and builds a registry from it. Every class that
// appears must have exactly one primary; provider names must be unique and
// backup ranks must not collide within a class.
func New(table []models.ProviderDescriptor) (*Registry, error) {
	r := &Registry{classes: make(map[models.ServiceClass]entry)}

	names := make(map[string]bool)
	primaries := make(map[models.ServiceClass]*models.ProviderDescriptor)
	backups := make(map[models.ServiceClass][]models.ProviderDescriptor)

	for i := range table {
		d := table[i]
		if !d.Class.Valid() {
			return nil, &ConfigurationError{Class: d.Class, Reason: fmt.Sprintf("provider %q has unknown service class", d.Name)}
		}
		if d.Name == "" {
			return nil, &ConfigurationError{Class: d.Class, Reason: "provider without a name"}
		}
		if d.Kind == "" {
			return nil, &ConfigurationError{Class: d.Class, Reason: fmt.Sprintf("provider %q has no kind", d.Name)}
		}
		if names[d.Name] {
			return nil, &ConfigurationError{Class: d.Class, Reason: fmt.Sprintf("duplicate provider name %q", d.Name)}
		}
		names[d.Name] = true

		// Descriptors are immutable once registered; copy the slices so the
		// caller's table cannot alias registry state.
		d.RequiredCredentials = append([]string(nil), d.RequiredCredentials...)
		d.OptionalCredentials = append([]string(nil), d.OptionalCredentials...)

		switch d.Role {
		case models.RolePrimary:
			if primaries[d.Class] != nil {
				return nil, &ConfigurationError{Class: d.Class, Reason: fmt.Sprintf("second primary %q (already %q)", d.Name, primaries[d.Class].Name)}
			}
			primaries[d.Class] = &d
		case models.RoleBackup:
			for _, b := range backups[d.Class] {
				if b.Rank == d.Rank {
					return nil, &ConfigurationError{Class: d.Class, Reason: fmt.Sprintf("backups %q and %q share rank %d", b.Name, d.Name, d.Rank)}
				}
			}
			backups[d.Class] = append(backups[d.Class], d)
		default:
			return nil, &ConfigurationError{Class: d.Class, Reason: fmt.Sprintf("provider %q has unknown role %q", d.Name, d.Role)}
		}
	}

	for _, class := range models.ServiceClasses {
		p := primaries[class]
		if p == nil {
			if len(backups[class]) > 0 {
				return nil, &ConfigurationError{Class: class, Reason: "backups configured without a primary"}
			}
			continue
		}
		bs := backups[class]
		sort.SliceStable(bs, func(i, j int) bool { return bs[i].Rank < bs[j].Rank })
		r.classes[class] = entry{primary: *p, backups: bs}
		r.order = append(r.order, class)
	}

	if len(r.classes) == 0 {
		return nil, &ConfigurationError{Reason: "empty provider table"}
	}
	return r, nil
}

// Lookup returns the primary and the backups, in ascending rank, for class.
// The returned slice is a copy.
func (r *Registry) Lookup(class models.ServiceClass) (models.ProviderDescriptor, []models.ProviderDescriptor, error) {
	e, ok := r.classes[class]
	if !ok {
		return models.ProviderDescriptor{}, nil, &ConfigurationError{Class: class, Reason: "unknown service class"}
	}
	return e.primary, append([]models.ProviderDescriptor(nil), e.backups...), nil
}

// Classes returns the configured service classes in stable order.
func (r *Registry) Classes() []models.ServiceClass {
	return append([]models.ServiceClass(nil), r.order...)
}

// Primaries returns the names of every class's primary provider.
func (r *Registry) Primaries() []string {
	out := make([]string, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, r.classes[c].primary.Name)
	}
	return out
}

// IsPrimary reports whether name is the primary of any class.
func (r *Registry) IsPrimary(name string) bool {
	for _, e := range r.classes {
		if e.primary.Name == name {
			return true
		}
	}
	return false
}

// All returns every descriptor: per class, the primary followed by its backups.
func (r *Registry) All() []models.ProviderDescriptor {
	var out []models.ProviderDescriptor
	for _, c := range r.order {
		e := r.classes[c]
		out = append(out, e.primary)
		out = append(out, e.backups...)
	}
	return out
}
