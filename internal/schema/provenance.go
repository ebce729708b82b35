package schema

// Provenance records where a registry entry came from.
// The zero value means the entry was created locally.
type Provenance struct {
	Source string `json:"source,omitempty"` // repository URL or path; empty for local entries
	Ref    string `json:"ref,omitempty"`    // commit, tag or branch the bundle was read at
}

// LocalProvenance is the provenance of entries created with `agent create` / `tool create`.
var LocalProvenance = Provenance{}

func NewProvenance(source, ref string) Provenance {
	return Provenance{Source: source, Ref: ref}
}

func (p Provenance) IsLocal() bool { return p.Source == "" }

// SameSource reports whether p and o were fetched from the same repository,
// regardless of ref. Two local provenances never share a source.
func (p Provenance) SameSource(o Provenance) bool {
	return !p.IsLocal() && p.Source == o.Source
}

// Equal reports whether p and o name the same (source, ref) bundle.
func (p Provenance) Equal(o Provenance) bool {
	return p.Source == o.Source && p.Ref == o.Ref
}

func (p Provenance) String() string {
	if p.IsLocal() {
		return "local"
	}
	return p.Source + "@" + p.Ref
}
