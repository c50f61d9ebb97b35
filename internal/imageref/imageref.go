// Package imageref implements the structured image reference described in
// the data model: an immutable {registry?, namespace?, repo, tag?} value
// with bidirectional parse/format to the canonical
// [registry/][namespace/]repo[:tag] form.
package imageref

import (
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
)

// Ref is an immutable, structured image reference. Equality is defined on
// the normalized string form, never on field-by-field comparison, so two
// Refs built from differently-cased registries but resolving to the same
// canonical string are Equal.
type Ref struct {
	registry  string
	namespace string
	repo      string
	tag       string
}

// Parse resolves raw into a Ref using go-containerregistry's reference
// parser, splitting its repository path into a leading namespace and a
// trailing repo component the way Docker Hub-style references are read.
func Parse(raw string) (Ref, error) {
	if strings.TrimSpace(raw) == "" {
		return Ref{}, fmt.Errorf("imageref: empty reference")
	}

	parsed, err := name.ParseReference(raw, name.WeakValidation)
	if err != nil {
		return Ref{}, fmt.Errorf("imageref: parsing %q: %w", raw, err)
	}

	registry := parsed.Context().RegistryStr()
	repoStr := parsed.Context().RepositoryStr()
	// go-containerregistry fills in Docker Hub's registry (and "library/"
	// for single-segment names) when raw names no registry host; keep those
	// parts empty so an unqualified reference formats back to itself.
	if first, _, found := strings.Cut(raw, "/"); !found || (!strings.ContainsAny(first, ".:") && first != "localhost") {
		registry = ""
		if !found {
			repoStr = strings.TrimPrefix(repoStr, "library/")
		}
	}
	namespace, repo := splitRepository(repoStr)

	tag := ""
	if t, ok := parsed.(name.Tag); ok {
		tag = t.TagStr()
	}

	return Ref{
		registry:  registry,
		namespace: namespace,
		repo:      repo,
		tag:       tag,
	}, nil
}

// New builds a Ref directly from its fields, validating by round-tripping
// through Parse so the same rules govern construction and parsing.
func New(registry, namespace, repo, tag string) (Ref, error) {
	r := Ref{registry: registry, namespace: namespace, repo: repo, tag: tag}
	if _, err := Parse(r.String()); err != nil {
		return Ref{}, err
	}
	return r, nil
}

func splitRepository(repoStr string) (namespace, repo string) {
	idx := strings.LastIndex(repoStr, "/")
	if idx < 0 {
		return "", repoStr
	}
	return repoStr[:idx], repoStr[idx+1:]
}

// Registry returns the registry host, or "" if the reference is unqualified.
func (r Ref) Registry() string { return r.registry }

// Namespace returns the namespace/organization path segment, or "" if none.
func (r Ref) Namespace() string { return r.namespace }

// Repo returns the bare repository name.
func (r Ref) Repo() string { return r.repo }

// Tag returns the tag, or "" if unset.
func (r Ref) Tag() string { return r.tag }

// WithTag returns a copy of r with its tag replaced.
func (r Ref) WithTag(tag string) Ref {
	r.tag = tag
	return r
}

// WithRegistry returns a copy of r with its registry host replaced, used to
// redirect a base image pull through a configured parent registry without
// disturbing the rest of the reference.
func (r Ref) WithRegistry(registry string) Ref {
	r.registry = registry
	return r
}

// String renders the canonical [registry/][namespace/]repo[:tag] form.
func (r Ref) String() string {
	var b strings.Builder
	if r.registry != "" {
		b.WriteString(r.registry)
		b.WriteByte('/')
	}
	if r.namespace != "" {
		b.WriteString(r.namespace)
		b.WriteByte('/')
	}
	b.WriteString(r.repo)
	if r.tag != "" {
		b.WriteByte(':')
		b.WriteString(r.tag)
	}
	return b.String()
}

// Equal reports whether r and other normalize to the same canonical string.
func (r Ref) Equal(other Ref) bool {
	return r.String() == other.String()
}

// IsZero reports whether r is the zero value (no repo set).
func (r Ref) IsZero() bool {
	return r.repo == ""
}
