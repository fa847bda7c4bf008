package markers

import (
	"errors"
	"fmt"

	"sceneviz.dev/internal/sim/geometry"
	"sceneviz.dev/internal/viz/shapes"
)

// Identity lets a display correlate one element across evaluations.
type Identity struct {
	Namespace string
	ID        int
}

func (i Identity) String() string { return fmt.Sprintf("%s#%d", i.Namespace, i.ID) }

func Namespace(sourceName, elementName string) string {
	return sourceName + "::" + elementName
}

var ErrDuplicateElementIdentity = errors.New("duplicate element identity")

type DuplicateIdentityError struct {
	Identity Identity
	First    geometry.ID
	Second   geometry.ID
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("duplicate element identity %s: geometries %d and %d", e.Identity, e.First, e.Second)
}

func (e *DuplicateIdentityError) Is(target error) bool { return target == ErrDuplicateElementIdentity }

type identified struct {
	Identity Identity
	Element  shapes.Element
}

// allocator hands out identities for one evaluation and remembers which
// geometry claimed each one.
type allocator struct {
	owner map[Identity]geometry.ID
}

func newAllocator(sizeHint int) *allocator {
	return &allocator{owner: make(map[Identity]geometry.ID, sizeHint)}
}

func (a *allocator) assign(d geometry.Descriptor, els []shapes.Element) ([]identified, error) {
	ns := Namespace(d.SourceName, d.Name)
	out := make([]identified, 0, len(els))
	for i, el := range els {
		id := Identity{Namespace: ns, ID: i}
		if prev, ok := a.owner[id]; ok {
			return nil, &DuplicateIdentityError{Identity: id, First: prev, Second: d.ID}
		}
		a.owner[id] = d.ID
		out = append(out, identified{Identity: id, Element: el})
	}
	return out, nil
}
