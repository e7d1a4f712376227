package ir

import (
	"fmt"
	"strings"
)

// AccessLevel is the declared visibility of a class, method or protocol.
//
// Levels are ordered, so "at most file private" can be written as
// a <= AccessFilePrivate.
type AccessLevel int

const (
	AccessPrivate AccessLevel = iota
	AccessFilePrivate
	AccessInternal
	AccessPublic
	AccessOpen
)

func (a AccessLevel) String() string {
	switch a {
	case AccessPrivate:
		return "private"
	case AccessFilePrivate:
		return "fileprivate"
	case AccessInternal:
		return "internal"
	case AccessPublic:
		return "public"
	case AccessOpen:
		return "open"
	default:
		return fmt.Sprintf("access(%d)", int(a))
	}
}

// A Class is a nominal reference type that participates in dynamic
// dispatch through its v-table.
type Class struct {
	Name       string
	Superclass *Class
	Access     AccessLevel
	Final      bool

	// Deinit is the declaration of the class deallocator, if the class
	// declares one. Subclass deallocators override their superclass
	// deallocator.
	Deinit *MethodDecl
}

// IsSubclassOf reports whether c is other or inherits from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for k := c; k != nil; k = k.Superclass {
		if k == other {
			return true
		}
	}
	return false
}

// DeinitDecl returns the nearest deallocator declaration in the
// superclass chain of c, or nil.
func (c *Class) DeinitDecl() *MethodDecl {
	for k := c; k != nil; k = k.Superclass {
		if k.Deinit != nil {
			return k.Deinit
		}
	}
	return nil
}

func (c *Class) String() string { return c.Name }

// MethodKind distinguishes ordinary methods from deallocators.
type MethodKind int

const (
	MethodFunc MethodKind = iota
	MethodDeallocator
)

// A MethodDecl is a class method declaration. Overriding declarations
// point at the declaration they override; the root of that chain is the
// v-table slot every override shares.
type MethodDecl struct {
	Name       string
	Class      *Class
	Kind       MethodKind
	Overridden *MethodDecl
	Final      bool
	Dynamic    bool // dispatched by the dynamic runtime, never statically known
}

// Slot returns the root overridden declaration of d.
func (d *MethodDecl) Slot() *MethodDecl {
	s := d
	for s.Overridden != nil {
		s = s.Overridden
	}
	return s
}

func (d *MethodDecl) String() string {
	if d.Kind == MethodDeallocator {
		return "#" + d.Class.Name + ".deinit!deallocator"
	}
	return "#" + d.Class.Name + "." + d.Name
}

// A Protocol is a set of requirements that conforming types satisfy
// through witness tables.
type Protocol struct {
	Name         string
	Access       AccessLevel
	Resilient    bool
	Requirements []*Requirement
}

// A Requirement is a single method requirement of a protocol.
type Requirement struct {
	Name     string
	Protocol *Protocol
}

func (r *Requirement) String() string { return "#" + r.Protocol.Name + "." + r.Name }

// AddRequirement declares a new requirement named name on p.
func (p *Protocol) AddRequirement(name string) *Requirement {
	r := &Requirement{Name: name, Protocol: p}
	p.Requirements = append(p.Requirements, r)
	return r
}

// Requirement returns the requirement named name, or nil.
func (p *Protocol) Requirement(name string) *Requirement {
	for _, r := range p.Requirements {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func (p *Protocol) String() string { return p.Name }

// TypeKind classifies a Type.
type TypeKind int

const (
	TypeBuiltin TypeKind = iota
	TypeClass
	TypeStruct
	TypeExistential
	TypeFunction
	TypeMetatype
)

// A Type is the small slice of the type system the optimizer needs:
// enough to find destructors and to tell concrete types from
// existentials.
type Type struct {
	Kind      TypeKind
	Name      string
	Class     *Class      // TypeClass
	Deinit    *Function   // TypeStruct with a move-only deinit
	Protocols []*Protocol // TypeExistential
	Instance  *Type       // TypeMetatype
}

// BuiltinType returns an opaque builtin type named name.
func BuiltinType(name string) *Type { return &Type{Kind: TypeBuiltin, Name: name} }

// ClassType returns the reference type of c.
func ClassType(c *Class) *Type { return &Type{Kind: TypeClass, Name: c.Name, Class: c} }

// StructType returns a nominal value type. A non-nil deinit makes the
// type move-only with an explicit destructor.
func StructType(name string, deinit *Function) *Type {
	return &Type{Kind: TypeStruct, Name: name, Deinit: deinit}
}

// ExistentialType returns the existential of the given protocol
// composition.
func ExistentialType(protocols ...*Protocol) *Type {
	names := make([]string, len(protocols))
	for i, p := range protocols {
		names[i] = p.Name
	}
	name := strings.Join(names, " & ")
	if name == "" {
		name = "Any"
	}
	return &Type{Kind: TypeExistential, Name: name, Protocols: protocols}
}

// FunctionType returns a function type with the given printed signature.
func FunctionType(sig string) *Type { return &Type{Kind: TypeFunction, Name: sig} }

// MetatypeOf returns the metatype of t.
func MetatypeOf(t *Type) *Type {
	return &Type{Kind: TypeMetatype, Name: t.Name + ".Type", Instance: t}
}

// IsConcrete reports whether values of t have a statically known
// nominal type, that is, t is not an existential.
func (t *Type) IsConcrete() bool {
	return t != nil && t.Kind != TypeExistential
}

// Identical reports whether t and u denote the same type.
func (t *Type) Identical(u *Type) bool {
	if t == u {
		return true
	}
	if t == nil || u == nil || t.Kind != u.Kind {
		return false
	}
	switch t.Kind {
	case TypeClass:
		return t.Class == u.Class
	case TypeMetatype:
		return t.Instance.Identical(u.Instance)
	default:
		return t.Name == u.Name
	}
}

func (t *Type) String() string {
	if t == nil {
		return "()"
	}
	switch t.Kind {
	case TypeMetatype:
		return "@thick " + t.Name
	case TypeExistential:
		return "any " + t.Name
	default:
		return "$" + t.Name
	}
}
