package models

import "fmt"

// Party identifies one side of a conversation. It is either a NamedUser
// (an authenticated account) or the AnonymousVisitor.
type Party interface {
	isParty()
	String() string
}

// NamedUser is an authenticated account taking part in a conversation.
type NamedUser struct {
	ID uint
}

// AnonymousVisitor is an unauthenticated visitor. It carries no identity;
// the conversation itself is its only anchor.
type AnonymousVisitor struct{}

func (NamedUser) isParty()        {}
func (AnonymousVisitor) isParty() {}

func (u NamedUser) String() string      { return fmt.Sprintf("user:%d", u.ID) }
func (AnonymousVisitor) String() string { return "anonymous" }

// Named returns the party for an account id.
func Named(id uint) Party { return NamedUser{ID: id} }

// Anonymous is the anonymous visitor party.
var Anonymous Party = AnonymousVisitor{}

// UserID returns the account id of p and whether p is a named user.
func UserID(p Party) (uint, bool) {
	u, ok := p.(NamedUser)
	return u.ID, ok
}

// IsAnonymous reports whether p is the anonymous visitor.
func IsAnonymous(p Party) bool {
	_, ok := p.(AnonymousVisitor)
	return ok
}

// SameParty reports whether a and b denote the same participant.
func SameParty(a, b Party) bool {
	switch x := a.(type) {
	case NamedUser:
		y, ok := b.(NamedUser)
		return ok && x.ID == y.ID
	case AnonymousVisitor:
		return IsAnonymous(b)
	}
	return false
}
