package models

import (
	"fmt"
	"time"
)

// Conversation is a two-party thread. Slot A is always a named account.
// Slot B is either another named account or, when ParticipantB is nil,
// an anonymous visitor.
type Conversation struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ParticipantA uint      `json:"participant_a" gorm:"not null;index"`
	ParticipantB *uint     `json:"participant_b" gorm:"index"`
	PairKey      *string   `json:"-" gorm:"size:64;uniqueIndex"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"index"`
}

// PairKeyFor returns the canonical key of the unordered pair {a, b}.
func PairKeyFor(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// SlotA returns the party occupying slot A.
func (c *Conversation) SlotA() Party {
	return NamedUser{ID: c.ParticipantA}
}

// SlotB returns the party occupying slot B.
func (c *Conversation) SlotB() Party {
	if c.ParticipantB == nil {
		return AnonymousVisitor{}
	}
	return NamedUser{ID: *c.ParticipantB}
}

// IsAnonymous reports whether slot B belongs to an anonymous visitor.
func (c *Conversation) IsAnonymous() bool {
	return c.ParticipantB == nil
}

// HasParticipant reports whether p occupies one of the two slots.
func (c *Conversation) HasParticipant(p Party) bool {
	return SameParty(c.SlotA(), p) || SameParty(c.SlotB(), p)
}

// Counterparty returns the party facing viewer. The viewer is assumed to
// be a participant.
func (c *Conversation) Counterparty(viewer Party) Party {
	if SameParty(c.SlotA(), viewer) {
		return c.SlotB()
	}
	return c.SlotA()
}
