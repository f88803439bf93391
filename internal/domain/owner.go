// Package domain holds the shared types folded by the materialised state:
// events, owners, and the entity records they describe.
package domain

import "fmt"

// OwnerKind discriminates the two things that can own an agent, a decision,
// a timer, or an attempt tracker.
type OwnerKind string

const (
	OwnerJob  OwnerKind = "job"
	OwnerCrew OwnerKind = "crew"
)

// OwnerID is the tagged union Job(id) | Crew(id) from the glossary.
type OwnerID struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

func JobOwner(id string) OwnerID  { return OwnerID{Kind: OwnerJob, ID: id} }
func CrewOwner(id string) OwnerID { return OwnerID{Kind: OwnerCrew, ID: id} }

func (o OwnerID) String() string {
	return fmt.Sprintf("%s:%s", o.Kind, o.ID)
}

func (o OwnerID) IsJob() bool  { return o.Kind == OwnerJob }
func (o OwnerID) IsCrew() bool { return o.Kind == OwnerCrew }

// ScopedName implements the GLOSSARY's "ns/name when namespaced, bare name
// otherwise" convention used for job kinds, agents, queues, workers, crons.
func ScopedName(ns, name string) string {
	if ns == "" {
		return name
	}
	return ns + "/" + name
}
