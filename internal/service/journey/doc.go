// Package journey implements the journey graph model: journeys, their stages,
// and the directed transitions that are the only legal paths between stages.
//
// The service layer enforces the structural invariants (same-journey
// transition endpoints, entry-point presence, no stage deletion while visits
// are open). It depends on the Repository interface defined in this package
// and should never import from api/.
//
// Repository implementations live in repository/postgres/ and
// repository/memory/.
package journey
