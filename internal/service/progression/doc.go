// Package progression implements the per-contact journey state machine:
// enrollment, stage advancement, pause/resume, drop, and completion.
//
// Statuses move along the legal graph active<->paused, active->completed,
// {active,paused}->dropped; completed and dropped are terminal. Every
// multi-step mutation (advance, enroll) executes as one store transaction;
// the repository contract makes that explicit.
//
// Repository implementations live in repository/postgres/ and
// repository/memory/.
package progression
